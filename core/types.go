package core

import "time"

// Transaction is the read-only projection of a stored transaction that the
// advisor core works with. Negative amounts are expenses, positive amounts
// are income.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Account     string    `json:"account"`
}

// RecommendationType classifies what kind of advice a recommendation carries.
type RecommendationType string

const (
	TypeSpendingAlert      RecommendationType = "spending_alert"
	TypeSavingsOpportunity RecommendationType = "savings_opportunity"
	TypeBehavioralInsight  RecommendationType = "behavioral_insight"
	TypeBudgetWarning      RecommendationType = "budget_warning"
)

// ParseRecommendationType maps a wire value to a known type.
// Unknown values fall back to TypeBehavioralInsight so a single odd item
// does not invalidate a whole batch.
func ParseRecommendationType(s string) RecommendationType {
	switch RecommendationType(s) {
	case TypeSpendingAlert, TypeSavingsOpportunity, TypeBehavioralInsight, TypeBudgetWarning:
		return RecommendationType(s)
	default:
		return TypeBehavioralInsight
	}
}

// Priority orders recommendations from least to most urgent.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "medium"
	}
}

// ParsePriority maps a wire value to a Priority, falling back to medium.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// RecommendationStatus is the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	StatusActive  RecommendationStatus = "active"
	StatusExpired RecommendationStatus = "expired"
)

// Recommendation is one piece of advice produced by an agent run.
// All recommendations from the same run share a GeneratedAt timestamp and
// form one batch; a new batch supersedes the previous one.
type Recommendation struct {
	ID          string               `json:"id"`
	UserID      string               `json:"user_id"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Type        RecommendationType   `json:"type"`
	Priority    Priority             `json:"priority"`
	GeneratedAt time.Time            `json:"generated_at"`
	ExpiresAt   time.Time            `json:"expires_at"`
	Status      RecommendationStatus `json:"status"`
}
