package advisor

import (
	"testing"

	"github.com/ledgerwise/advisor/core"
)

func TestParseRecommendations_PlainObject(t *testing.T) {
	text := `{
		"recommendations": [
			{"title": "Trim dining out", "message": "You spent $412 on dining in 30 days.", "type": "spending_alert", "priority": "high"},
			{"title": "Cancel a duplicate", "message": "Two streaming services overlap at $31/mo.", "type": "savings_opportunity", "priority": "medium"}
		]
	}`

	got := parseRecommendations(text, 5)
	if len(got) != 2 {
		t.Fatalf("parsed %d items, want 2", len(got))
	}
	if got[0].Title != "Trim dining out" || got[0].Type != core.TypeSpendingAlert || got[0].Priority != core.PriorityHigh {
		t.Errorf("unexpected first item: %+v", got[0])
	}
	if got[1].Type != core.TypeSavingsOpportunity || got[1].Priority != core.PriorityMedium {
		t.Errorf("unexpected second item: %+v", got[1])
	}
}

func TestParseRecommendations_MarkdownFences(t *testing.T) {
	text := "Here is my analysis:\n```json\n" +
		`{"recommendations": [{"title": "T", "message": "M", "type": "budget_warning", "priority": "critical"}]}` +
		"\n```\n"

	got := parseRecommendations(text, 5)
	if len(got) != 1 {
		t.Fatalf("parsed %d items, want 1", len(got))
	}
	if got[0].Type != core.TypeBudgetWarning || got[0].Priority != core.PriorityCritical {
		t.Errorf("unexpected item: %+v", got[0])
	}
}

func TestParseRecommendations_UnknownVocabularyFallsBack(t *testing.T) {
	text := `{"recommendations": [{"title": "T", "message": "M", "type": "something_new", "priority": "urgent"}]}`

	got := parseRecommendations(text, 5)
	if len(got) != 1 {
		t.Fatalf("parsed %d items, want 1 (unknown vocabulary must not drop the item)", len(got))
	}
	if got[0].Type != core.TypeBehavioralInsight {
		t.Errorf("type = %s, want behavioral_insight fallback", got[0].Type)
	}
	if got[0].Priority != core.PriorityMedium {
		t.Errorf("priority = %d, want medium fallback", got[0].Priority)
	}
}

func TestParseRecommendations_DropsIncompleteItems(t *testing.T) {
	text := `{"recommendations": [
		{"title": "", "message": "no title"},
		{"title": "no message", "message": "   "},
		{"title": "Keep", "message": "Has both fields."}
	]}`

	got := parseRecommendations(text, 5)
	if len(got) != 1 || got[0].Title != "Keep" {
		t.Fatalf("parsed %+v, want only the complete item", got)
	}
}

func TestParseRecommendations_Malformed(t *testing.T) {
	for _, text := range []string{
		"",
		"no json here at all",
		"{not valid json}",
		`{"recommendations": "oops"}`,
	} {
		if got := parseRecommendations(text, 5); len(got) != 0 {
			t.Errorf("parseRecommendations(%q) = %+v, want empty", text, got)
		}
	}
}

func TestParseRecommendations_EmptyListAllowed(t *testing.T) {
	if got := parseRecommendations(`{"recommendations": []}`, 5); len(got) != 0 {
		t.Errorf("expected empty result for empty list, got %+v", got)
	}
}

func TestParseRecommendations_CapsAtMax(t *testing.T) {
	text := `{"recommendations": [
		{"title": "1", "message": "m"},
		{"title": "2", "message": "m"},
		{"title": "3", "message": "m"},
		{"title": "4", "message": "m"}
	]}`

	got := parseRecommendations(text, 2)
	if len(got) != 2 {
		t.Fatalf("parsed %d items, want cap of 2", len(got))
	}
	if got[0].Title != "1" || got[1].Title != "2" {
		t.Errorf("cap must keep the leading items, got %+v", got)
	}
}
