package advisor

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/ledgerwise/advisor/core"
)

type recommendationPayload struct {
	Recommendations []recommendationItem `json:"recommendations"`
}

type recommendationItem struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Type     string `json:"type"`
	Priority string `json:"priority"`
}

// parsedRecommendation is a validated item before ids and timestamps are
// assigned at persistence time.
type parsedRecommendation struct {
	Title    string
	Message  string
	Type     core.RecommendationType
	Priority core.Priority
}

// parseRecommendations extracts the structured recommendation list from the
// model's final message. Models sometimes wrap the object in markdown
// fences or stray prose, so parsing works on the outermost {...} span.
//
// Unknown type/priority values fall back to safe defaults instead of
// discarding the item; items missing a title or message are dropped; a
// payload that does not parse at all yields an empty list, never an error.
func parseRecommendations(text string, max int) []parsedRecommendation {
	raw := extractObject(text)
	if raw == "" {
		log.Printf("[ADVISOR] final message contains no JSON object")
		return nil
	}

	var payload recommendationPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		log.Printf("[ADVISOR] malformed recommendation payload: %v", err)
		return nil
	}

	var out []parsedRecommendation
	for _, item := range payload.Recommendations {
		title := strings.TrimSpace(item.Title)
		message := strings.TrimSpace(item.Message)
		if title == "" || message == "" {
			continue
		}
		out = append(out, parsedRecommendation{
			Title:    title,
			Message:  message,
			Type:     core.ParseRecommendationType(item.Type),
			Priority: core.ParsePriority(item.Priority),
		})
		if len(out) == max {
			break
		}
	}
	return out
}

// extractObject returns the outermost {...} span of text, or "" if there is
// no brace pair.
func extractObject(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
