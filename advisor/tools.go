package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ledgerwise/advisor/core"
	"github.com/ledgerwise/advisor/search"
	"github.com/ledgerwise/advisor/store"
	"github.com/ledgerwise/advisor/tools"
)

const (
	defaultSearchResults = 10
	maxSearchResults     = 20
	topMerchantCount     = 3
)

// NewSearchTransactionsTool wraps the semantic search engine as an agent
// tool. The qualitative counterpart to get_category_spending: it discovers
// what a user spends on, the aggregation tool quantifies it.
func NewSearchTransactionsTool(engine *search.Engine) core.Tool {
	return tools.New("search_transactions").
		Description("Search the user's transactions by meaning, not keywords. Returns the transactions most semantically similar to the query, e.g. 'streaming subscriptions' also finds Netflix and Spotify charges.").
		Schema(tools.ObjectSchema(map[string]interface{}{
			"query":       tools.StringProperty("Free-text description of what to look for"),
			"max_results": tools.IntegerProperty(fmt.Sprintf("Number of transactions to return (default %d, max %d)", defaultSearchResults, maxSearchResults)),
		}, "query")).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var input struct {
				Query      string `json:"query"`
				MaxResults int    `json:"max_results"`
			}
			if err := json.Unmarshal(params.Input, &input); err != nil {
				return &core.ToolResult{Success: false, Error: fmt.Sprintf("invalid input: %v", err)}, nil
			}
			if strings.TrimSpace(input.Query) == "" {
				return &core.ToolResult{Success: false, Error: "query is required"}, nil
			}

			limit := input.MaxResults
			if limit <= 0 {
				limit = defaultSearchResults
			}
			if limit > maxSearchResults {
				limit = maxSearchResults
			}

			matches, err := engine.Search(ctx, params.UserID, input.Query, limit)
			if err != nil {
				return &core.ToolResult{Success: false, Error: fmt.Sprintf("search failed: %v", err)}, nil
			}

			if len(matches) == 0 {
				return &core.ToolResult{
					Success: true,
					Data: map[string]interface{}{
						"matches": []interface{}{},
						"count":   0,
						"message": fmt.Sprintf("No transactions matched %q.", input.Query),
					},
				}, nil
			}

			results := make([]map[string]interface{}, 0, len(matches))
			for _, m := range matches {
				results = append(results, map[string]interface{}{
					"id":          m.ID,
					"date":        m.Date.Format("2006-01-02"),
					"description": m.Description,
					"amount":      m.Amount,
					"category":    m.Category,
					"account":     m.Account,
				})
			}
			return &core.ToolResult{
				Success: true,
				Data: map[string]interface{}{
					"matches": results,
					"count":   len(results),
				},
			}, nil
		}).
		Build()
}

// NewCategorySpendingTool aggregates a user's expenses in one category over
// a preset date range.
func NewCategorySpendingTool(txs store.TransactionStore) core.Tool {
	return tools.New("get_category_spending").
		Description("Aggregate the user's spending for one category over a preset date range. Returns the total, transaction count, average transaction size and the top merchants. Only expenses count, income is ignored.").
		Schema(tools.ObjectSchema(map[string]interface{}{
			"category":   tools.StringProperty("Category to aggregate, e.g. 'Dining' or 'Groceries'"),
			"date_range": tools.StringEnumProperty(fmt.Sprintf("Date range to aggregate over (default %s)", defaultDateRange), dateRangeNames...),
		}, "category")).
		Handler(func(ctx context.Context, params *core.ToolParams) (*core.ToolResult, error) {
			var input struct {
				Category  string `json:"category"`
				DateRange string `json:"date_range"`
			}
			if err := json.Unmarshal(params.Input, &input); err != nil {
				return &core.ToolResult{Success: false, Error: fmt.Sprintf("invalid input: %v", err)}, nil
			}
			if strings.TrimSpace(input.Category) == "" {
				return &core.ToolResult{Success: false, Error: "category is required"}, nil
			}
			if input.DateRange == "" {
				input.DateRange = defaultDateRange
			}

			start, end, err := resolveDateRange(input.DateRange, time.Now())
			if err != nil {
				return &core.ToolResult{Success: false, Error: err.Error()}, nil
			}

			rows, err := txs.List(ctx, store.TransactionFilter{
				UserID:   params.UserID,
				Category: input.Category,
				From:     start,
				To:       end,
			})
			if err != nil {
				return &core.ToolResult{Success: false, Error: fmt.Sprintf("load transactions: %v", err)}, nil
			}

			summary := summarizeSpending(rows)
			data := map[string]interface{}{
				"category":            input.Category,
				"date_range":          input.DateRange,
				"start":               start.Format(time.RFC3339),
				"end":                 end.Format(time.RFC3339),
				"total_spending":      summary.Total,
				"transaction_count":   summary.Count,
				"average_transaction": summary.Average,
				"top_merchants":       summary.TopMerchants,
			}
			if summary.Count == 0 {
				data["message"] = fmt.Sprintf("No %s spending found in %s.", input.Category, input.DateRange)
			}
			return &core.ToolResult{Success: true, Data: data}, nil
		}).
		Build()
}

type merchantTotal struct {
	Merchant string  `json:"merchant"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

type spendingSummary struct {
	Total        float64
	Count        int
	Average      float64
	TopMerchants []merchantTotal
}

// summarizeSpending aggregates the expense rows (amount < 0) of a
// transaction list: absolute totals, count, average, and the top merchants
// grouped by description.
func summarizeSpending(rows []core.Transaction) spendingSummary {
	var (
		total     float64
		count     int
		merchants = make(map[string]*merchantTotal)
	)
	for _, t := range rows {
		if t.Amount >= 0 {
			continue
		}
		spent := -t.Amount
		total += spent
		count++

		m, ok := merchants[t.Description]
		if !ok {
			m = &merchantTotal{Merchant: t.Description}
			merchants[t.Description] = m
		}
		m.Total += spent
		m.Count++
	}

	summary := spendingSummary{
		Total:        round2(total),
		Count:        count,
		TopMerchants: []merchantTotal{},
	}
	if count == 0 {
		return summary
	}
	summary.Average = round2(total / float64(count))

	ranked := make([]merchantTotal, 0, len(merchants))
	for _, m := range merchants {
		m.Total = round2(m.Total)
		ranked = append(ranked, *m)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Merchant < ranked[j].Merchant
	})
	if len(ranked) > topMerchantCount {
		ranked = ranked[:topMerchantCount]
	}
	summary.TopMerchants = ranked
	return summary
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
