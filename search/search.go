// Package search ranks a user's transactions by semantic similarity to a
// free-text query, working entirely off pre-computed embeddings.
package search

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/ledgerwise/advisor/search/index"
)

// Match is one search result, most similar first in a result list.
type Match struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Account     string    `json:"account"`
	Similarity  float32   `json:"similarity"`
}

// Engine answers semantic search queries against the transaction index.
type Engine struct {
	embedder Embedder
	index    *index.Index
	queries  *ristretto.Cache
}

// NewEngine creates a search engine over the given index. Query embeddings
// are cached so repeated tool calls with the same query cost one provider
// round-trip.
func NewEngine(embedder Embedder, ix *index.Index) (*Engine, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     8 << 20, // 8 MiB of cached vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{embedder: embedder, index: ix, queries: cache}, nil
}

// Search returns up to limit of the user's transactions most semantically
// similar to query, most similar first.
//
// Only transactions whose embeddings have already been computed are
// visible. If the embedding provider is unavailable the result set is
// empty rather than an error: callers already treat "no matches" as a
// valid outcome.
func (e *Engine) Search(ctx context.Context, userID, query string, limit int) ([]Match, error) {
	embedding, err := e.queryEmbedding(ctx, query)
	if err != nil {
		log.Printf("[SEARCH] user=%s query embedding failed: %v", userID, err)
		return nil, nil
	}

	hits, err := e.index.Query(ctx, userID, embedding, limit)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, matchFromHit(h))
	}
	return matches, nil
}

func (e *Engine) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := e.queries.Get(query); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	e.queries.Set(query, vec, int64(len(vec)*4))
	return vec, nil
}

func matchFromHit(h index.Hit) Match {
	m := Match{
		ID:          h.ID,
		Description: h.Metadata["description"],
		Category:    h.Metadata["category"],
		Account:     h.Metadata["account"],
		Similarity:  h.Similarity,
	}
	if raw, ok := h.Metadata["date"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			m.Date = t
		}
	}
	if raw, ok := h.Metadata["amount"]; ok {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			m.Amount = f
		}
	}
	return m
}
