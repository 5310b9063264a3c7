// Package advisor runs the recommendation agent: a bounded tool-calling
// conversation that investigates one user's transactions and persists the
// resulting recommendation batch.
package advisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerwise/advisor/core"
	"github.com/ledgerwise/advisor/engine"
	"github.com/ledgerwise/advisor/store"
)

const (
	defaultMinTransactions    = 5
	defaultMaxRecommendations = 5
	defaultBatchTTL           = 7 * 24 * time.Hour
)

// Config tunes the agent. Zero values fall back to defaults.
type Config struct {
	// MinTransactions is the minimum history size before a run is worth it.
	MinTransactions int

	// MaxRecommendations caps how many items one batch may hold.
	MaxRecommendations int

	// BatchTTL is how long a fresh batch stays active.
	BatchTTL time.Duration
}

// Agent generates recommendation batches, one user at a time.
type Agent struct {
	engine *engine.Engine
	txs    store.TransactionStore
	recs   store.RecommendationStore
	cfg    Config

	now func() time.Time
}

// New creates an agent.
func New(eng *engine.Engine, txs store.TransactionStore, recs store.RecommendationStore, cfg Config) *Agent {
	if cfg.MinTransactions == 0 {
		cfg.MinTransactions = defaultMinTransactions
	}
	if cfg.MaxRecommendations == 0 {
		cfg.MaxRecommendations = defaultMaxRecommendations
	}
	if cfg.BatchTTL == 0 {
		cfg.BatchTTL = defaultBatchTTL
	}
	return &Agent{
		engine: eng,
		txs:    txs,
		recs:   recs,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Generate runs the agent for one user and replaces their active batch on
// success. It returns the new batch, or nil when the run was skipped or
// produced nothing usable; only infrastructure failures return an error.
func (a *Agent) Generate(ctx context.Context, userID string) ([]core.Recommendation, error) {
	proceed, err := a.shouldGenerate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !proceed {
		return nil, nil
	}

	result, err := a.engine.Run(ctx, &engine.RunInput{
		UserID:       userID,
		SystemPrompt: buildSystemPrompt(a.now().UTC()),
		UserPrompt:   investigationPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("agent run for %s: %w", userID, err)
	}

	switch result.Cause {
	case engine.CauseCompleted:
		// Fall through to parsing.
	case engine.CauseRefused:
		// Distinct from "no useful output" so refusals are visible in logs.
		log.Printf("[ADVISOR] user=%s run refused by provider, no batch written", userID)
		return nil, nil
	default:
		log.Printf("[ADVISOR] user=%s run ended without result (%s) after %d turns", userID, result.Cause, result.Turns)
		return nil, nil
	}

	parsed := parseRecommendations(result.Text, a.cfg.MaxRecommendations)
	if len(parsed) == 0 {
		log.Printf("[ADVISOR] user=%s run produced no usable recommendations", userID)
		return nil, nil
	}

	now := a.now().UTC()
	batch := make([]core.Recommendation, 0, len(parsed))
	for _, p := range parsed {
		batch = append(batch, core.Recommendation{
			ID:          uuid.New().String(),
			UserID:      userID,
			Title:       p.Title,
			Message:     p.Message,
			Type:        p.Type,
			Priority:    p.Priority,
			GeneratedAt: now,
			ExpiresAt:   now.Add(a.cfg.BatchTTL),
			Status:      core.StatusActive,
		})
	}

	if err := a.recs.ReplaceActiveBatch(ctx, userID, batch); err != nil {
		return nil, fmt.Errorf("persist batch for %s: %w", userID, err)
	}

	log.Printf("[ADVISOR] user=%s wrote %d recommendations (%d turns, %d tool calls)",
		userID, len(batch), result.Turns, len(result.ToolCalls))
	return batch, nil
}

// shouldGenerate applies the preconditions that keep pointless runs from
// ever reaching the provider: enough history, and new data since the last
// written batch.
func (a *Agent) shouldGenerate(ctx context.Context, userID string) (bool, error) {
	count, err := a.txs.CountForUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("count transactions for %s: %w", userID, err)
	}
	if count < a.cfg.MinTransactions {
		log.Printf("[ADVISOR] user=%s skipped: %d transactions, need %d", userID, count, a.cfg.MinTransactions)
		return false, nil
	}

	lastRun, err := a.recs.LastGeneratedAt(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("last generation for %s: %w", userID, err)
	}
	if lastRun.IsZero() {
		return true, nil
	}

	latestImport, err := a.txs.LatestImportAt(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("latest import for %s: %w", userID, err)
	}
	if !latestImport.After(lastRun) {
		log.Printf("[ADVISOR] user=%s skipped: no new transactions since %s", userID, lastRun.Format(time.RFC3339))
		return false, nil
	}
	return true, nil
}
