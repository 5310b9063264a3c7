package store

import (
	"context"
	"time"

	"github.com/ledgerwise/advisor/core"
)

// TransactionFilter narrows a transaction read.
// Zero values mean "no constraint".
type TransactionFilter struct {
	UserID   string
	Category string
	From     time.Time // inclusive
	To       time.Time // exclusive
	Text     string    // substring match on description
	Limit    int
}

// EmbeddedTransaction is a transaction together with its stored vector.
type EmbeddedTransaction struct {
	core.Transaction
	Embedding []float32
}

// TransactionStore is the read side of the transaction data this core
// consumes, plus the embedding bookkeeping the indexer needs. The import
// pipeline that fills the table lives outside this module.
type TransactionStore interface {
	// List returns transactions matching the filter, newest first.
	List(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)

	// CountForUser returns how many transactions a user has.
	CountForUser(ctx context.Context, userID string) (int, error)

	// LatestImportAt returns when the user's newest transaction was stored.
	// The zero time means the user has no transactions.
	LatestImportAt(ctx context.Context, userID string) (time.Time, error)

	// DistinctUserIDs returns every user with at least one transaction.
	DistinctUserIDs(ctx context.Context) ([]string, error)

	// ListUnembedded returns up to limit transactions that have no stored
	// embedding yet, oldest first.
	ListUnembedded(ctx context.Context, limit int) ([]core.Transaction, error)

	// ListEmbedded returns every transaction with a stored embedding.
	ListEmbedded(ctx context.Context) ([]EmbeddedTransaction, error)

	// SaveEmbedding persists the vector for a transaction.
	SaveEmbedding(ctx context.Context, txID string, vector []float32) error
}

// RecommendationStore holds generated recommendations through their
// active/expired lifecycle.
type RecommendationStore interface {
	// ReplaceActiveBatch expires the user's current active batch, inserts
	// recs as the new active batch, and records the generation time, all in
	// one transaction. Callers must not pass an empty batch.
	ReplaceActiveBatch(ctx context.Context, userID string, recs []core.Recommendation) error

	// ActiveForUser returns up to limit active, unexpired recommendations,
	// highest priority first, then most recent first.
	ActiveForUser(ctx context.Context, userID string, limit int) ([]core.Recommendation, error)

	// LastGeneratedAt returns when the user's last batch was written.
	// The zero time means no batch has ever been written.
	LastGeneratedAt(ctx context.Context, userID string) (time.Time, error)

	// ExpireOverdue flips active recommendations whose expiry has passed to
	// expired and reports how many rows changed.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)

	// PurgeOlderThan hard-deletes recommendations generated before cutoff,
	// regardless of status, and reports how many rows were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
