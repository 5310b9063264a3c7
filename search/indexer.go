package search

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ledgerwise/advisor/core"
	"github.com/ledgerwise/advisor/search/index"
	"github.com/ledgerwise/advisor/store"
)

// Indexer embeds freshly imported transactions in the background and keeps
// the vector index in sync with the store. Newly imported rows stay
// invisible to search until a pass has embedded them; search never embeds
// on demand.
type Indexer struct {
	txs      store.TransactionStore
	embedder Embedder
	index    *index.Index

	interval  time.Duration
	batchSize int
}

// NewIndexer creates an indexer that polls for un-embedded transactions.
func NewIndexer(txs store.TransactionStore, embedder Embedder, ix *index.Index) *Indexer {
	return &Indexer{
		txs:       txs,
		embedder:  embedder,
		index:     ix,
		interval:  time.Minute,
		batchSize: 50,
	}
}

// Warm loads every already-embedded transaction from the store into the
// in-memory index. Called once at startup before serving searches.
func (ix *Indexer) Warm(ctx context.Context) error {
	embedded, err := ix.txs.ListEmbedded(ctx)
	if err != nil {
		return fmt.Errorf("load embedded transactions: %w", err)
	}
	for _, et := range embedded {
		if err := ix.index.Add(ctx, indexEntry(et.Transaction, et.Embedding)); err != nil {
			return fmt.Errorf("index transaction %s: %w", et.ID, err)
		}
	}
	log.Printf("[INDEX] warmed index with %d transactions", len(embedded))
	return nil
}

// RunOnce embeds one batch of un-embedded transactions. It returns how many
// were indexed; a single failed row is logged and skipped so one bad record
// cannot stall the pipeline.
func (ix *Indexer) RunOnce(ctx context.Context) (int, error) {
	pending, err := ix.txs.ListUnembedded(ctx, ix.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unembedded: %w", err)
	}

	indexed := 0
	for _, t := range pending {
		vec, err := ix.embedder.Embed(ctx, EmbedText(t))
		if err != nil {
			// Provider outage: stop the pass, the next tick retries.
			return indexed, fmt.Errorf("embed transaction %s: %w", t.ID, err)
		}
		if err := ix.txs.SaveEmbedding(ctx, t.ID, vec); err != nil {
			log.Printf("[INDEX] save embedding for %s failed: %v", t.ID, err)
			continue
		}
		if err := ix.index.Add(ctx, indexEntry(t, vec)); err != nil {
			log.Printf("[INDEX] index %s failed: %v", t.ID, err)
			continue
		}
		indexed++
	}
	return indexed, nil
}

// Start runs the indexer loop until ctx is cancelled.
func (ix *Indexer) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(ix.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := ix.RunOnce(ctx)
				if err != nil {
					log.Printf("[INDEX] pass failed after %d transactions: %v", n, err)
					continue
				}
				if n > 0 {
					log.Printf("[INDEX] embedded %d transactions", n)
				}
			}
		}
	}()
}

// EmbedText is the canonical text representation of a transaction for
// embedding. Query vectors and transaction vectors must come from the same
// text shape to live in the same space.
func EmbedText(t core.Transaction) string {
	return fmt.Sprintf("%s | %s | %s", t.Description, t.Category, t.Account)
}

func indexEntry(t core.Transaction, vec []float32) index.Entry {
	return index.Entry{
		ID:        t.ID,
		UserID:    t.UserID,
		Content:   EmbedText(t),
		Embedding: vec,
		Metadata: map[string]string{
			"date":        t.Date.UTC().Format(time.RFC3339),
			"description": t.Description,
			"amount":      strconv.FormatFloat(t.Amount, 'f', -1, 64),
			"category":    t.Category,
			"account":     t.Account,
		},
	}
}
