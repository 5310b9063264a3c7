// Package index wraps chromem-go, a pure Go embedded vector database, as
// the storage backend for transaction embeddings. Each user gets their own
// collection so similarity queries never cross user boundaries.
package index

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Entry is one indexed transaction vector with its display metadata.
type Entry struct {
	ID        string
	UserID    string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Hit is one similarity match, most similar having the highest score.
type Hit struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// Index holds per-user vector collections.
type Index struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// New creates an empty in-memory index.
func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (ix *Index) collection(userID string) (*chromem.Collection, error) {
	ix.mu.RLock()
	col, exists := ix.collections[userID]
	ix.mu.RUnlock()
	if exists {
		return col, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if col, exists := ix.collections[userID]; exists {
		return col, nil
	}

	// Embeddings are computed upstream, so no embedding func; the default
	// distance is cosine, which is what the ranking contract requires.
	col, err := ix.db.CreateCollection(fmt.Sprintf("user_%s", userID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	ix.collections[userID] = col
	return col, nil
}

// Add stores an entry in its user's collection. Adding the same ID again
// replaces the previous document.
func (ix *Index) Add(ctx context.Context, e Entry) error {
	col, err := ix.collection(e.UserID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        e.ID,
		Content:   e.Content,
		Embedding: e.Embedding,
		Metadata:  e.Metadata,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Count returns how many entries a user's collection holds.
func (ix *Index) Count(userID string) int {
	ix.mu.RLock()
	col, exists := ix.collections[userID]
	ix.mu.RUnlock()
	if !exists {
		return 0
	}
	return col.Count()
}

// Query returns up to limit hits from the user's collection ranked by
// cosine similarity, most similar first.
func (ix *Index) Query(ctx context.Context, userID string, embedding []float32, limit int) ([]Hit, error) {
	col, err := ix.collection(userID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection, so shrink the
	// request until it fits; an empty collection yields no hits.
	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		results, err = col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err == nil {
			break
		}
		if isTooFewDocsError(err) {
			if n == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("query collection: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		})
	}
	return hits, nil
}

func isTooFewDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
