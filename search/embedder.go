package search

import "context"

// Embedder converts text into a fixed-dimension vector. Implementations
// live under search/embedder; production uses an OpenAI-compatible HTTP
// service, tests use a deterministic mock.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}
