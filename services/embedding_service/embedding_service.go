package embedding_service

import "context"

// Client maps a text chunk to a fixed-dimension vector. Embeddings for
// identical text are stable for a given model version.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
