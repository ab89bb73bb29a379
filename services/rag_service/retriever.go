package rag_service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/serisow/docchat/pipeline_type"
	"github.com/serisow/docchat/services/embedding_service"
	"github.com/serisow/docchat/storage"
)

// Retriever embeds a question and finds the most similar chunks within
// one document. Errors from the embedder or store propagate as-is;
// retries live inside those components.
type Retriever struct {
	embedder embedding_service.Client
	store    storage.ChunkStore
	defaultK int
	logger   *slog.Logger
}

func NewRetriever(embedder embedding_service.Client, store storage.ChunkStore, defaultK int, logger *slog.Logger) *Retriever {
	if defaultK < 1 {
		defaultK = 3
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		defaultK: defaultK,
		logger:   logger,
	}
}

// Retrieve returns up to k chunks of documentID ranked by similarity to
// the question. k <= 0 selects the configured default.
func (r *Retriever) Retrieve(ctx context.Context, documentID, question string, k int) ([]pipeline_type.RetrievedChunk, error) {
	if k <= 0 {
		k = r.defaultK
	}

	embedding, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := r.store.Search(ctx, documentID, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	r.logger.Debug("Retrieved chunks for question",
		slog.String("document_id", documentID),
		slog.Int("k", k),
		slog.Int("result_count", len(results)))

	return results, nil
}
