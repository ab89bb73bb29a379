package storage

import (
	"context"

	"github.com/serisow/docchat/pipeline_type"
)

// ChunkStore persists chunk/embedding pairs scoped by document and
// answers top-K similarity queries restricted to one document.
type ChunkStore interface {
	// InsertPage persists a page and all of its chunks atomically:
	// either every chunk of the page becomes visible to Search or none
	// does. Chunk ids are assigned by the store and never reused.
	InsertPage(ctx context.Context, page pipeline_type.Page, chunks []pipeline_type.Chunk) error

	// Search returns up to k chunks of the given document ranked by
	// descending cosine similarity, ties broken by page number then
	// chunk position. A document with no chunks yields an empty slice,
	// not an error.
	Search(ctx context.Context, documentID string, embedding []float32, k int) ([]pipeline_type.RetrievedChunk, error)

	// ChunkCount reports how many chunks the document has.
	ChunkCount(ctx context.Context, documentID string) (int, error)
}

// DocumentStore persists document records and their monotonic status
// transitions (pending -> processing -> ready|failed).
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *pipeline_type.Document) error
	GetDocument(ctx context.Context, id string) (*pipeline_type.Document, error)
	SetStatus(ctx context.Context, id string, status pipeline_type.DocumentStatus, reason string) error
	SetPageCount(ctx context.Context, id string, pageCount int) error
	AddSkippedChunks(ctx context.Context, id string, n int) error
}
