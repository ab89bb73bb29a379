package pipeline_type

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// allowedTransitions encodes the monotonic status machine:
// pending -> processing -> ready|failed, with pending -> failed for
// documents rejected before processing starts.
var allowedTransitions = map[DocumentStatus][]DocumentStatus{
	StatusProcessing: {StatusPending},
	StatusReady:      {StatusProcessing},
	StatusFailed:     {StatusPending, StatusProcessing},
}

// CanTransition reports whether a document may move from its current
// status to the target one. Reaching ready or failed is terminal.
func (s DocumentStatus) CanTransition(to DocumentStatus) bool {
	for _, from := range allowedTransitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

type Document struct {
	ID            string         `json:"document_id"`
	Filename      string         `json:"filename"`
	PageCount     int            `json:"page_count"`
	Status        DocumentStatus `json:"status"`
	SkippedChunks int            `json:"skipped_chunks"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Page holds the OCR output for one page of a document. Immutable once
// persisted. Confidence is the recognizer's score in [0,1]; pages taken
// from an embedded text layer carry 1.0.
type Page struct {
	DocumentID string  `json:"document_id"`
	PageNumber int     `json:"page_number"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

// Chunk is the unit of embedding and retrieval: a bounded span of one
// page's text plus its vector. Position is the chunk's order within the
// page.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID string    `json:"document_id"`
	PageNumber int       `json:"page_number"`
	Position   int       `json:"position"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

type RetrievedChunk struct {
	ChunkID    int64   `json:"chunk_id"`
	PageNumber int     `json:"page_number"`
	Position   int     `json:"position"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}
