package pipeline_type

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDocument is returned for corrupt or unparsable PDF bytes.
	ErrInvalidDocument = errors.New("invalid or unparsable document")

	// ErrEmptyDocument is returned for a well-formed PDF with zero pages.
	ErrEmptyDocument = errors.New("document has no pages")

	// ErrChunkTooLarge is returned when a chunk exceeds the embedding
	// model's input limit. The offending chunk is skipped, not truncated.
	ErrChunkTooLarge = errors.New("chunk exceeds embedding input limit")

	// ErrIngestionRunning is returned when a second ingestion run is
	// started for a document whose first run has not finished.
	ErrIngestionRunning = errors.New("ingestion already running for this document")

	// ErrDocumentNotFound is returned by stores for unknown document ids.
	ErrDocumentNotFound = errors.New("document not found")
)

// DimensionMismatchError signals a fatal configuration error: an
// embedding whose dimension differs from the store's configured one.
// Never retried.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: store expects %d, got %d", e.Want, e.Got)
}

// ServiceError wraps a failed call to an external service (OCR,
// embedding, generation). These are transient conditions, retried with
// bounded backoff at the component boundary before surfacing.
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
	RawBody    string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s service error (HTTP %d): %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s service error: %s", e.Service, e.Message)
}

// Retryable reports whether err is a transient external-service failure.
// Structural failures (invalid document, chunk too large, dimension
// mismatch) are not retried.
func Retryable(err error) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr)
}
