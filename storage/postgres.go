package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/serisow/docchat/pipeline_type"
)

// PostgresStore is the durable ChunkStore and DocumentStore backed by
// pgvector. Dimensions is fixed at construction and checked on every
// insert and query.
type PostgresStore struct {
	db         *pgxpool.Pool
	dimensions int
	logger     *slog.Logger
}

func NewPostgresStore(db *pgxpool.Pool, dimensions int, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:         db,
		dimensions: dimensions,
		logger:     logger,
	}
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc *pipeline_type.Document) error {
	query := `INSERT INTO documents (id, filename, page_count, status, created_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.Exec(ctx, query, doc.ID, doc.Filename, doc.PageCount, doc.Status, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*pipeline_type.Document, error) {
	query := `SELECT id, filename, page_count, status, skipped_chunks, error, created_at
	          FROM documents WHERE id = $1`
	var doc pipeline_type.Document
	err := s.db.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.Filename, &doc.PageCount, &doc.Status,
		&doc.SkippedChunks, &doc.Error, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pipeline_type.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return &doc, nil
}

// SetStatus applies a status transition. The WHERE clause admits only
// the legal predecessors, so an illegal or repeated transition affects
// zero rows and is rejected.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status pipeline_type.DocumentStatus, reason string) error {
	var allowedFrom []string
	switch status {
	case pipeline_type.StatusProcessing:
		allowedFrom = []string{string(pipeline_type.StatusPending)}
	case pipeline_type.StatusReady:
		allowedFrom = []string{string(pipeline_type.StatusProcessing)}
	case pipeline_type.StatusFailed:
		allowedFrom = []string{string(pipeline_type.StatusPending), string(pipeline_type.StatusProcessing)}
	default:
		return fmt.Errorf("illegal target status %q", status)
	}

	query := `UPDATE documents SET status = $2, error = $3 WHERE id = $1 AND status = ANY($4)`
	tag, err := s.db.Exec(ctx, query, id, status, reason, allowedFrom)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("illegal status transition to %q for document %s", status, id)
	}
	return nil
}

func (s *PostgresStore) SetPageCount(ctx context.Context, id string, pageCount int) error {
	_, err := s.db.Exec(ctx, `UPDATE documents SET page_count = $2 WHERE id = $1`, id, pageCount)
	if err != nil {
		return fmt.Errorf("failed to update page count: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddSkippedChunks(ctx context.Context, id string, n int) error {
	_, err := s.db.Exec(ctx, `UPDATE documents SET skipped_chunks = skipped_chunks + $2 WHERE id = $1`, id, n)
	if err != nil {
		return fmt.Errorf("failed to update skipped chunk count: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertPage(ctx context.Context, page pipeline_type.Page, chunks []pipeline_type.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.dimensions {
			return &pipeline_type.DimensionMismatchError{
				Want: s.dimensions,
				Got:  len(chunk.Embedding),
			}
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO pages (document_id, page_number, content, confidence) VALUES ($1, $2, $3, $4)`,
		page.DocumentID, page.PageNumber, page.Content, page.Confidence)
	if err != nil {
		return fmt.Errorf("failed to insert page %d: %w", page.PageNumber, err)
	}

	for _, chunk := range chunks {
		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (document_id, page_number, position, content, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			chunk.DocumentID, chunk.PageNumber, chunk.Position, chunk.Content,
			pgvector.NewVector(chunk.Embedding))
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d of page %d: %w",
				chunk.Position, page.PageNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit page %d: %w", page.PageNumber, err)
	}

	s.logger.Debug("Persisted page",
		slog.String("document_id", page.DocumentID),
		slog.Int("page_number", page.PageNumber),
		slog.Int("chunk_count", len(chunks)))
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, documentID string, embedding []float32, k int) ([]pipeline_type.RetrievedChunk, error) {
	if len(embedding) != s.dimensions {
		return nil, &pipeline_type.DimensionMismatchError{
			Want: s.dimensions,
			Got:  len(embedding),
		}
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	query := `
		SELECT id, page_number, position, content, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE document_id = $2
		ORDER BY embedding <=> $1, page_number, position
		LIMIT $3`
	rows, err := s.db.Query(ctx, query, pgvector.NewVector(embedding), documentID, k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer rows.Close()

	results := make([]pipeline_type.RetrievedChunk, 0, k)
	for rows.Next() {
		var result pipeline_type.RetrievedChunk
		err := rows.Scan(&result.ChunkID, &result.PageNumber, &result.Position,
			&result.Content, &result.Similarity)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}

	return results, nil
}

func (s *PostgresStore) ChunkCount(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
