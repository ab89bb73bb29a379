package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/serisow/docchat/pipeline_type"
)

// MemoryStore implements ChunkStore and DocumentStore in process with
// the same semantics as PostgresStore: per-page atomic visibility,
// document-scoped cosine ranking, fixed dimensions. Used in tests and
// for running without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	dimensions  int
	documents   map[string]*pipeline_type.Document
	pages       map[string][]pipeline_type.Page
	chunks      map[string][]pipeline_type.Chunk
	nextChunkID int64
}

func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		dimensions:  dimensions,
		documents:   make(map[string]*pipeline_type.Document),
		pages:       make(map[string][]pipeline_type.Page),
		chunks:      make(map[string][]pipeline_type.Chunk),
		nextChunkID: 1,
	}
}

func (s *MemoryStore) CreateDocument(ctx context.Context, doc *pipeline_type.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	copied := *doc
	s.documents[doc.ID] = &copied
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*pipeline_type.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, pipeline_type.ErrDocumentNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id string, status pipeline_type.DocumentStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return pipeline_type.ErrDocumentNotFound
	}
	if !doc.Status.CanTransition(status) {
		return fmt.Errorf("illegal status transition %q -> %q for document %s", doc.Status, status, id)
	}
	doc.Status = status
	doc.Error = reason
	return nil
}

func (s *MemoryStore) SetPageCount(ctx context.Context, id string, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return pipeline_type.ErrDocumentNotFound
	}
	doc.PageCount = pageCount
	return nil
}

func (s *MemoryStore) AddSkippedChunks(ctx context.Context, id string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return pipeline_type.ErrDocumentNotFound
	}
	doc.SkippedChunks += n
	return nil
}

func (s *MemoryStore) InsertPage(ctx context.Context, page pipeline_type.Page, chunks []pipeline_type.Chunk) error {
	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.dimensions {
			return &pipeline_type.DimensionMismatchError{
				Want: s.dimensions,
				Got:  len(chunk.Embedding),
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.pages[page.DocumentID] {
		if existing.PageNumber == page.PageNumber {
			return fmt.Errorf("page %d of document %s already persisted", page.PageNumber, page.DocumentID)
		}
	}

	s.pages[page.DocumentID] = append(s.pages[page.DocumentID], page)
	for _, chunk := range chunks {
		chunk.ID = s.nextChunkID
		s.nextChunkID++
		s.chunks[page.DocumentID] = append(s.chunks[page.DocumentID], chunk)
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, documentID string, embedding []float32, k int) ([]pipeline_type.RetrievedChunk, error) {
	if len(embedding) != s.dimensions {
		return nil, &pipeline_type.DimensionMismatchError{
			Want: s.dimensions,
			Got:  len(embedding),
		}
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.chunks[documentID]
	results := make([]pipeline_type.RetrievedChunk, 0, len(chunks))
	for _, chunk := range chunks {
		results = append(results, pipeline_type.RetrievedChunk{
			ChunkID:    chunk.ID,
			PageNumber: chunk.PageNumber,
			Position:   chunk.Position,
			Content:    chunk.Content,
			Similarity: cosineSimilarity(embedding, chunk.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].PageNumber != results[j].PageNumber {
			return results[i].PageNumber < results[j].PageNumber
		}
		return results[i].Position < results[j].Position
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) ChunkCount(ctx context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks[documentID]), nil
}

// Pages returns the persisted pages of a document in page order. Test
// helper; the query path does not read pages.
func (s *MemoryStore) Pages(documentID string) []pipeline_type.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := append([]pipeline_type.Page(nil), s.pages[documentID]...)
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})
	return pages
}
