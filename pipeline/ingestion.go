package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/serisow/docchat/pipeline_type"
	"github.com/serisow/docchat/services/embedding_service"
	"github.com/serisow/docchat/services/ocr_service"
	"github.com/serisow/docchat/services/rag_service"
	"github.com/serisow/docchat/services/raster_service"
	"github.com/serisow/docchat/storage"
)

type Rasterizer interface {
	Rasterize(data []byte) ([]raster_service.PageImage, error)
	TextLayer(data []byte) map[int]string
}

type TextExtractor interface {
	ExtractText(filename string, data []byte) (string, error)
}

// Prevent two ingestion runs from appending chunks to the same document
// concurrently; page and position numbering depends on it.
var runningIngestions sync.Map

// Ingestor drives one document through rasterization, OCR, chunking,
// embedding and persistence. Ingestions of distinct documents run
// concurrently; a second run for the same document id is rejected.
type Ingestor struct {
	rasterizer     Rasterizer
	recognizer     ocr_service.Recognizer
	extractor      TextExtractor
	embedder       embedding_service.Client
	chunker        *rag_service.Chunker
	documents      storage.DocumentStore
	chunks         storage.ChunkStore
	ocrConcurrency int
	logger         *slog.Logger
}

func NewIngestor(
	rasterizer Rasterizer,
	recognizer ocr_service.Recognizer,
	extractor TextExtractor,
	embedder embedding_service.Client,
	chunker *rag_service.Chunker,
	documents storage.DocumentStore,
	chunks storage.ChunkStore,
	ocrConcurrency int,
	logger *slog.Logger,
) *Ingestor {
	if ocrConcurrency < 1 {
		ocrConcurrency = 1
	}
	return &Ingestor{
		rasterizer:     rasterizer,
		recognizer:     recognizer,
		extractor:      extractor,
		embedder:       embedder,
		chunker:        chunker,
		documents:      documents,
		chunks:         chunks,
		ocrConcurrency: ocrConcurrency,
		logger:         logger,
	}
}

// Ingest runs the full ingestion path for one uploaded document. On any
// terminal error, including cancellation, the document ends in failed
// status with a human-readable reason; it ends ready only when every
// page has been persisted.
func (in *Ingestor) Ingest(ctx context.Context, doc pipeline_type.Document, content []byte) error {
	if _, loaded := runningIngestions.LoadOrStore(doc.ID, struct{}{}); loaded {
		return pipeline_type.ErrIngestionRunning
	}
	defer runningIngestions.Delete(doc.ID)

	if err := in.documents.SetStatus(ctx, doc.ID, pipeline_type.StatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark document processing: %w", err)
	}

	if err := in.run(ctx, doc, content); err != nil {
		in.logger.Error("Ingestion failed",
			slog.String("document_id", doc.ID),
			slog.String("filename", doc.Filename),
			slog.String("error", err.Error()))

		// Record the failure even when ctx itself was cancelled.
		statusCtx := context.WithoutCancel(ctx)
		if statusErr := in.documents.SetStatus(statusCtx, doc.ID, pipeline_type.StatusFailed, err.Error()); statusErr != nil {
			in.logger.Error("Failed to record failed status",
				slog.String("document_id", doc.ID),
				slog.String("error", statusErr.Error()))
		}
		return err
	}

	if err := in.documents.SetStatus(ctx, doc.ID, pipeline_type.StatusReady, ""); err != nil {
		return fmt.Errorf("failed to mark document ready: %w", err)
	}

	in.logger.Info("Ingestion complete",
		slog.String("document_id", doc.ID),
		slog.String("filename", doc.Filename))
	return nil
}

func (in *Ingestor) run(ctx context.Context, doc pipeline_type.Document, content []byte) error {
	var pages []pipeline_type.Page
	var err error

	ext := strings.ToLower(filepath.Ext(doc.Filename))
	if ext == ".pdf" {
		pages, err = in.extractPDFPages(ctx, doc.ID, content)
	} else {
		pages, err = in.extractTextPages(doc, content)
	}
	if err != nil {
		return err
	}

	if err := in.documents.SetPageCount(ctx, doc.ID, len(pages)); err != nil {
		return err
	}

	return in.persistPages(ctx, doc.ID, pages)
}

// extractPDFPages rasterizes the document, then recognizes every page
// that lacks an embedded text layer. OCR calls run concurrently with a
// bounded limit; nothing is persisted here, so an OCR failure on any
// page leaves no partial page data behind.
func (in *Ingestor) extractPDFPages(ctx context.Context, documentID string, content []byte) ([]pipeline_type.Page, error) {
	images, err := in.rasterizer.Rasterize(content)
	if err != nil {
		return nil, err
	}

	layers := in.rasterizer.TextLayer(content)

	pages := make([]pipeline_type.Page, len(images))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(in.ocrConcurrency)

	for i, img := range images {
		if text, ok := layers[img.PageNumber]; ok {
			pages[i] = pipeline_type.Page{
				DocumentID: documentID,
				PageNumber: img.PageNumber,
				Content:    text,
				Confidence: 1.0,
			}
			continue
		}

		eg.Go(func() error {
			result, err := in.recognizer.Recognize(gctx, img.JPEG, img.PageNumber)
			if err != nil {
				return fmt.Errorf("OCR failed on page %d: %w", img.PageNumber, err)
			}
			pages[i] = pipeline_type.Page{
				DocumentID: documentID,
				PageNumber: img.PageNumber,
				Content:    result.Text,
				Confidence: result.Confidence,
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// extractTextPages handles the non-PDF branch: Word and plain-text
// uploads become a single page with full confidence.
func (in *Ingestor) extractTextPages(doc pipeline_type.Document, content []byte) ([]pipeline_type.Page, error) {
	text, err := in.extractor.ExtractText(doc.Filename, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline_type.ErrInvalidDocument, err)
	}
	return []pipeline_type.Page{
		{
			DocumentID: doc.ID,
			PageNumber: 1,
			Content:    text,
			Confidence: 1.0,
		},
	}, nil
}

// persistPages chunks, embeds and stores pages strictly in page order,
// one transaction per page. A chunk over the embedding input limit is
// skipped and counted; any other error aborts the run.
func (in *Ingestor) persistPages(ctx context.Context, documentID string, pages []pipeline_type.Page) error {
	skipped := 0

	for _, page := range pages {
		var chunks []pipeline_type.Chunk
		for position, text := range in.chunker.Chunks(page.Content) {
			if strings.TrimSpace(text) == "" {
				continue
			}

			embedding, err := in.embedder.Embed(ctx, text)
			if errors.Is(err, pipeline_type.ErrChunkTooLarge) {
				skipped++
				in.logger.Warn("Skipping oversized chunk",
					slog.String("document_id", documentID),
					slog.Int("page_number", page.PageNumber),
					slog.Int("position", position),
					slog.Int("chunk_chars", len([]rune(text))))
				continue
			}
			if err != nil {
				return fmt.Errorf("embedding failed on page %d: %w", page.PageNumber, err)
			}

			chunks = append(chunks, pipeline_type.Chunk{
				DocumentID: documentID,
				PageNumber: page.PageNumber,
				Position:   position,
				Content:    text,
				Embedding:  embedding,
			})
		}

		if err := in.chunks.InsertPage(ctx, page, chunks); err != nil {
			return fmt.Errorf("failed to persist page %d: %w", page.PageNumber, err)
		}
	}

	if skipped > 0 {
		if err := in.documents.AddSkippedChunks(ctx, documentID, skipped); err != nil {
			return err
		}
	}
	return nil
}
