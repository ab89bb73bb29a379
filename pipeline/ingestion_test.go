package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/serisow/docchat/pipeline_type"
	"github.com/serisow/docchat/services/embedding_service"
	"github.com/serisow/docchat/services/ocr_service"
	"github.com/serisow/docchat/services/rag_service"
	"github.com/serisow/docchat/services/raster_service"
	"github.com/serisow/docchat/storage"
)

type fakeRasterizer struct {
	pages  []raster_service.PageImage
	layers map[int]string
	err    error
}

func (f *fakeRasterizer) Rasterize(data []byte) ([]raster_service.PageImage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

func (f *fakeRasterizer) TextLayer(data []byte) map[int]string {
	return f.layers
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(filename string, data []byte) (string, error) {
	return f.text, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedEmbedder(dimensions int) *embedding_service.MockClient {
	return &embedding_service.MockClient{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return make([]float32, dimensions), nil
		},
	}
}

type ingestorFixture struct {
	store      *storage.MemoryStore
	rasterizer *fakeRasterizer
	recognizer *ocr_service.MockRecognizer
	extractor  *fakeExtractor
	embedder   *embedding_service.MockClient
	ingestor   *Ingestor
}

func newIngestorFixture(t *testing.T, dimensions int) *ingestorFixture {
	t.Helper()

	chunker, err := rag_service.NewChunker(1200, 100)
	if err != nil {
		t.Fatalf("failed to build chunker: %v", err)
	}

	f := &ingestorFixture{
		store:      storage.NewMemoryStore(dimensions),
		rasterizer: &fakeRasterizer{},
		recognizer: &ocr_service.MockRecognizer{},
		extractor:  &fakeExtractor{},
		embedder:   fixedEmbedder(dimensions),
	}
	f.ingestor = NewIngestor(
		f.rasterizer, f.recognizer, f.extractor, f.embedder, chunker,
		f.store, f.store, 4, testLogger(),
	)
	return f
}

func (f *ingestorFixture) createDocument(t *testing.T, id, filename string) pipeline_type.Document {
	t.Helper()
	doc := pipeline_type.Document{
		ID:        id,
		Filename:  filename,
		Status:    pipeline_type.StatusPending,
		CreatedAt: time.Now(),
	}
	if err := f.store.CreateDocument(context.Background(), &doc); err != nil {
		t.Fatalf("failed to create document: %v", err)
	}
	return doc
}

func TestIngestor_TwoPagePDF(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.rasterizer.pages = []raster_service.PageImage{
		{PageNumber: 1, JPEG: []byte("page-1")},
		{PageNumber: 2, JPEG: []byte("page-2")},
	}
	f.recognizer.RecognizeFunc = func(ctx context.Context, image []byte, pageNumber int) (ocr_service.Result, error) {
		if pageNumber == 1 {
			return ocr_service.Result{Text: "Hello world", Confidence: 0.98}, nil
		}
		// Blank page
		return ocr_service.Result{}, nil
	}

	doc := f.createDocument(t, "doc-1", "scan.pdf")
	if err := f.ingestor.Ingest(context.Background(), doc, []byte("pdf-bytes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := f.store.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("failed to get document: %v", err)
	}
	if got.Status != pipeline_type.StatusReady {
		t.Errorf("expected ready status, got %s (%s)", got.Status, got.Error)
	}
	if got.PageCount != 2 {
		t.Errorf("expected page count 2, got %d", got.PageCount)
	}

	pages := f.store.Pages("doc-1")
	if len(pages) != 2 {
		t.Fatalf("expected 2 persisted pages, got %d", len(pages))
	}
	if pages[0].Content != "Hello world" {
		t.Errorf("expected page 1 content %q, got %q", "Hello world", pages[0].Content)
	}
	if pages[1].Content != "" {
		t.Errorf("expected page 2 to persist empty, got %q", pages[1].Content)
	}

	// The blank page contributes no chunks.
	count, err := f.store.ChunkCount(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("failed to count chunks: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 chunk, got %d", count)
	}
}

func TestIngestor_TextLayerSkipsOCR(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.rasterizer.pages = []raster_service.PageImage{
		{PageNumber: 1, JPEG: []byte("page-1")},
		{PageNumber: 2, JPEG: []byte("page-2")},
	}
	f.rasterizer.layers = map[int]string{
		1: "Embedded text layer content for page one.",
	}

	ocrPages := make(map[int]bool)
	f.recognizer.RecognizeFunc = func(ctx context.Context, image []byte, pageNumber int) (ocr_service.Result, error) {
		ocrPages[pageNumber] = true
		return ocr_service.Result{Text: "recognized", Confidence: 0.9}, nil
	}

	doc := f.createDocument(t, "doc-1", "mixed.pdf")
	if err := f.ingestor.Ingest(context.Background(), doc, []byte("pdf-bytes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ocrPages[1] {
		t.Error("page 1 has a text layer and should not be recognized")
	}
	if !ocrPages[2] {
		t.Error("page 2 has no text layer and should be recognized")
	}

	pages := f.store.Pages("doc-1")
	if len(pages) != 2 {
		t.Fatalf("expected 2 persisted pages, got %d", len(pages))
	}
	if pages[0].Confidence != 1.0 {
		t.Errorf("expected text-layer page confidence 1.0, got %v", pages[0].Confidence)
	}
}

func TestIngestor_OCRFailureLeavesNothingPersisted(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.rasterizer.pages = []raster_service.PageImage{
		{PageNumber: 1, JPEG: []byte("page-1")},
		{PageNumber: 2, JPEG: []byte("page-2")},
		{PageNumber: 3, JPEG: []byte("page-3")},
	}
	f.recognizer.RecognizeFunc = func(ctx context.Context, image []byte, pageNumber int) (ocr_service.Result, error) {
		if pageNumber == 2 {
			return ocr_service.Result{}, &pipeline_type.ServiceError{
				Service: "vision", StatusCode: 503, Message: "unavailable",
			}
		}
		return ocr_service.Result{Text: "page text", Confidence: 0.9}, nil
	}

	doc := f.createDocument(t, "doc-1", "scan.pdf")
	err := f.ingestor.Ingest(context.Background(), doc, []byte("pdf-bytes"))
	if err == nil {
		t.Fatal("expected ingestion to fail")
	}

	got, getErr := f.store.GetDocument(context.Background(), "doc-1")
	if getErr != nil {
		t.Fatalf("failed to get document: %v", getErr)
	}
	if got.Status != pipeline_type.StatusFailed {
		t.Errorf("expected failed status, got %s", got.Status)
	}
	if got.Error == "" {
		t.Error("expected a failure reason on the document")
	}

	if pages := f.store.Pages("doc-1"); len(pages) != 0 {
		t.Errorf("expected no persisted pages after an OCR failure, got %d", len(pages))
	}
	count, countErr := f.store.ChunkCount(context.Background(), "doc-1")
	if countErr != nil {
		t.Fatalf("failed to count chunks: %v", countErr)
	}
	if count != 0 {
		t.Errorf("expected no persisted chunks after an OCR failure, got %d", count)
	}
}

func TestIngestor_InvalidPDF(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.rasterizer.err = pipeline_type.ErrInvalidDocument

	doc := f.createDocument(t, "doc-1", "broken.pdf")
	err := f.ingestor.Ingest(context.Background(), doc, []byte("not a pdf"))
	if !errors.Is(err, pipeline_type.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}

	got, getErr := f.store.GetDocument(context.Background(), "doc-1")
	if getErr != nil {
		t.Fatalf("failed to get document: %v", getErr)
	}
	if got.Status != pipeline_type.StatusFailed {
		t.Errorf("expected failed status, got %s", got.Status)
	}
}

func TestIngestor_OversizedChunkIsSkipped(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.rasterizer.pages = []raster_service.PageImage{{PageNumber: 1, JPEG: []byte("page-1")}}

	// Over two chunk windows, so the page splits into multiple chunks.
	longText := strings.Repeat("a", 1300) + " tail content"
	f.recognizer.RecognizeFunc = func(ctx context.Context, image []byte, pageNumber int) (ocr_service.Result, error) {
		return ocr_service.Result{Text: longText, Confidence: 0.9}, nil
	}

	rejected := false
	f.embedder.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		if !rejected {
			rejected = true
			return nil, pipeline_type.ErrChunkTooLarge
		}
		return make([]float32, 3), nil
	}

	doc := f.createDocument(t, "doc-1", "long.pdf")
	if err := f.ingestor.Ingest(context.Background(), doc, []byte("pdf-bytes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := f.store.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("failed to get document: %v", err)
	}
	if got.Status != pipeline_type.StatusReady {
		t.Errorf("expected ready status despite a skipped chunk, got %s (%s)", got.Status, got.Error)
	}
	if got.SkippedChunks != 1 {
		t.Errorf("expected 1 skipped chunk, got %d", got.SkippedChunks)
	}

	count, err := f.store.ChunkCount(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("failed to count chunks: %v", err)
	}
	if count != 1 {
		t.Errorf("expected the remaining chunk to persist, got %d chunks", count)
	}
}

func TestIngestor_EmbeddingFailureAborts(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.rasterizer.pages = []raster_service.PageImage{{PageNumber: 1, JPEG: []byte("page-1")}}
	f.recognizer.RecognizeFunc = func(ctx context.Context, image []byte, pageNumber int) (ocr_service.Result, error) {
		return ocr_service.Result{Text: "page text", Confidence: 0.9}, nil
	}
	f.embedder.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, &pipeline_type.ServiceError{Service: "embedding", StatusCode: 500, Message: "boom"}
	}

	doc := f.createDocument(t, "doc-1", "scan.pdf")
	if err := f.ingestor.Ingest(context.Background(), doc, []byte("pdf-bytes")); err == nil {
		t.Fatal("expected ingestion to fail")
	}

	got, err := f.store.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("failed to get document: %v", err)
	}
	if got.Status != pipeline_type.StatusFailed {
		t.Errorf("expected failed status, got %s", got.Status)
	}
}

func TestIngestor_DimensionMismatchFails(t *testing.T) {
	f := newIngestorFixture(t, 4)
	f.rasterizer.pages = []raster_service.PageImage{{PageNumber: 1, JPEG: []byte("page-1")}}
	f.recognizer.RecognizeFunc = func(ctx context.Context, image []byte, pageNumber int) (ocr_service.Result, error) {
		return ocr_service.Result{Text: "page text", Confidence: 0.9}, nil
	}
	// Embedder emits 3 dimensions against a 4-dimension store.
	f.embedder.EmbedFunc = func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, 3), nil
	}

	doc := f.createDocument(t, "doc-1", "scan.pdf")
	err := f.ingestor.Ingest(context.Background(), doc, []byte("pdf-bytes"))

	var dimErr *pipeline_type.DimensionMismatchError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}

	got, getErr := f.store.GetDocument(context.Background(), "doc-1")
	if getErr != nil {
		t.Fatalf("failed to get document: %v", getErr)
	}
	if got.Status != pipeline_type.StatusFailed {
		t.Errorf("expected failed status, got %s", got.Status)
	}
}

func TestIngestor_ConcurrentRunsRejected(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.rasterizer.pages = []raster_service.PageImage{{PageNumber: 1, JPEG: []byte("page-1")}}

	entered := make(chan struct{})
	release := make(chan struct{})
	f.recognizer.RecognizeFunc = func(ctx context.Context, image []byte, pageNumber int) (ocr_service.Result, error) {
		close(entered)
		<-release
		return ocr_service.Result{Text: "page text", Confidence: 0.9}, nil
	}

	doc := f.createDocument(t, "doc-1", "scan.pdf")

	done := make(chan error, 1)
	go func() {
		done <- f.ingestor.Ingest(context.Background(), doc, []byte("pdf-bytes"))
	}()

	<-entered
	if err := f.ingestor.Ingest(context.Background(), doc, []byte("pdf-bytes")); !errors.Is(err, pipeline_type.ErrIngestionRunning) {
		t.Errorf("expected ErrIngestionRunning for a concurrent run, got %v", err)
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first ingestion failed: %v", err)
	}
}

func TestIngestor_CancellationFailsDocument(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.rasterizer.pages = []raster_service.PageImage{{PageNumber: 1, JPEG: []byte("page-1")}}

	ctx, cancel := context.WithCancel(context.Background())
	f.recognizer.RecognizeFunc = func(ctx context.Context, image []byte, pageNumber int) (ocr_service.Result, error) {
		cancel()
		return ocr_service.Result{}, context.Canceled
	}

	doc := f.createDocument(t, "doc-1", "scan.pdf")
	if err := f.ingestor.Ingest(ctx, doc, []byte("pdf-bytes")); err == nil {
		t.Fatal("expected ingestion to fail on cancellation")
	}

	got, err := f.store.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("failed to get document: %v", err)
	}
	if got.Status != pipeline_type.StatusFailed {
		t.Errorf("expected failed status after cancellation, got %s", got.Status)
	}
}

func TestIngestor_TextUpload(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.extractor.text = "Plain text document body."

	doc := f.createDocument(t, "doc-1", "notes.txt")
	if err := f.ingestor.Ingest(context.Background(), doc, []byte("Plain text document body.")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := f.store.GetDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("failed to get document: %v", err)
	}
	if got.Status != pipeline_type.StatusReady {
		t.Errorf("expected ready status, got %s (%s)", got.Status, got.Error)
	}
	if got.PageCount != 1 {
		t.Errorf("expected a single page for a text upload, got %d", got.PageCount)
	}

	pages := f.store.Pages("doc-1")
	if len(pages) != 1 || pages[0].Confidence != 1.0 {
		t.Errorf("expected one page with confidence 1.0, got %+v", pages)
	}
}

func TestIngestor_ExtractorFailure(t *testing.T) {
	f := newIngestorFixture(t, 3)
	f.extractor.err = errors.New("conversion failed")

	doc := f.createDocument(t, "doc-1", "report.docx")
	err := f.ingestor.Ingest(context.Background(), doc, []byte("docx-bytes"))
	if !errors.Is(err, pipeline_type.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}
