package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serisow/docchat/pipeline_type"
	"github.com/serisow/docchat/storage"
)

// 50 MB, matching the storage tier's per-file ceiling.
const maxUploadBytes = 50 << 20

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
}

type IngestRunner interface {
	Ingest(ctx context.Context, doc pipeline_type.Document, content []byte) error
}

// UploadHandler accepts a document upload, registers it as pending and
// hands it to the ingestion pipeline in the background. The response
// carries the document id; clients poll the status endpoint.
type UploadHandler struct {
	documents storage.DocumentStore
	ingestor  IngestRunner
	logger    *slog.Logger
}

func NewUploadHandler(documents storage.DocumentStore, ingestor IngestRunner, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		documents: documents,
		ingestor:  ingestor,
		logger:    logger,
	}
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Received file upload request")

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, "Failed to get file from form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		h.logger.Error("Unsupported file type",
			slog.String("filename", header.Filename),
			slog.String("extension", ext))
		writeJSONError(w, "Unsupported file type", http.StatusBadRequest)
		return
	}

	if header.Size > maxUploadBytes {
		writeJSONError(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeJSONError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	doc := pipeline_type.Document{
		ID:        uuid.New().String(),
		Filename:  header.Filename,
		Status:    pipeline_type.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.documents.CreateDocument(r.Context(), &doc); err != nil {
		h.logger.Error("Failed to store document record",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to store document", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Starting ingestion",
		slog.String("document_id", doc.ID),
		slog.String("filename", doc.Filename),
		slog.Int64("size", header.Size))

	content := buf.Bytes()
	go func() {
		// The run outlives the upload request on purpose.
		if err := h.ingestor.Ingest(context.Background(), doc, content); err != nil {
			h.logger.Error("Background ingestion failed",
				slog.String("document_id", doc.ID),
				slog.String("error", err.Error()))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"document_id": doc.ID,
		"status":      string(doc.Status),
	})
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
