package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/serisow/docchat/pipeline_type"
	"github.com/serisow/docchat/storage"
)

// StatusHandler reports a document's ingestion state, including the
// skipped-chunk count for documents that reached ready with reduced
// coverage.
type StatusHandler struct {
	documents storage.DocumentStore
	logger    *slog.Logger
}

func NewStatusHandler(documents storage.DocumentStore, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		documents: documents,
		logger:    logger,
	}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := h.documents.GetDocument(r.Context(), id)
	if errors.Is(err, pipeline_type.ErrDocumentNotFound) {
		writeJSONError(w, "Document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to fetch document",
			slog.String("document_id", id),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to fetch document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
