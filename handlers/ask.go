package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/serisow/docchat/pipeline_type"
	"github.com/serisow/docchat/services/rag_service"
	"github.com/serisow/docchat/storage"
)

type AskRequest struct {
	Question   string `json:"question"`
	MatchCount int    `json:"match_count"`
}

type AskResponse struct {
	Answer     string                         `json:"answer"`
	NoContext  bool                           `json:"no_context"`
	CitedPages []int                          `json:"cited_pages"`
	Matches    []pipeline_type.RetrievedChunk `json:"matches"`
}

// AskHandler answers a question against one ready document: retrieve
// the most similar chunks, compose a grounded prompt, generate. Errors
// surface as errors; the handler never fabricates an answer.
type AskHandler struct {
	documents storage.DocumentStore
	retriever *rag_service.Retriever
	composer  *rag_service.Composer
	logger    *slog.Logger
}

func NewAskHandler(documents storage.DocumentStore, retriever *rag_service.Retriever, composer *rag_service.Composer, logger *slog.Logger) *AskHandler {
	return &AskHandler{
		documents: documents,
		retriever: retriever,
		composer:  composer,
		logger:    logger,
	}
}

func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode ask request",
			slog.String("error", err.Error()))
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		writeJSONError(w, "Question must not be empty", http.StatusBadRequest)
		return
	}

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

	switch doc.Status {
	case pipeline_type.StatusReady:
	case pipeline_type.StatusFailed:
		writeJSONError(w, "Document ingestion failed: "+doc.Error, http.StatusConflict)
		return
	default:
		writeJSONError(w, "Document is still being processed", http.StatusConflict)
		return
	}

	chunks, err := h.retriever.Retrieve(r.Context(), id, req.Question, req.MatchCount)
	if err != nil {
		h.logger.Error("Retrieval failed",
			slog.String("document_id", id),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to retrieve document context", http.StatusInternalServerError)
		return
	}

	answer, err := h.composer.Compose(r.Context(), req.Question, chunks)
	if err != nil {
		h.logger.Error("Answer generation failed",
			slog.String("document_id", id),
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to generate answer", http.StatusInternalServerError)
		return
	}

	response := AskResponse{
		Answer:     answer.Text,
		NoContext:  answer.NoContext,
		CitedPages: answer.CitedPages,
		Matches:    chunks,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode response",
			slog.String("error", err.Error()))
		writeJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
