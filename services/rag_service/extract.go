package rag_service

import (
	"bytes"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
)

var mimeTypes = map[string]string{
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// DocumentExtractor pulls plain text out of non-PDF uploads. These skip
// rasterization and OCR entirely and are ingested as a single page.
type DocumentExtractor struct {
	logger *slog.Logger
}

func NewDocumentExtractor(logger *slog.Logger) *DocumentExtractor {
	return &DocumentExtractor{
		logger: logger,
	}
}

func (e *DocumentExtractor) ExtractText(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	if ext == ".txt" {
		return string(data), nil
	}

	mimeType, ok := mimeTypes[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}

	e.logger.Debug("Starting Word document text extraction",
		slog.String("filename", filename),
		slog.Int("data_size", len(data)))

	result, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		e.logger.Error("Failed to convert Word document",
			slog.String("filename", filename),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("failed to convert Word document: %v", err)
	}

	if len(result.Body) == 0 {
		return "", fmt.Errorf("no text content extracted from Word document")
	}

	e.logger.Info("Successfully extracted text from Word document",
		slog.String("filename", filename),
		slog.Int("text_length", len(result.Body)))

	return result.Body, nil
}
