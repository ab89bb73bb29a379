package embedding_service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/serisow/docchat/pipeline_type"
)

type EmbeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type EmbeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Object string `json:"object"`
}

// Service calls an OpenAI-compatible embeddings endpoint. Inputs longer
// than maxInputChars are rejected with ErrChunkTooLarge instead of being
// silently truncated.
type Service struct {
	endpoint      string
	apiKey        string
	model         string
	maxInputChars int
	httpClient    *http.Client
	logger        *slog.Logger
	retryDelay    time.Duration
}

func New(endpoint, apiKey, model string, maxInputChars int, logger *slog.Logger) *Service {
	return &Service{
		endpoint:      endpoint,
		apiKey:        apiKey,
		model:         model,
		maxInputChars: maxInputChars,
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		logger:        logger,
		retryDelay:    2 * time.Second,
	}
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	if s.maxInputChars > 0 && len([]rune(text)) > s.maxInputChars {
		return nil, fmt.Errorf("%w: %d chars, limit %d",
			pipeline_type.ErrChunkTooLarge, len([]rune(text)), s.maxInputChars)
	}

	maxRetries := 3
	retryDelay := s.retryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		vector, err := s.embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		if !pipeline_type.Retryable(err) {
			return nil, err
		}

		if attempt == maxRetries {
			s.logger.Error("Error calling embedding API after multiple attempts",
				slog.Int("attempts", maxRetries),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to embed text after %d attempts: %w", maxRetries, err)
		}

		s.logger.Warn("Attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_delay", retryDelay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
	}

	return nil, fmt.Errorf("failed to embed text after exhausting all retry attempts")
}

func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	requestBody := EmbeddingRequest{
		Input: text,
		Model: s.model,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &pipeline_type.ServiceError{
			Service: "embedding",
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return nil, fmt.Errorf("%w: rejected by embedding service", pipeline_type.ErrChunkTooLarge)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &pipeline_type.ServiceError{
			Service:    "embedding",
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			RawBody:    string(body),
		}
	}

	var embeddingResp EmbeddingResponse
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %v", err)
	}

	if len(embeddingResp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data received")
	}

	return embeddingResp.Data[0].Embedding, nil
}
