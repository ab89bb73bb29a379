package llm_service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/serisow/docchat/pipeline_type"
)

// GeminiService generates answers through the Gemini REST API. When the
// primary model's quota is exhausted the call falls back to the
// configured fallback model once, then the usual retry policy applies.
type GeminiService struct {
	apiURL        string
	apiKey        string
	model         string
	fallbackModel string
	httpClient    *http.Client
	logger        *slog.Logger
	retryDelay    time.Duration
}

func NewGeminiService(apiURL, apiKey, model, fallbackModel string, logger *slog.Logger) *GeminiService {
	return &GeminiService{
		apiURL:        apiURL,
		apiKey:        apiKey,
		model:         model,
		fallbackModel: fallbackModel,
		httpClient:    &http.Client{Timeout: 120 * time.Second},
		logger:        logger,
		retryDelay:    5 * time.Second,
	}
}

func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	maxRetries := 3
	retryDelay := s.retryDelay
	model := s.model

	for attempt := 1; attempt <= maxRetries; attempt++ {
		response, err := s.callGemini(ctx, model, prompt)
		if err == nil {
			return response, nil
		}

		if isQuotaError(err) && s.fallbackModel != "" && model != s.fallbackModel {
			s.logger.Warn("Quota exhausted, falling back to secondary model",
				slog.String("model", model),
				slog.String("fallback_model", s.fallbackModel))
			model = s.fallbackModel
			continue
		}

		if !pipeline_type.Retryable(err) {
			return "", err
		}

		if attempt == maxRetries {
			s.logger.Error("Error calling Gemini API after multiple attempts",
				slog.Int("attempts", maxRetries),
				slog.String("error", err.Error()))
			return "", fmt.Errorf("failed to call Gemini API after %d attempts: %w", maxRetries, err)
		}

		s.logger.Warn("Attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_delay", retryDelay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		retryDelay *= 2
	}

	return "", fmt.Errorf("failed to call Gemini API after exhausting all retry attempts")
}

func isQuotaError(err error) bool {
	var svcErr *pipeline_type.ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.StatusCode == http.StatusTooManyRequests ||
		strings.Contains(svcErr.RawBody, "RESOURCE_EXHAUSTED")
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (s *GeminiService) callGemini(ctx context.Context, model, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", s.apiURL, model, s.apiKey)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"role": "user",
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"temperature":      1.0,
			"topK":             40,
			"topP":             0.95,
			"maxOutputTokens":  8192,
			"responseMimeType": "text/plain",
		},
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &pipeline_type.ServiceError{
			Service: "generation",
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &pipeline_type.ServiceError{
			Service:    "generation",
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			RawBody:    string(body),
		}
	}

	var result geminiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("unexpected response format from Gemini API")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", fmt.Errorf("empty answer in Gemini API response")
	}

	return answer, nil
}
