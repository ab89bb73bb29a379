package ocr_service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/serisow/docchat/pipeline_type"
)

// VisionService recognizes page text through the Google Vision
// images:annotate endpoint with TEXT_DETECTION.
type VisionService struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewVisionService(endpoint, apiKey string, logger *slog.Logger) *VisionService {
	return &VisionService{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
		retryDelay: 2 * time.Second,
	}
}

type annotateRequest struct {
	Requests []annotateRequestEntry `json:"requests"`
}

type annotateRequestEntry struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		FullTextAnnotation *struct {
			Text  string `json:"text"`
			Pages []struct {
				Confidence float64 `json:"confidence"`
			} `json:"pages"`
		} `json:"fullTextAnnotation"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
	} `json:"responses"`
}

func (s *VisionService) Recognize(ctx context.Context, image []byte, pageNumber int) (Result, error) {
	maxRetries := 3
	retryDelay := s.retryDelay

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err := s.annotate(ctx, image)
		if err == nil {
			return result, nil
		}
		if !pipeline_type.Retryable(err) {
			return Result{}, err
		}

		if attempt == maxRetries {
			s.logger.Error("Error calling Vision API after multiple attempts",
				slog.Int("attempts", maxRetries),
				slog.Int("page_number", pageNumber),
				slog.String("error", err.Error()))
			return Result{}, fmt.Errorf("failed to recognize page %d after %d attempts: %w",
				pageNumber, maxRetries, err)
		}

		s.logger.Warn("Attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("page_number", pageNumber),
			slog.Duration("retry_delay", retryDelay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		retryDelay *= 2
	}

	return Result{}, fmt.Errorf("failed to recognize page %d after exhausting all retry attempts", pageNumber)
}

func (s *VisionService) annotate(ctx context.Context, image []byte) (Result, error) {
	payload := annotateRequest{
		Requests: []annotateRequestEntry{
			{
				Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(image)},
				Features: []annotateFeature{{Type: "TEXT_DETECTION"}},
			},
		},
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("error marshaling annotate request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/images:annotate?key=%s", s.endpoint, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return Result{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Result{}, err
		}
		return Result{}, &pipeline_type.ServiceError{
			Service: "vision",
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, &pipeline_type.ServiceError{
			Service:    "vision",
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			RawBody:    string(body),
		}
	}

	var annotateResp annotateResponse
	if err := json.Unmarshal(body, &annotateResp); err != nil {
		return Result{}, fmt.Errorf("error unmarshaling annotate response: %w", err)
	}

	if len(annotateResp.Responses) == 0 {
		// Nothing detected, a blank page
		return Result{}, nil
	}

	entry := annotateResp.Responses[0]
	if entry.Error != nil {
		return Result{}, &pipeline_type.ServiceError{
			Service:    "vision",
			StatusCode: entry.Error.Code,
			Message:    entry.Error.Message,
		}
	}

	var text string
	var confidence float64
	if entry.FullTextAnnotation != nil {
		text = entry.FullTextAnnotation.Text
		if n := len(entry.FullTextAnnotation.Pages); n > 0 {
			var sum float64
			for _, p := range entry.FullTextAnnotation.Pages {
				sum += p.Confidence
			}
			confidence = sum / float64(n)
		}
	}
	if text == "" && len(entry.TextAnnotations) > 0 {
		// The first annotation carries all detected text
		text = entry.TextAnnotations[0].Description
	}
	if text != "" && confidence == 0 {
		confidence = 1.0
	}

	return Result{Text: text, Confidence: confidence}, nil
}
