package ocr_service

import "context"

type MockRecognizer struct {
	RecognizeFunc func(ctx context.Context, image []byte, pageNumber int) (Result, error)
}

func (m *MockRecognizer) Recognize(ctx context.Context, image []byte, pageNumber int) (Result, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(ctx, image, pageNumber)
	}
	return Result{Text: "mock page text", Confidence: 0.95}, nil
}
