package embedding_service

import "context"

type MockClient struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}
