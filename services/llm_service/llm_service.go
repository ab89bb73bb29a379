package llm_service

import "context"

type LLMService interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
