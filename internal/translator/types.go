package translator

import (
	"context"

	"github.com/MimeLyc/dualsub/internal/llm"
)

// ChatClient is the slice of the LLM client the generator needs.
type ChatClient interface {
	SimpleChat(ctx context.Context, prompt string, opts *llm.ChatCompletionOptions) (string, error)
}
