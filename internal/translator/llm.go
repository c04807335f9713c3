package translator

import (
	"context"
	"fmt"
	"strings"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/internal/lang"
	"github.com/MimeLyc/dualsub/internal/llm"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/MimeLyc/dualsub/pkg/log"
)

// LLMGenerator translates one caption line per call through a chat model.
type LLMGenerator struct {
	client ChatClient
}

var _ translation.Generator = (*LLMGenerator)(nil)

func NewLLMGenerator(client ChatClient) *LLMGenerator {
	return &LLMGenerator{client: client}
}

// Generate returns the translation of text, a single normalized caption
// line. Errors keep their apperr kind so the cache can tell throttling apart
// from outages.
func (g *LLMGenerator) Generate(ctx context.Context, text string, gc translation.GenerateContext) (string, error) {
	if g.client == nil {
		return "", apperr.New(apperr.KindConfig, "no llm client configured")
	}

	opts := llm.NewChatCompletionOptions().
		WithSystemPrompt(buildSystemPrompt(gc.SourceLang, gc.TargetLang))
	if gc.Model != "" {
		opts = opts.WithModel(gc.Model)
	}

	out, err := g.client.SimpleChat(ctx, text, opts)
	if err != nil {
		return "", fmt.Errorf("generate translation: %w", err)
	}

	out = cleanOutput(out)
	if out == "" {
		return "", apperr.New(apperr.KindNetwork, "empty translation from model").
			WithContext("video_id", gc.VideoID)
	}
	log.Debug("Generated translation for %q (%d chars)", text, len([]rune(out)))
	return out, nil
}

func buildSystemPrompt(sourceLang, targetLang string) string {
	var prompt strings.Builder

	prompt.WriteString("You translate video captions")
	if sourceLang != "" && !strings.EqualFold(sourceLang, lang.Auto) {
		prompt.WriteString(" from " + sourceLang)
	}
	prompt.WriteString(" into " + targetLang + ".\n")
	prompt.WriteString("The input is a single caption line that may be a sentence fragment.\n")
	prompt.WriteString("Keep it short enough to read on screen and answer on one line.\n")
	prompt.WriteString("Return ONLY the translated line. Do not add quotes, notes, or explanations.\n")

	return prompt.String()
}

func cleanOutput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"“”")
	return strings.Join(strings.Fields(s), " ")
}
