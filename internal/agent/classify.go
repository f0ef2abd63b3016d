package agent

import (
	"context"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// classify reports whether query is weather-related. On any failure it
// returns true together with a ClassificationError.
func (a *Agent) classify(ctx context.Context, query string) (bool, error) {
	resp, err := a.model.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: classificationPrompt(query)},
		},
		// zero is dropped by omitempty and would fall back to the provider default
		Temperature: math.SmallestNonzeroFloat32,
		MaxTokens:   10,
	})
	if err != nil {
		return true, &ClassificationError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return true, &ClassificationError{Err: errEmptyCompletion}
	}

	label := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))
	switch {
	case strings.HasPrefix(label, "YES"):
		return true, nil
	case strings.HasPrefix(label, "NO"):
		return false, nil
	default:
		return true, &ClassificationError{Err: errUnrecognizedLabel}
	}
}
