// Package generator adapts the external question-generation service into
// a request/response call. It holds no state and never retries; the
// session engine owns the retry budget.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/khainl1110/speedtrivia/internal/domain"
	"github.com/khainl1110/speedtrivia/internal/errors"
)

const (
	// DefaultModel matches the model the service was originally run against.
	DefaultModel = "gpt-4o-mini"

	systemPrompt = "Generate a quiz question with 5 options in JSON format: " +
		"{question: string, options: string[], correctIndex: number}"
)

type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	Model   string
}

type Service struct {
	client *openai.Client
	model  string
}

func NewService(c Config) *Service {
	cc := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cc.BaseURL = c.BaseURL
	}

	model := c.Model
	if model == "" {
		model = DefaultModel
	}

	return &Service{
		client: openai.NewClientWithConfig(cc),
		model:  model,
	}
}

// Generate requests one question about topic. Blocked terms are folded into
// the prompt as a best-effort exclusion hint, not a guarantee; the returned
// question is parsed but NOT validated, callers must re-check its shape.
// Failures of any kind (transport, non-2xx, unparseable body) come back as
// a single unavailable error.
func (s *Service) Generate(ctx context.Context, topic string, blocked []string) (domain.Question, error) {
	prompt := fmt.Sprintf("Create a question about %s", topic)
	if len(blocked) > 0 {
		prompt += fmt.Sprintf(". Do not create a question whose answer is any of: %s", strings.Join(blocked, ", "))
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return domain.Question{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("generate question: topic=%s", topic),
			errors.WithCause(err),
		)
	}

	if len(resp.Choices) == 0 {
		return domain.Question{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("generate question: empty completion: topic=%s", topic),
		)
	}

	var q domain.Question
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &q); err != nil {
		return domain.Question{}, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("generate question: malformed payload: topic=%s", topic),
			errors.WithCause(err),
		)
	}

	return q, nil
}
