package generator

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
)

// Completer sends one request to a completion provider and returns its raw reply
type Completer interface {
	Complete(ctx context.Context, req *domain.ProfileRequest) (*domain.Completion, error)
	Model() string
}

// EinoCompleter adapts any eino chat model (OpenAI, Claude, Gemini)
type EinoCompleter struct {
	chat  model.BaseChatModel
	model string
}

func NewEinoCompleter(chat model.BaseChatModel, modelName string) *EinoCompleter {
	return &EinoCompleter{chat: chat, model: modelName}
}

func (c *EinoCompleter) Model() string { return c.model }

func (c *EinoCompleter) Complete(ctx context.Context, req *domain.ProfileRequest) (*domain.Completion, error) {
	messages := []*schema.Message{
		schema.SystemMessage(req.SystemPrompt),
		schema.UserMessage(req.UserPrompt),
	}

	opts := []model.Option{model.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	out, err := c.chat.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, withStatus("chat generate", err)
	}
	if out == nil {
		return nil, errors.New("chat generate: no message returned")
	}

	completion := &domain.Completion{
		Text:  out.Content,
		Model: c.model,
	}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		completion.PromptTokens = out.ResponseMeta.Usage.PromptTokens
		completion.CompletionTokens = out.ResponseMeta.Usage.CompletionTokens
	}
	return completion, nil
}
