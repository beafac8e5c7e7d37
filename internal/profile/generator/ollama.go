package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/resilience"
)

const defaultOllamaURL = "http://127.0.0.1:11434"

// OllamaCompleter talks to a local Ollama server, so document text never
// leaves the host.
type OllamaCompleter struct {
	client *api.Client
	model  string
}

func NewOllamaCompleter(baseURL, modelName string, httpClient *http.Client) (*OllamaCompleter, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaCompleter{
		client: api.NewClient(u, httpClient),
		model:  modelName,
	}, nil
}

func (c *OllamaCompleter) Model() string { return c.model }

func (c *OllamaCompleter) Complete(ctx context.Context, req *domain.ProfileRequest) (*domain.Completion, error) {
	stream := false
	options := map[string]any{"temperature": req.Temperature}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}

	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Stream:  &stream,
		Options: options,
	}

	var (
		text       strings.Builder
		completion = &domain.Completion{Model: c.model}
	)
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		if resp.Done {
			completion.PromptTokens = resp.PromptEvalCount
			completion.CompletionTokens = resp.EvalCount
			if resp.Model != "" {
				completion.Model = resp.Model
			}
		}
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return nil, fmt.Errorf("ollama chat: %s: %w", statusErr.ErrorMessage,
				&resilience.StatusError{Operation: "ollama chat", StatusCode: statusErr.StatusCode})
		}
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	completion.Text = text.String()
	return completion, nil
}
