package generator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/psyprofile/psyprofile-backend/pkg/config"
	"google.golang.org/genai"
)

// NewCompleter builds the completer for the configured provider
func NewCompleter(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	temperature := cfg.Temperature
	maxTokens := cfg.ProfileMaxTokens

	switch cfg.Provider {
	case config.ProviderOpenAI:
		chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("openai chat model: %w", err)
		}
		return NewEinoCompleter(chat, cfg.Model), nil

	case config.ProviderClaude:
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		chat, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     baseURL,
			MaxTokens:   max(cfg.ProfileMaxTokens, cfg.AnswerMaxTokens),
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("claude chat model: %w", err)
		}
		return NewEinoCompleter(chat, cfg.Model), nil

	case config.ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chat, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini chat model: %w", err)
		}
		return NewEinoCompleter(chat, cfg.Model), nil

	case config.ProviderOllama:
		return NewOllamaCompleter(cfg.BaseURL, cfg.Model, &http.Client{Timeout: cfg.Timeout})

	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
