// Package generatortest provides a scripted Completer for tests.
package generatortest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
)

// Completer replays a fixed reply and records every request it receives
type Completer struct {
	mu       sync.Mutex
	Reply    string
	Err      error
	ModelID  string
	requests []domain.ProfileRequest
}

// NewSections returns a completer whose reply is a JSON array with the given
// section titles, each with one sentence of content and a source.
func NewSections(titles ...string) *Completer {
	type section struct {
		Section string `json:"section"`
		Content string `json:"content"`
		Sources string `json:"sources"`
	}
	out := make([]section, 0, len(titles))
	for _, title := range titles {
		out = append(out, section{
			Section: title,
			Content: "Findings for " + title + ".",
			Sources: "CV",
		})
	}
	data, _ := json.Marshal(out)
	return &Completer{Reply: string(data), ModelID: "fake-model"}
}

func (c *Completer) Model() string {
	if c.ModelID == "" {
		return "fake-model"
	}
	return c.ModelID
}

func (c *Completer) Complete(ctx context.Context, req *domain.ProfileRequest) (*domain.Completion, error) {
	c.mu.Lock()
	c.requests = append(c.requests, *req)
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return &domain.Completion{
		Text:             c.Reply,
		Model:            c.Model(),
		PromptTokens:     len(req.UserPrompt) / 4,
		CompletionTokens: len(c.Reply) / 4,
	}, nil
}

// Requests returns a copy of every request seen so far
func (c *Completer) Requests() []domain.ProfileRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.ProfileRequest(nil), c.requests...)
}
