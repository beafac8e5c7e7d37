// Package generator calls the completion provider and turns its reply into a profile.
package generator

import (
	"context"
	"strings"
	"time"

	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
	"github.com/psyprofile/psyprofile-backend/pkg/resilience"
)

// UsageRecorder receives token counts reported by the provider
type UsageRecorder interface {
	RecordTokenUsage(operation, model string, promptTokens, completionTokens int)
}

// Generator runs completions through the resilience executor and maps every
// failure to UPSTREAM_ERROR.
type Generator struct {
	completer Completer
	exec      *resilience.Executor
	timeout   time.Duration
	usage     UsageRecorder
	log       *logger.Logger
	now       func() time.Time
}

// Option configures a Generator
type Option func(*Generator)

// WithUsageRecorder reports token usage after every successful call
func WithUsageRecorder(r UsageRecorder) Option {
	return func(g *Generator) { g.usage = r }
}

// WithTimeout bounds every model call. Zero means only the caller's context applies.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

func New(completer Completer, exec *resilience.Executor, log *logger.Logger, opts ...Option) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig(), log)
	}
	g := &Generator{
		completer: completer,
		exec:      exec,
		log:       log.WithComponent("generator"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Model returns the configured model name
func (g *Generator) Model() string {
	return g.completer.Model()
}

// Generate sends a profile request and parses the reply into sections
func (g *Generator) Generate(ctx context.Context, req *domain.ProfileRequest) (*domain.GeneratedProfile, error) {
	completion, err := g.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	sections, err := ParseSections(completion.Text)
	if err != nil {
		g.log.Warn().Err(err).Str("model", completion.Model).Msg("model returned a malformed profile")
		return nil, errors.Upstream("model returned a malformed profile", err)
	}
	for i := range sections {
		sections[i].Sources = CleanSources(sections[i].Sources, req.SourceLabels)
	}

	return &domain.GeneratedProfile{
		Sections:      sections,
		Model:         completion.Model,
		DetectedTypes: append([]string(nil), req.DetectedTypes...),
		GeneratedAt:   g.now().UTC(),
	}, nil
}

// Answer sends a question request and returns the free-text reply
func (g *Generator) Answer(ctx context.Context, req *domain.ProfileRequest) (*domain.Completion, error) {
	completion, err := g.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	completion.Text = strings.TrimSpace(completion.Text)
	return completion, nil
}

func (g *Generator) complete(ctx context.Context, req *domain.ProfileRequest) (*domain.Completion, error) {
	if req == nil {
		return nil, errors.Internal("nil model request")
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	operation := "llm." + string(req.Kind)
	start := time.Now()

	var completion *domain.Completion
	err := g.exec.Execute(ctx, operation, func(ctx context.Context) error {
		c, err := g.completer.Complete(ctx, req)
		if err != nil {
			return err
		}
		completion = c
		return nil
	}, resilience.ClassifyRemote)

	if err != nil {
		g.log.Error().
			Err(err).
			Str("operation", operation).
			Str("model", g.completer.Model()).
			Dur("duration", time.Since(start)).
			Msg("model call failed")

		switch {
		case resilience.IsCircuitOpen(err):
			return nil, errors.Upstream("model provider is temporarily unavailable", err)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, errors.Upstream("model call timed out", err)
		default:
			return nil, errors.Upstream("model call failed", err)
		}
	}

	if completion == nil || strings.TrimSpace(completion.Text) == "" {
		return nil, errors.Upstream("model returned an empty reply", nil)
	}
	if completion.Model == "" {
		completion.Model = g.completer.Model()
	}

	if g.usage != nil {
		g.usage.RecordTokenUsage(string(req.Kind), completion.Model, completion.PromptTokens, completion.CompletionTokens)
	}

	g.log.Info().
		Str("operation", operation).
		Str("model", completion.Model).
		Int("prompt_tokens", completion.PromptTokens).
		Int("completion_tokens", completion.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("model call completed")

	return completion, nil
}
