// Package exporter renders a generated profile into a downloadable slide deck.
package exporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
)

const (
	deckTitle    = "Psychological Profile"
	deckBaseName = "psychological_profile"
)

// Exporter renders one deck format
type Exporter interface {
	Format() domain.ExportFormat
	Export(ctx context.Context, profile *domain.GeneratedProfile) (*domain.ExportedDeck, error)
}

// Registry dispatches to the exporter for the requested format
type Registry struct {
	exporters map[domain.ExportFormat]Exporter
}

func NewRegistry(exporters ...Exporter) *Registry {
	r := &Registry{exporters: make(map[domain.ExportFormat]Exporter, len(exporters))}
	for _, e := range exporters {
		r.exporters[e.Format()] = e
	}
	return r
}

// DefaultRegistry returns a registry with the PPTX and PDF exporters
func DefaultRegistry() *Registry {
	return NewRegistry(NewPPTXExporter(), NewPDFExporter())
}

// ParseFormat maps a query value to an export format. Empty means PPTX.
func ParseFormat(value string) (domain.ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "pptx":
		return domain.ExportPPTX, nil
	case "pdf":
		return domain.ExportPDF, nil
	default:
		return "", errors.ExportFailed(fmt.Sprintf("unknown export format %q", value), nil)
	}
}

// Export validates the profile and renders it in the given format
func (r *Registry) Export(ctx context.Context, profile *domain.GeneratedProfile, format domain.ExportFormat) (*domain.ExportedDeck, error) {
	if format == "" {
		format = domain.ExportPPTX
	}
	exp, ok := r.exporters[format]
	if !ok {
		return nil, errors.ExportFailed(fmt.Sprintf("unknown export format %q", format), nil)
	}
	if err := Validate(profile); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.ExportFailed("export cancelled", err)
	}

	deck, err := exp.Export(ctx, profile)
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, errors.ExportFailed("failed to render deck", err)
	}
	if len(deck.Data) == 0 {
		return nil, errors.ExportFailed("renderer produced an empty deck", nil)
	}
	return deck, nil
}

// Validate checks that every section can be mapped to a slide
func Validate(profile *domain.GeneratedProfile) error {
	if profile == nil {
		return errors.ExportFailed("no profile to export", nil)
	}
	if len(profile.Sections) == 0 {
		return errors.ExportFailed("profile has no sections", nil)
	}
	for i, s := range profile.Sections {
		if strings.TrimSpace(s.Title) == "" && strings.TrimSpace(s.Content) == "" {
			return errors.ExportFailed(fmt.Sprintf("section %d has neither title nor content", i+1), nil)
		}
	}
	return nil
}

// paragraphs splits section content into non-empty lines
func paragraphs(content string) []string {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
