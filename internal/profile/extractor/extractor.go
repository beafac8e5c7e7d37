// Package extractor turns uploaded PDF and DOCX files into plain text.
package extractor

import (
	"context"
	"strings"

	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
)

// Extractor reads the text layer of one document format.
// Implementations must not retain data after Extract returns.
type Extractor interface {
	Supports(format domain.Format) bool
	Extract(ctx context.Context, data []byte) (*domain.ExtractedText, error)
	Name() string
}

// Registry dispatches a format to the first extractor that supports it
type Registry struct {
	extractors []Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// DefaultRegistry knows PDF and DOCX
func DefaultRegistry() *Registry {
	return NewRegistry(NewPDFExtractor(), NewDOCXExtractor())
}

func (r *Registry) Find(format domain.Format) Extractor {
	for _, e := range r.extractors {
		if e.Supports(format) {
			return e
		}
	}
	return nil
}

// Ingestor resolves, verifies and extracts uploaded documents
type Ingestor struct {
	registry *Registry
	log      *logger.Logger
}

func NewIngestor(registry *Registry, log *logger.Logger) *Ingestor {
	return &Ingestor{
		registry: registry,
		log:      log.WithComponent("extractor"),
	}
}

// Ingest extracts the text of doc. It consumes doc.Data: the buffer is zeroed
// before Ingest returns, whatever the outcome.
func (i *Ingestor) Ingest(ctx context.Context, doc domain.UploadedDocument) (*domain.ExtractedText, error) {
	defer clear(doc.Data)

	format, err := ResolveFormat(doc)
	if err != nil {
		return nil, err
	}

	if len(doc.Data) == 0 {
		return nil, errors.ExtractionFailed("document is empty", nil)
	}
	if err := verifyContent(format, doc.Data); err != nil {
		return nil, err
	}

	ext := i.registry.Find(format)
	if ext == nil {
		return nil, errors.UnsupportedFormat(string(format))
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled(err)
	}

	out, err := ext.Extract(ctx, doc.Data)
	if err != nil {
		var appErr *errors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if ctx.Err() != nil {
			return nil, errors.Canceled(ctx.Err())
		}
		return nil, errors.ExtractionFailed("document could not be read", err)
	}

	out.Text = strings.TrimSpace(out.Text)
	if out.Text == "" {
		return nil, errors.ExtractionFailed("document has no extractable text", nil)
	}

	i.log.Debug().
		Str("extractor", ext.Name()).
		Str("format", string(format)).
		Int("pages", out.Pages).
		Int("characters", len(out.Text)).
		Msg("document extracted")

	return out, nil
}

// normalizeText unifies line endings and trims trailing blanks on every line
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
