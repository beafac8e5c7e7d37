package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
)

// PDFExtractor reads the text layer page by page. Pages without text are
// skipped; a scan with no text layer at all yields no text.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Name() string { return "pdf" }

func (e *PDFExtractor) Supports(format domain.Format) bool {
	return format == domain.FormatPDF
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (out *domain.ExtractedText, err error) {
	// The parser panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.ExtractionFailed("pdf could not be parsed", fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.ExtractionFailed("pdf could not be opened", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, errors.ExtractionFailed(fmt.Sprintf("page %d could not be read", i), err)
		}
		if text = normalizeText(text); text != "" {
			pages = append(pages, text)
		}
	}

	return &domain.ExtractedText{
		Format: domain.FormatPDF,
		Text:   strings.Join(pages, "\n\n"),
		Pages:  numPages,
	}, nil
}
