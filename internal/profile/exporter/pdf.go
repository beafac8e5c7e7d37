package exporter

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
)

// PDFExporter renders a landscape handout, one page per section.
// Content longer than a page continues on the next one.
type PDFExporter struct {
	now func() time.Time
}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

func (e *PDFExporter) Format() domain.ExportFormat { return domain.ExportPDF }

func (e *PDFExporter) Export(ctx context.Context, profile *domain.GeneratedProfile) (*domain.ExportedDeck, error) {
	if err := Validate(profile); err != nil {
		return nil, err
	}

	created := profile.GeneratedAt
	if created.IsZero() {
		created = e.now()
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(deckTitle, true)
	pdf.SetCreator("psyprofile", true)
	pdf.SetCreationDate(created)
	pdf.SetMargins(20, 18, 20)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("")

	// Core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 6, fmt.Sprintf("%s - page %d/{nb}", deckTitle, pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	for _, section := range profile.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pdf.AddPage()

		pdf.SetFont("Helvetica", "B", 22)
		pdf.SetTextColor(31, 41, 51)
		pdf.MultiCell(0, 10, tr(strings.TrimSpace(section.Title)), "", "L", false)
		pdf.Ln(4)

		pdf.SetFont("Helvetica", "", 12)
		for _, para := range paragraphs(section.Content) {
			pdf.MultiCell(0, 6, tr(para), "", "L", false)
			pdf.Ln(2)
		}

		if sources := strings.TrimSpace(section.Sources); sources != "" {
			pdf.Ln(4)
			pdf.SetFont("Helvetica", "I", 9)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 5, tr("Sources: "+sources), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	return &domain.ExportedDeck{
		FileName:    deckBaseName + ".pdf",
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
		Slides:      len(profile.Sections),
	}, nil
}
