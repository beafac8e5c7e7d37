package extractor

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
)

const wordprocessingNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// DOCXExtractor reads the w:t runs of the main document part, one line per paragraph
type DOCXExtractor struct{}

func NewDOCXExtractor() *DOCXExtractor {
	return &DOCXExtractor{}
}

func (e *DOCXExtractor) Name() string { return "docx" }

func (e *DOCXExtractor) Supports(format domain.Format) bool {
	return format == domain.FormatDOCX
}

func (e *DOCXExtractor) Extract(ctx context.Context, data []byte) (*domain.ExtractedText, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.ExtractionFailed("docx could not be opened", err)
	}
	defer doc.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := documentText(doc.Editable().GetContent())
	if err != nil {
		return nil, errors.ExtractionFailed("docx body could not be parsed", err)
	}

	return &domain.ExtractedText{
		Format: domain.FormatDOCX,
		Text:   normalizeText(text),
	}, nil
}

// documentText walks document.xml and keeps only visible text
func documentText(documentXML string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(documentXML))

	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordprocessingNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
