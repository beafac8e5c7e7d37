package extractor

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeZIP  = "application/zip"
)

// ResolveFormat picks the declared format of doc. The explicit file type wins,
// then the part's Content-Type, then the file-name extension.
func ResolveFormat(doc domain.UploadedDocument) (domain.Format, error) {
	if declared := strings.TrimSpace(doc.DeclaredType); declared != "" {
		if f, ok := parseFormat(declared); ok {
			return f, nil
		}
		return "", errors.UnsupportedFormat(declared)
	}

	if ct := mediaType(doc.ContentType); ct != "" && !isGenericContentType(ct) {
		if f, ok := parseFormat(ct); ok {
			return f, nil
		}
		return "", errors.UnsupportedFormat(ct)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(doc.FileName)), ".")
	if f, ok := parseFormat(ext); ok {
		return f, nil
	}
	if ext == "" {
		ext = "unknown"
	}
	return "", errors.UnsupportedFormat(ext)
}

func parseFormat(s string) (domain.Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "pdf", mimePDF, "application/x-pdf":
		return domain.FormatPDF, true
	case "docx", mimeDOCX:
		return domain.FormatDOCX, true
	}
	return "", false
}

func mediaType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// Browsers send these when they do not know the type; fall back to the extension.
func isGenericContentType(ct string) bool {
	return ct == "application/octet-stream" || ct == "binary/octet-stream"
}

// verifyContent checks the bytes against the declared format
func verifyContent(format domain.Format, data []byte) error {
	detected := mimetype.Detect(data)

	var want string
	switch format {
	case domain.FormatPDF:
		want = mimePDF
	case domain.FormatDOCX:
		want = mimeZIP
	}

	for m := detected; m != nil; m = m.Parent() {
		if m.Is(want) {
			return nil
		}
	}
	return errors.ExtractionFailed(
		"file content ("+detected.String()+") does not match declared type "+string(format), nil)
}
