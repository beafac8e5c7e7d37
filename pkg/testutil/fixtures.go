package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"
)

// Sample paragraphs describing two fictional people
var (
	ParagraphAnna = "Anna Keller met her supervisor on Monday and described feeling anxious about the upcoming audit."
	ParagraphBen  = "Ben Ortiz reported that he sleeps well and enjoys working with the night shift team."
)

// PDFFixture renders each paragraph on its own line of a one-page PDF.
// Compression is off so the text layer stays plain in the file.
func PDFFixture(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 9)
	for _, p := range paragraphs {
		doc.MultiCell(0, 5, p, "", "L", false)
		doc.Ln(3)
	}

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

// BlankPDFFixture returns a valid PDF without any text layer, like a scan
func BlankPDFFixture(t *testing.T) []byte {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetCompression(false)
	doc.AddPage()
	doc.Rect(20, 20, 50, 30, "D")

	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

// CorruptPDFFixture starts like a PDF but cannot be parsed
func CorruptPDFFixture() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nthis is not a pdf body\n")
}

const (
	docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`
	docxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`
	docxDocumentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`
)

// DOCXFixture builds a minimal Word document with one w:p per paragraph
func DOCXFixture(t *testing.T, paragraphs ...string) []byte {
	t.Helper()

	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		require.NoError(t, xml.EscapeText(&body, []byte(p)))
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(docxContentTypes)},
		{"_rels/.rels", []byte(docxRootRels)},
		{"word/document.xml", body.Bytes()},
		{"word/_rels/document.xml.rels", []byte(docxDocumentRels)},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// ZipFixture is a plain zip archive that is not a Word document
func ZipFixture(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("notes.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
