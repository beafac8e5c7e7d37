package exporter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/psyprofile/psyprofile-backend/internal/profile/domain"
)

const pptxContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// 16:9 slide in EMU
const (
	slideWidth  = 12192000
	slideHeight = 6858000
	margin      = 457200
)

const (
	nsA = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP = "http://schemas.openxmlformats.org/presentationml/2006/main"

	relSlide        = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	relSlideLayout  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout"
	relSlideMaster  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster"
	relTheme        = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme"
	relOfficeDoc    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relCoreProps    = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relExtendedProp = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/extended-properties"

	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
)

// PPTXExporter writes an Office Open XML presentation with one slide per section
type PPTXExporter struct {
	now func() time.Time
}

func NewPPTXExporter() *PPTXExporter {
	return &PPTXExporter{now: time.Now}
}

func (e *PPTXExporter) Format() domain.ExportFormat { return domain.ExportPPTX }

func (e *PPTXExporter) Export(ctx context.Context, profile *domain.GeneratedProfile) (*domain.ExportedDeck, error) {
	if err := Validate(profile); err != nil {
		return nil, err
	}

	created := profile.GeneratedAt
	if created.IsZero() {
		created = e.now()
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	n := len(profile.Sections)
	parts := []struct {
		name string
		body string
	}{
		{"[Content_Types].xml", contentTypesXML(n)},
		{"_rels/.rels", rootRelsXML},
		{"docProps/core.xml", coreXML(created)},
		{"docProps/app.xml", appXML(n)},
		{"ppt/presentation.xml", presentationXML(n)},
		{"ppt/_rels/presentation.xml.rels", presentationRelsXML(n)},
		{"ppt/slideMasters/slideMaster1.xml", slideMasterXML},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", slideMasterRelsXML},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayoutXML},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", slideLayoutRelsXML},
		{"ppt/theme/theme1.xml", themeXML},
	}
	for _, p := range parts {
		if err := writePart(zw, p.name, p.body); err != nil {
			return nil, err
		}
	}

	for i, section := range profile.Sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("ppt/slides/slide%d.xml", i+1)
		if err := writePart(zw, name, slideXML(section)); err != nil {
			return nil, err
		}
		rels := fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", i+1)
		if err := writePart(zw, rels, slideRelsXML); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close pptx archive: %w", err)
	}

	return &domain.ExportedDeck{
		FileName:    deckBaseName + ".pptx",
		ContentType: pptxContentType,
		Data:        buf.Bytes(),
		Slides:      n,
	}, nil
}

func writePart(zw *zip.Writer, name, body string) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func contentTypesXML(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`)
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&b, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i)
	}
	b.WriteString(`</Types>`)
	return b.String()
}

var rootRelsXML = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="` + relOfficeDoc + `" Target="ppt/presentation.xml"/>` +
	`<Relationship Id="rId2" Type="` + relCoreProps + `" Target="docProps/core.xml"/>` +
	`<Relationship Id="rId3" Type="` + relExtendedProp + `" Target="docProps/app.xml"/>` +
	`</Relationships>`

func coreXML(created time.Time) string {
	stamp := created.UTC().Format(time.RFC3339)
	return xmlHeader +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + deckTitle + `</dc:title>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

func appXML(slides int) string {
	return xmlHeader +
		`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">` +
		`<Application>psyprofile</Application>` +
		fmt.Sprintf(`<Slides>%d</Slides>`, slides) +
		`</Properties>`
}

func presentationXML(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<p:presentation xmlns:a="%s" xmlns:r="%s" xmlns:p="%s" saveSubsetFonts="1">`, nsA, nsR, nsP)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	b.WriteString(`<p:sldIdLst>`)
	for i := 0; i < slides; i++ {
		// rId1 is the master and rId2 the theme
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+3)
	}
	b.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/>`, slideWidth, slideHeight)
	b.WriteString(`<p:notesSz cx="6858000" cy="9144000"/>`)
	b.WriteString(`</p:presentation>`)
	return b.String()
}

func presentationRelsXML(slides int) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	fmt.Fprintf(&b, `<Relationship Id="rId1" Type="%s" Target="slideMasters/slideMaster1.xml"/>`, relSlideMaster)
	fmt.Fprintf(&b, `<Relationship Id="rId2" Type="%s" Target="theme/theme1.xml"/>`, relTheme)
	for i := 1; i <= slides; i++ {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="%s" Target="slides/slide%d.xml"/>`, i+2, relSlide, i)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

const groupShape = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

// textBox renders a positioned shape with one paragraph per entry
func textBox(id int, name string, x, y, cx, cy int, size int, bold, italic bool, lines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, name)
	fmt.Fprintf(&b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`, x, y, cx, cy)
	b.WriteString(`<p:txBody><a:bodyPr wrap="square" rtlCol="0"><a:normAutofit/></a:bodyPr><a:lstStyle/>`)

	attrs := fmt.Sprintf(` lang="en-US" sz="%d" dirty="0"`, size)
	if bold {
		attrs += ` b="1"`
	}
	if italic {
		attrs += ` i="1"`
	}
	if len(lines) == 0 {
		fmt.Fprintf(&b, `<a:p><a:endParaRPr%s/></a:p>`, attrs)
	}
	for _, line := range lines {
		fmt.Fprintf(&b, `<a:p><a:r><a:rPr%s/><a:t>%s</a:t></a:r></a:p>`, attrs, esc(line))
	}
	b.WriteString(`</p:txBody></p:sp>`)
	return b.String()
}

func slideXML(section domain.ProfileSection) string {
	width := slideWidth - 2*margin

	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<p:sld xmlns:a="%s" xmlns:r="%s" xmlns:p="%s">`, nsA, nsR, nsP)
	b.WriteString(`<p:cSld><p:spTree>`)
	b.WriteString(groupShape)

	title := strings.TrimSpace(section.Title)
	b.WriteString(textBox(2, "Title", margin, 274638, width, 914400, 3200, true, false, []string{title}))
	b.WriteString(textBox(3, "Content", margin, 1371600, width, 4572000, 1600, false, false, paragraphs(section.Content)))

	var sources []string
	if s := strings.TrimSpace(section.Sources); s != "" {
		sources = []string{"Sources: " + s}
	}
	b.WriteString(textBox(4, "Sources", margin, 6035040, width, 548640, 1100, false, true, sources))

	b.WriteString(`</p:spTree></p:cSld>`)
	b.WriteString(`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`)
	b.WriteString(`</p:sld>`)
	return b.String()
}

var slideRelsXML = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="` + relSlideLayout + `" Target="../slideLayouts/slideLayout1.xml"/>` +
	`</Relationships>`

var slideLayoutXML = xmlHeader +
	`<p:sldLayout xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `" preserve="1">` +
	`<p:cSld name="Blank"><p:spTree>` + groupShape + `</p:spTree></p:cSld>` +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>` +
	`</p:sldLayout>`

var slideLayoutRelsXML = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="` + relSlideMaster + `" Target="../slideMasters/slideMaster1.xml"/>` +
	`</Relationships>`

var slideMasterXML = xmlHeader +
	`<p:sldMaster xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">` +
	`<p:cSld><p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg>` +
	`<p:spTree>` + groupShape + `</p:spTree></p:cSld>` +
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" ` +
	`accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`<p:txStyles>` +
	`<p:titleStyle><a:lvl1pPr><a:defRPr sz="3200"><a:solidFill><a:schemeClr val="tx1"/></a:solidFill><a:latin typeface="+mj-lt"/></a:defRPr></a:lvl1pPr></p:titleStyle>` +
	`<p:bodyStyle><a:lvl1pPr><a:defRPr sz="1600"><a:solidFill><a:schemeClr val="tx1"/></a:solidFill><a:latin typeface="+mn-lt"/></a:defRPr></a:lvl1pPr></p:bodyStyle>` +
	`<p:otherStyle><a:lvl1pPr><a:defRPr sz="1400"><a:solidFill><a:schemeClr val="tx1"/></a:solidFill><a:latin typeface="+mn-lt"/></a:defRPr></a:lvl1pPr></p:otherStyle>` +
	`</p:txStyles>` +
	`</p:sldMaster>`

var slideMasterRelsXML = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="` + relSlideLayout + `" Target="../slideLayouts/slideLayout1.xml"/>` +
	`<Relationship Id="rId2" Type="` + relTheme + `" Target="../theme/theme1.xml"/>` +
	`</Relationships>`

func solidFill(color string) string {
	return `<a:solidFill><a:srgbClr val="` + color + `"/></a:solidFill>`
}

var themeXML = xmlHeader +
	`<a:theme xmlns:a="` + nsA + `" name="Profile">` +
	`<a:themeElements>` +
	`<a:clrScheme name="Profile">` +
	`<a:dk1><a:srgbClr val="1F2933"/></a:dk1><a:lt1><a:srgbClr val="FFFFFF"/></a:lt1>` +
	`<a:dk2><a:srgbClr val="243B53"/></a:dk2><a:lt2><a:srgbClr val="F0F4F8"/></a:lt2>` +
	`<a:accent1><a:srgbClr val="2F6F9F"/></a:accent1><a:accent2><a:srgbClr val="4C9A8A"/></a:accent2>` +
	`<a:accent3><a:srgbClr val="D9822B"/></a:accent3><a:accent4><a:srgbClr val="8E6C8A"/></a:accent4>` +
	`<a:accent5><a:srgbClr val="B54D4D"/></a:accent5><a:accent6><a:srgbClr val="6B8E23"/></a:accent6>` +
	`<a:hlink><a:srgbClr val="2F6F9F"/></a:hlink><a:folHlink><a:srgbClr val="8E6C8A"/></a:folHlink>` +
	`</a:clrScheme>` +
	`<a:fontScheme name="Profile">` +
	`<a:majorFont><a:latin typeface="Calibri Light"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
	`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
	`</a:fontScheme>` +
	`<a:fmtScheme name="Profile">` +
	`<a:fillStyleLst>` + solidFill("FFFFFF") + solidFill("F0F4F8") + solidFill("D9E2EC") + `</a:fillStyleLst>` +
	`<a:lnStyleLst>` +
	`<a:ln w="6350">` + solidFill("1F2933") + `</a:ln>` +
	`<a:ln w="12700">` + solidFill("1F2933") + `</a:ln>` +
	`<a:ln w="19050">` + solidFill("1F2933") + `</a:ln>` +
	`</a:lnStyleLst>` +
	`<a:effectStyleLst>` +
	`<a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle>` +
	`</a:effectStyleLst>` +
	`<a:bgFillStyleLst>` + solidFill("FFFFFF") + solidFill("F0F4F8") + solidFill("D9E2EC") + `</a:bgFillStyleLst>` +
	`</a:fmtScheme>` +
	`</a:themeElements>` +
	`</a:theme>`
