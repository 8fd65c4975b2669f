package godocx

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
)

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/></Relationships>`
	wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`
)

var fixtureTime = time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC)

// buildDocx собирает DOCX из частей в заданном порядке
func buildDocx(t *testing.T, parts ...[2]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, p := range parts {
		f, err := w.CreateHeader(&zip.FileHeader{Name: p[0], Method: zip.Deflate, Modified: fixtureTime})
		require.NoError(t, err)
		_, err = f.Write([]byte(p[1]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func documentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document ` + wordNS + `><w:body>` + body + `<w:sectPr/></w:body></w:document>`
}

// docxWithBody собирает минимальный DOCX с заданным содержимым w:body
func docxWithBody(t *testing.T, body string) []byte {
	t.Helper()
	return buildDocx(t,
		[2]string{"[Content_Types].xml", contentTypesXML},
		[2]string{"_rels/.rels", relsXML},
		[2]string{"word/document.xml", documentXML(body)},
	)
}

func par(runs ...string) string {
	return "<w:p>" + strings.Join(runs, "") + "</w:p>"
}

func run(text string) string {
	return `<w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">` + text + `</w:t></w:r>`
}

// renderBody заполняет шаблон и возвращает тексты параграфов документа
func renderBody(t *testing.T, body string, data map[string]any, opts Options) []string {
	t.Helper()

	tmpl, err := Open(docxWithBody(t, body))
	require.NoError(t, err)

	out, err := tmpl.Render(data, opts)
	require.NoError(t, err)

	return partTexts(t, out, documentPart)
}

// partTexts возвращает тексты параграфов части; w:br выводится как \n
func partTexts(t *testing.T, tmpl *Template, part string) []string {
	t.Helper()

	content, ok := tmpl.Part(part)
	require.True(t, ok, "part %s", part)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(content))

	var texts []string
	for _, para := range paragraphs(doc.Root()) {
		var sb strings.Builder
		var walk func(e *etree.Element)
		walk = func(e *etree.Element) {
			for _, c := range e.ChildElements() {
				switch c.FullTag() {
				case tagText:
					sb.WriteString(c.Text())
				case tagBreak:
					sb.WriteString("\n")
				case tagParagraph:
				default:
					walk(c)
				}
			}
		}
		walk(para)
		texts = append(texts, sb.String())
	}
	return texts
}
