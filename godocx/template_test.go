package godocx

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loopOpts = Options{ParagraphLoop: true, LineBreaks: true}

func TestRender_SplitRuns(t *testing.T) {
	body := par(run("Title: {"), run("short_"), run("title} end"))

	texts := renderBody(t, body, map[string]any{"short_title": "Note"}, loopOpts)
	require.Len(t, texts, 1)
	assert.Equal(t, "Title: Note end", texts[0])
}

func TestRender_NumberValues(t *testing.T) {
	body := par(run("{id}/{ratio}/{n}"))

	texts := renderBody(t, body, map[string]any{"id": 42, "ratio": 0.5, "n": uint8(3)}, loopOpts)
	assert.Equal(t, []string{"42/0.5/3"}, texts)
}

func TestRender_LineBreaks(t *testing.T) {
	body := par(run("[{long_title}]"))
	data := map[string]any{"long_title": "Line one\nLine two\r\nLine three"}

	texts := renderBody(t, body, data, loopOpts)
	assert.Equal(t, []string{"[Line one\nLine two\nLine three]"}, texts)

	tmpl, err := Open(docxWithBody(t, body))
	require.NoError(t, err)
	out, err := tmpl.Render(data, loopOpts)
	require.NoError(t, err)
	content, _ := out.Part(documentPart)
	assert.Equal(t, 2, strings.Count(string(content), "<w:br"))
}

func TestRender_LineBreaksDisabled(t *testing.T) {
	body := par(run("{long_title}"))

	texts := renderBody(t, body, map[string]any{"long_title": "a\nb"}, Options{})
	assert.Equal(t, []string{"a\nb"}, texts)
}

func TestRender_ParagraphLoop(t *testing.T) {
	body := par(run("{#items}")) + par(run("Item {name}")) + par(run("{/items}"))
	data := map[string]any{
		"items": []map[string]any{{"name": "A"}, {"name": "B"}},
	}

	texts := renderBody(t, body, data, loopOpts)
	assert.Equal(t, []string{"Item A", "Item B"}, texts)
}

func TestRender_LoopWithoutParagraphLoop(t *testing.T) {
	body := par(run("{#items}")) + par(run("Item {name}")) + par(run("{/items}"))
	data := map[string]any{
		"items": []map[string]any{{"name": "A"}, {"name": "B"}},
	}

	texts := renderBody(t, body, data, Options{})
	assert.Equal(t, []string{"", "Item A", "", "", "Item B", ""}, texts)
}

func TestRender_LoopKeepsSurroundingText(t *testing.T) {
	body := par(run("Before {#items}")) + par(run("{name}")) + par(run("{/items} after"))
	data := map[string]any{
		"items": []any{map[string]any{"name": "A"}},
	}

	texts := renderBody(t, body, data, loopOpts)
	assert.Equal(t, []string{"Before ", "A", " after"}, texts)
}

func TestRender_OuterScope(t *testing.T) {
	body := par(run("{#items}")) + par(run("{id}-{.}")) + par(run("{/items}"))
	data := map[string]any{"id": "X", "items": []string{"a", "b"}}

	texts := renderBody(t, body, data, loopOpts)
	assert.Equal(t, []string{"X-a", "X-b"}, texts)
}

func TestRender_InlineLoop(t *testing.T) {
	body := par(run("{#items}{name}, {/items}"))
	data := map[string]any{
		"items": []map[string]any{{"name": "A"}, {"name": "B"}},
	}

	texts := renderBody(t, body, data, loopOpts)
	assert.Equal(t, []string{"A, B, "}, texts)
}

func TestRender_Conditions(t *testing.T) {
	body := par(run("{#flag}yes{/flag}{^flag}no{/flag}")) + par(run("{^items}none{/items}"))

	texts := renderBody(t, body, map[string]any{"flag": true, "items": []any{}}, loopOpts)
	assert.Equal(t, []string{"yes", "none"}, texts)

	texts = renderBody(t, body, map[string]any{"flag": false, "items": []any{1}}, loopOpts)
	assert.Equal(t, []string{"no", ""}, texts)
}

func TestRender_NestedLoops(t *testing.T) {
	body := par(run("{#groups}")) +
		par(run("{title}: {#tags}{.} {/tags}")) +
		par(run("{/groups}"))
	data := map[string]any{
		"groups": []map[string]any{
			{"title": "G1", "tags": []string{"x", "y"}},
			{"title": "G2", "tags": []string{}},
		},
	}

	texts := renderBody(t, body, data, loopOpts)
	assert.Equal(t, []string{"G1: x y ", "G2: "}, texts)
}

func TestRender_TableRowLoop(t *testing.T) {
	body := `<w:tbl><w:tr><w:tc>` + par(run("{#rows}{name}")) + `</w:tc><w:tc>` +
		par(run("{qty}{/rows}")) + `</w:tc></w:tr></w:tbl>`
	data := map[string]any{
		"rows": []map[string]any{{"name": "A", "qty": 1}, {"name": "B", "qty": 2}},
	}

	tmpl, err := Open(docxWithBody(t, body))
	require.NoError(t, err)
	out, err := tmpl.Render(data, loopOpts)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "1", "B", "2"}, partTexts(t, out, documentPart))
	content, _ := out.Part(documentPart)
	assert.Equal(t, 2, strings.Count(string(content), "<w:tr>"))
}

func TestRender_ValueLooksLikeTag(t *testing.T) {
	body := par(run("{#items}")) + par(run("{name}")) + par(run("{/items}")) + par(run("{id}"))
	data := map[string]any{
		"id":    "{id}",
		"items": []map[string]any{{"name": "{#x}"}},
	}

	texts := renderBody(t, body, data, loopOpts)
	assert.Equal(t, []string{"{#x}", "{id}"}, texts)
}

func TestRender_MissingValue(t *testing.T) {
	tmpl, err := Open(docxWithBody(t, par(run("{id} {unknown}"))))
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]any{"id": 1}, loopOpts)
	require.Error(t, err)

	var missing *MissingValueError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "unknown", missing.Name)

	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, documentPart, renderErr.Part)
}

func TestRender_WrongType(t *testing.T) {
	tmpl, err := Open(docxWithBody(t, par(run("{id}"))))
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]any{"id": map[string]any{"a": 1}}, loopOpts)
	var typeErr *TypeError
	require.True(t, errors.As(err, &typeErr))
	assert.Equal(t, "id", typeErr.Name)
}

func TestRender_NilValueIsMissing(t *testing.T) {
	tmpl, err := Open(docxWithBody(t, par(run("{id}"))))
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]any{"id": nil}, loopOpts)
	var missing *MissingValueError
	assert.True(t, errors.As(err, &missing))
}

func TestRender_TagErrorsCollected(t *testing.T) {
	body := par(run("{abc")) + par(run("x } y")) + par(run("{#a}")) + par(run("{/b}"))

	tmpl, err := Open(docxWithBody(t, body))
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]any{}, loopOpts)
	require.Error(t, err)

	var tagErr *TagError
	require.True(t, errors.As(err, &tagErr))
	assert.Equal(t, documentPart, tagErr.Part)

	msg := err.Error()
	assert.Contains(t, msg, "незакрытый тег")
	assert.Contains(t, msg, "закрывающая скобка без открывающей")
	assert.Contains(t, msg, "ожидался {/a}")
	assert.Contains(t, msg, "незакрытый раздел")
}

func TestRender_UnopenedSection(t *testing.T) {
	tmpl, err := Open(docxWithBody(t, par(run("{/items}"))))
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]any{"items": []any{}}, loopOpts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "закрывающий тег без открывающего")
}

func TestRender_HeaderPart(t *testing.T) {
	header := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><w:hdr ` + wordNS + `>` +
		par(run("Ref {id}")) + `</w:hdr>`
	data := buildDocx(t,
		[2]string{"[Content_Types].xml", contentTypesXML},
		[2]string{"word/document.xml", documentXML(par(run("{id}")))},
		[2]string{"word/header1.xml", header},
		[2]string{"word/styles.xml", `<w:styles ` + wordNS + `>{not a tag}</w:styles>`},
	)

	tmpl, err := Open(data)
	require.NoError(t, err)
	out, err := tmpl.Render(map[string]any{"id": 7}, loopOpts)
	require.NoError(t, err)

	assert.Equal(t, []string{"Ref 7"}, partTexts(t, out, "word/header1.xml"))
	styles, _ := out.Part("word/styles.xml")
	assert.Contains(t, string(styles), "{not a tag}")
}

func TestRender_SourceUnchanged(t *testing.T) {
	tmpl, err := Open(docxWithBody(t, par(run("{id}"))))
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]any{"id": 1}, loopOpts)
	require.NoError(t, err)

	content, _ := tmpl.Part(documentPart)
	assert.Contains(t, string(content), "{id}")
}

func TestRender_Deterministic(t *testing.T) {
	tmpl, err := Open(docxWithBody(t, par(run("{id}"))))
	require.NoError(t, err)

	first, err := tmpl.Render(map[string]any{"id": 1}, loopOpts)
	require.NoError(t, err)
	second, err := tmpl.Render(map[string]any{"id": 1}, loopOpts)
	require.NoError(t, err)

	a, err := first.Bytes()
	require.NoError(t, err)
	b, err := second.Bytes()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// результат снова открывается как DOCX
	reopened, err := Open(a)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, partTexts(t, reopened, documentPart))
}

func TestProcessDocx(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "template.docx")
	out := filepath.Join(dir, "output.docx")
	require.NoError(t, os.WriteFile(in, docxWithBody(t, par(run("{id}: {short_title}"))), 0o644))

	err := ProcessDocx(in, out, map[string]any{"id": 7, "short_title": "Harbour Bill"}, loopOpts)
	require.NoError(t, err)

	tmpl, err := OpenFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"7: Harbour Bill"}, partTexts(t, tmpl, documentPart))

	// при ошибке подстановки файл не создается
	missing := filepath.Join(dir, "missing.docx")
	require.Error(t, ProcessDocx(in, missing, map[string]any{"id": 7}, loopOpts))
	assert.NoFileExists(t, missing)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open([]byte("definitely not a zip"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, zip.ErrFormat))
	assert.Contains(t, err.Error(), "zip: not a valid zip file")

	_, err = Open(buildDocx(t, [2]string{"[Content_Types].xml", contentTypesXML}))
	assert.ErrorIs(t, err, ErrNotDocx)
}

func TestRender_MalformedXML(t *testing.T) {
	tmpl, err := Open(buildDocx(t, [2]string{"word/document.xml", "<w:document attr=></w:document>"}))
	require.NoError(t, err)

	_, err = tmpl.Render(map[string]any{}, loopOpts)
	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Contains(t, err.Error(), "ошибка чтения XML")
}

func TestPlaceholders(t *testing.T) {
	body := par(run("{id} {#items}{name}{/items}")) + par(run("{id}"))

	tmpl, err := Open(docxWithBody(t, body))
	require.NoError(t, err)

	names, err := tmpl.Placeholders()
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "items", "name"}, names)
}

func TestRender_ConveyanceGolden(t *testing.T) {
	body := par(run("Conveyance Note")) +
		par(run("Reference: {id}")) +
		par(run("Short title: {short_title}")) +
		par(run("Long title:"), run(" {long_title}")) +
		par(run("Original title: {orig"), run("inal_title}"))
	data := map[string]any{
		"id":             1042,
		"short_title":    "Harbour Bill",
		"long_title":     "An Act to amend\nthe Harbour Act",
		"original_title": "Harbour (Amendment) Bill",
	}

	texts := renderBody(t, body, data, loopOpts)

	g := goldie.New(t)
	g.Assert(t, "conveyance_note", []byte(strings.Join(texts, "\n")+"\n"))
}
