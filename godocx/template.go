// Package godocx заполняет шаблоны DOCX данными.
//
// Теги записываются в фигурных скобках: {name} подставляет значение,
// {#items}...{/items} повторяет фрагмент для каждого элемента списка,
// {^items}...{/items} выводит фрагмент, если значение пустое. Теги могут
// быть разбиты Word на несколько run.
package godocx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/beevik/etree"
)

// Template - DOCX в памяти. Render не изменяет исходный шаблон.
type Template struct {
	arc *archive
}

// Open разбирает DOCX из байтов
func Open(data []byte) (*Template, error) {
	arc, err := readArchive(data)
	if err != nil {
		return nil, err
	}
	return &Template{arc: arc}, nil
}

// OpenFile читает DOCX с диска
func OpenFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения шаблона: %w", err)
	}
	return Open(data)
}

// Render возвращает новый документ с подставленными значениями.
// Ошибки синтаксиса тегов собираются по всем частям документа.
func (t *Template) Render(data map[string]any, opts Options) (*Template, error) {
	out := t.arc.clone()

	docs := make(map[string]*etree.Document)
	var errs []error
	for _, part := range out.templateParts() {
		doc, err := readXML(out.part(part))
		if err != nil {
			return nil, &RenderError{Part: part, Err: err}
		}
		docs[part] = doc
		errs = append(errs, validate(part, doc.Root())...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, part := range out.templateParts() {
		doc := docs[part]
		r := newRenderer(part, opts)
		if err := r.renderContainer(doc.Root(), scope{data}); err != nil {
			return nil, &RenderError{Part: part, Err: err}
		}

		content, err := doc.WriteToBytes()
		if err != nil {
			return nil, &RenderError{Part: part, Err: err}
		}
		out.setPart(part, content)
	}

	return &Template{arc: out}, nil
}

// Placeholders возвращает имена тегов шаблона без повторов
func (t *Template) Placeholders() ([]string, error) {
	var (
		names []string
		errs  []error
	)
	seen := make(map[string]bool)

	for _, part := range t.arc.templateParts() {
		doc, err := readXML(t.arc.part(part))
		if err != nil {
			return nil, &RenderError{Part: part, Err: err}
		}
		errs = append(errs, validate(part, doc.Root())...)

		for _, p := range paragraphs(doc.Root()) {
			tags, _ := parseTags(paragraphText(p))
			for _, tg := range tags {
				if tg.kind == tagClose || seen[tg.name] {
					continue
				}
				seen[tg.name] = true
				names = append(names, tg.name)
			}
		}
	}
	return names, errors.Join(errs...)
}

// Bytes упаковывает документ в DOCX
func (t *Template) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.arc.writeTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo записывает DOCX в w
func (t *Template) WriteTo(w io.Writer) (int64, error) {
	data, err := t.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Part возвращает содержимое части документа, например word/document.xml
func (t *Template) Part(name string) ([]byte, bool) {
	data := t.arc.part(name)
	return data, data != nil
}

// ProcessDocx заполняет шаблон с диска и сохраняет результат в outputPath
func ProcessDocx(templatePath, outputPath string, data map[string]any, opts Options) error {
	tmpl, err := OpenFile(templatePath)
	if err != nil {
		return err
	}

	doc, err := tmpl.Render(data, opts)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		os.Remove(outputPath)
		return err
	}
	return f.Close()
}

func readXML(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()

	// Настройки записи
	doc.WriteSettings = etree.WriteSettings{
		CanonicalAttrVal: true,
		CanonicalText:    true,
		CanonicalEndTags: true,
	}

	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("ошибка чтения XML: %w", err)
	}
	if doc.Root() == nil {
		return nil, errors.New("ошибка чтения XML: нет корневого элемента")
	}
	return doc, nil
}
