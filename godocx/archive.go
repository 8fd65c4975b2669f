package godocx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
)

// MimeType - MIME-тип документа Office Open XML
const MimeType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

const documentPart = "word/document.xml"

// Части документа, в которых выполняется подстановка
var templatePartRe = regexp.MustCompile(`^word/(document|header\d*|footer\d*|footnotes|endnotes)\.xml$`)

// ErrNotDocx возвращается, если в архиве нет word/document.xml
var ErrNotDocx = errors.New("не является DOCX: отсутствует " + documentPart)

// entry - файл архива вместе с исходным заголовком
type entry struct {
	header zip.FileHeader
	data   []byte
}

// archive хранит содержимое DOCX в памяти, сохраняя порядок файлов
type archive struct {
	entries []*entry
	index   map[string]*entry
}

// readArchive разархивирует DOCX из памяти
func readArchive(data []byte) (*archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки: %w", err)
	}

	a := &archive{index: make(map[string]*entry, len(r.File))}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		content, err := extractFile(f)
		if err != nil {
			return nil, fmt.Errorf("ошибка распаковки %s: %w", f.Name, err)
		}
		e := &entry{header: f.FileHeader, data: content}
		a.entries = append(a.entries, e)
		a.index[f.Name] = e
	}

	if _, ok := a.index[documentPart]; !ok {
		return nil, ErrNotDocx
	}
	return a, nil
}

// Извлекает отдельный файл из архива
func extractFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// templateParts возвращает имена XML-частей для подстановки в порядке архива
func (a *archive) templateParts() []string {
	var parts []string
	for _, e := range a.entries {
		if templatePartRe.MatchString(e.header.Name) {
			parts = append(parts, e.header.Name)
		}
	}
	return parts
}

func (a *archive) part(name string) []byte {
	if e, ok := a.index[name]; ok {
		return e.data
	}
	return nil
}

// clone копирует архив; данные неизмененных частей разделяются
func (a *archive) clone() *archive {
	c := &archive{
		entries: make([]*entry, len(a.entries)),
		index:   make(map[string]*entry, len(a.entries)),
	}
	for i, e := range a.entries {
		ce := &entry{header: e.header, data: e.data}
		c.entries[i] = ce
		c.index[ce.header.Name] = ce
	}
	return c
}

func (a *archive) setPart(name string, data []byte) {
	if e, ok := a.index[name]; ok {
		e.data = data
	}
}

// writeTo упаковывает архив. Имена и время изменения берутся из исходных
// заголовков, поэтому одинаковое содержимое дает одинаковые байты.
func (a *archive) writeTo(w io.Writer) error {
	writer := zip.NewWriter(w)

	for _, e := range a.entries {
		header := &zip.FileHeader{
			Name:     path.Clean(e.header.Name),
			Method:   zip.Deflate,
			Modified: e.header.Modified,
		}
		if e.header.Method == zip.Store {
			header.Method = zip.Store
		}

		entry, err := writer.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("ошибка упаковки %s: %w", e.header.Name, err)
		}
		if _, err := entry.Write(e.data); err != nil {
			return fmt.Errorf("ошибка упаковки %s: %w", e.header.Name, err)
		}
	}

	return writer.Close()
}
