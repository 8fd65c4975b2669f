package generator

import (
	"bytes"
	"io"
	"time"

	"github.com/Navl-bm/conveyance-note/godocx"
)

const (
	// TemplateName - имя шаблона в корне публичных файлов
	TemplateName = "conveyance-template.docx"
	// DocumentTitle входит в имя сгенерированного файла
	DocumentTitle = "Conveyance Note"
	// Extension - расширение сгенерированного файла
	Extension = ".docx"
	// MimeType - тип содержимого сгенерированного файла
	MimeType = godocx.MimeType
)

// Artifact - сгенерированный документ. Содержимое не изменяется после создания.
type Artifact struct {
	Filename string
	MimeType string
	Content  []byte
}

// Reader возвращает содержимое для записи
func (a *Artifact) Reader() io.Reader {
	return bytes.NewReader(a.Content)
}

// Size - размер содержимого в байтах
func (a *Artifact) Size() int {
	return len(a.Content)
}

// Filename строит имя файла "YYYY-MM-DD Conveyance Note (HHMMSS).docx".
// Используется часовой пояс переданного времени.
func Filename(now time.Time) string {
	return now.Format("2006-01-02") + " " + DocumentTitle + " (" + now.Format("150405") + ")" + Extension
}

// Clock - источник текущего времени
type Clock interface {
	Now() time.Time
}

// ClockFunc позволяет использовать функцию как Clock
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock возвращает местное время
var SystemClock Clock = ClockFunc(time.Now)
