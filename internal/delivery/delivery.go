// Package delivery передает сгенерированный документ пользователю:
// сохраняет в каталог или отдает как вложение в HTTP-ответе.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Navl-bm/conveyance-note/internal/generator"
)

// maxDuplicates ограничивает число попыток подобрать свободное имя
const maxDuplicates = 100

// DirSaver сохраняет документы в каталог. Существующие файлы не
// перезаписываются: к имени добавляется " (N)", как это делает браузер.
type DirSaver struct {
	dir    string
	logger *zap.Logger
	// OnSave вызывается с путем сохраненного файла
	OnSave func(path string)
}

// NewDirSaver создает каталог при необходимости
func NewDirSaver(dir string, logger *zap.Logger) (*DirSaver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ошибка создания каталога %s: %w", dir, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSaver{dir: dir, logger: logger}, nil
}

func (s *DirSaver) Save(ctx context.Context, a *generator.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ext := filepath.Ext(a.Filename)
	base := strings.TrimSuffix(a.Filename, ext)

	for n := 0; n < maxDuplicates; n++ {
		name := a.Filename
		if n > 0 {
			name = base + " (" + strconv.Itoa(n) + ")" + ext
		}
		path := filepath.Join(s.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}

		if _, err := io.Copy(f, a.Reader()); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}

		s.logger.Debug("Document saved", zap.String("path", path))
		if s.OnSave != nil {
			s.OnSave(path)
		}
		return nil
	}
	return fmt.Errorf("нет свободного имени для %s в %s", a.Filename, s.dir)
}

// HTTPSaver отдает документ как вложение в ответе
type HTTPSaver struct {
	w http.ResponseWriter
}

func NewHTTPSaver(w http.ResponseWriter) *HTTPSaver {
	return &HTTPSaver{w: w}
}

func (s *HTTPSaver) Save(_ context.Context, a *generator.Artifact) error {
	h := s.w.Header()
	h.Set("Content-Type", a.MimeType)
	h.Set("Content-Disposition", ContentDisposition(a.Filename))
	h.Set("Content-Length", strconv.Itoa(a.Size()))
	h.Set("Cache-Control", "no-store")

	s.w.WriteHeader(http.StatusOK)
	_, err := io.Copy(s.w, a.Reader())
	return err
}

// ContentDisposition формирует заголовок вложения с именем файла
func ContentDisposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
