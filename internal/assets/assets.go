// Package assets загружает шаблон документа из публичного каталога
// приложения: по HTTP относительно корня статических файлов или из fs.FS.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

// MaxTemplateSize ограничивает размер загружаемого шаблона
const MaxTemplateSize = 32 << 20

// ErrTooLarge возвращается, если шаблон больше MaxTemplateSize
var ErrTooLarge = errors.New("шаблон превышает допустимый размер")

// HTTPSource загружает шаблон по относительному пути от корня публичных файлов
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource создает источник для baseURL + "/" + name
func NewHTTPSource(baseURL, name string, client *http.Client) (*HTTPSource, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("неверный адрес шаблона %q: %w", baseURL, err)
	}
	base.Path = path.Join("/", base.Path, name)

	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: base.String(), client: client}, nil
}

func (s *HTTPSource) Location() string {
	return s.url
}

// Fetch загружает шаблон. Ответ не 2xx считается отсутствием шаблона.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", s.url, resp.Status)
	}
	return readLimited(resp.Body)
}

// DirSource читает шаблон из файловой системы
type DirSource struct {
	fsys     fs.FS
	name     string
	location string
}

// NewDirSource читает name из каталога dir
func NewDirSource(dir, name string) *DirSource {
	return &DirSource{fsys: os.DirFS(dir), name: name, location: filepath.Join(dir, name)}
}

// NewFSSource читает name из произвольной fs.FS, например embed.FS
func NewFSSource(fsys fs.FS, name string) *DirSource {
	return &DirSource{fsys: fsys, name: name, location: name}
}

func (s *DirSource) Location() string {
	return s.location
}

func (s *DirSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.fsys.Open(s.name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readLimited(f)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxTemplateSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxTemplateSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
