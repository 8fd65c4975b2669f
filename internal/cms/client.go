// Package cms - клиент REST API Directus.
//
// Клиент создается один раз при запуске, после этого не изменяется и
// передается по ссылке всем компонентам, которым нужны данные CMS.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Navl-bm/conveyance-note/internal/generator"
)

// ErrNotFound возвращается, если элемент не найден
var ErrNotFound = errors.New("элемент не найден")

// errNoData - успешный ответ без data или с data: null
var errNoData = fmt.Errorf("%w: пустой ответ", ErrNotFound)

// APIError - ошибка, возвращенная Directus
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("directus: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("directus: %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client обращается к /items Directus
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *zap.Logger
}

// Option настраивает Client
type Option func(*Client)

// WithToken задает статический токен доступа
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient задает HTTP-клиент
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger задает логгер
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New создает клиент для экземпляра Directus по адресу rawURL
func New(rawURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("неверный адрес CMS %q: %w", rawURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("неверный адрес CMS %q: нужна схема http или https", rawURL)
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Query - параметры чтения списка. Фильтрация не поддерживается.
type Query struct {
	Fields []string
	Sort   []string
	Limit  int
	Offset int
}

func (q Query) values() url.Values {
	v := url.Values{}
	if len(q.Fields) > 0 {
		v.Set("fields", strings.Join(q.Fields, ","))
	}
	if len(q.Sort) > 0 {
		v.Set("sort", strings.Join(q.Sort, ","))
	}
	if q.Limit != 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// ReadItem читает один элемент коллекции
func (c *Client) ReadItem(ctx context.Context, collection, id string, fields ...string) (map[string]any, error) {
	var item map[string]any
	q := Query{Fields: fields}
	if err := c.get(ctx, []string{"items", collection, id}, q.values(), &item); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// ReadItems читает элементы коллекции
func (c *Client) ReadItems(ctx context.Context, collection string, q Query) ([]map[string]any, error) {
	var items []map[string]any
	err := c.get(ctx, []string{"items", collection}, q.values(), &items)
	if errors.Is(err, errNoData) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

// RecordFields - поля записи, запрашиваемые для генерации
var RecordFields = generator.RequiredFields

// ReadRecord читает запись для генерации документа
func (c *Client) ReadRecord(ctx context.Context, collection, id string) (*generator.SourceRecord, error) {
	item, err := c.ReadItem(ctx, collection, id, RecordFields...)
	if err != nil {
		return nil, err
	}
	return generator.RecordFromMap(item)
}

// endpoint добавляет сегменты к базовому адресу. Каждый сегмент экранируется
// целиком, поэтому идентификатор не может выйти за пределы /items/<collection>/.
func (c *Client) endpoint(segments []string) (*url.URL, error) {
	u := *c.base
	path := strings.TrimSuffix(u.Path, "/")
	raw := strings.TrimSuffix(u.EscapedPath(), "/")
	for _, seg := range segments {
		if seg == "" || seg == "." || seg == ".." {
			return nil, fmt.Errorf("%w: недопустимый идентификатор %q", ErrNotFound, seg)
		}
		path += "/" + seg
		raw += "/" + url.PathEscape(seg)
	}
	u.Path = path
	u.RawPath = raw
	return &u, nil
}

func (c *Client) get(ctx context.Context, segments []string, query url.Values, out any) error {
	u, err := c.endpoint(segments)
	if err != nil {
		return err
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directus: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("CMS request",
		zap.String("url", u.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("directus: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, body)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("directus: ошибка разбора ответа: %w", err)
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return errNoData
	}

	dec := json.NewDecoder(bytes.NewReader(envelope.Data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("directus: ошибка разбора ответа: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Errors []struct {
			Message    string `json:"message"`
			Extensions struct {
				Code string `json:"code"`
			} `json:"extensions"`
		} `json:"errors"`
	}

	apiErr := &APIError{Status: status, Message: http.StatusText(status)}
	if json.Unmarshal(body, &payload) == nil && len(payload.Errors) > 0 {
		apiErr.Message = payload.Errors[0].Message
		apiErr.Code = payload.Errors[0].Extensions.Code
	}
	return apiErr
}
