package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Navl-bm/conveyance-note/godocx"
	"github.com/Navl-bm/conveyance-note/internal/assets"
	"github.com/Navl-bm/conveyance-note/internal/cms"
	"github.com/Navl-bm/conveyance-note/internal/generator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func templateDocx(t *testing.T) []byte {
	t.Helper()

	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>{id}: {short_title}</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>{long_title} / {original_title}</w:t></w:r></w:p>` +
		`</w:body></w:document>`

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type fakeRecords struct {
	records map[string]*generator.SourceRecord
	err     error
}

func (f *fakeRecords) ReadRecord(_ context.Context, collection, id string) (*generator.SourceRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if collection != "proposals" {
		return nil, errors.New("unexpected collection " + collection)
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, cms.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRecords) ReadItems(_ context.Context, _ string, q cms.Query) ([]map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	items := []map[string]any{
		{"id": json.Number("7"), "short_title": "Harbour Bill"},
		{"id": "draft-2", "short_title": "Rail Bill"},
	}
	if q.Limit > 0 && q.Limit < len(items) {
		items = items[:q.Limit]
	}
	return items, nil
}

// newTestServer создает сервер с каталогом public, содержащим шаблон
func newTestServer(t *testing.T, records Records, withTemplate bool) *Server {
	t.Helper()

	dir := t.TempDir()
	if withTemplate {
		require.NoError(t, os.WriteFile(filepath.Join(dir, generator.TemplateName), templateDocx(t), 0o644))
	}
	gen := generator.New(assets.NewDirSource(dir, generator.TemplateName))
	return New(gen, records, WithPublicDir(dir))
}

func sampleRecords() *fakeRecords {
	return &fakeRecords{records: map[string]*generator.SourceRecord{
		"7": {
			ID:            generator.IntID(7),
			LongTitle:     "An Act to amend the Harbour Act",
			ShortTitle:    "Harbour Bill",
			OriginalTitle: "Harbour (Amendment) Bill",
		},
	}}
}

func serve(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGenerateEndpoint(t *testing.T) {
	s := newTestServer(t, sampleRecords(), true)

	rec := serve(s, "/api/proposals/7/conveyance-note")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, generator.MimeType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Conveyance Note (")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	tmpl, err := godocx.Open(rec.Body.Bytes())
	require.NoError(t, err)
	doc, ok := tmpl.Part("word/document.xml")
	require.True(t, ok)
	assert.Contains(t, string(doc), "7: Harbour Bill")
	assert.Contains(t, string(doc), "An Act to amend the Harbour Act / Harbour (Amendment) Bill")
}

func TestGenerateEndpoint_UnknownRecord(t *testing.T) {
	s := newTestServer(t, sampleRecords(), true)

	rec := serve(s, "/api/proposals/99/conveyance-note")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errorBody{Kind: "precondition", Message: "Please select a proposal first."}, decodeError(t, rec))
}

func TestGenerateEndpoint_IncompleteRecord(t *testing.T) {
	records := &fakeRecords{err: &generator.PreconditionError{Message: "record is missing required field short_title"}}
	s := newTestServer(t, records, true)

	rec := serve(s, "/api/proposals/7/conveyance-note")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "record is missing required field short_title", decodeError(t, rec).Message)
}

func TestGenerateEndpoint_TemplateMissing(t *testing.T) {
	s := newTestServer(t, sampleRecords(), false)

	rec := serve(s, "/api/proposals/7/conveyance-note")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "template_not_found", body.Kind)
	assert.True(t, strings.HasPrefix(body.Message, "An error occurred: Template not found."), body.Message)
}

func TestGenerateEndpoint_CMSFailure(t *testing.T) {
	records := &fakeRecords{err: &cms.APIError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "denied"}}
	s := newTestServer(t, records, true)

	rec := serve(s, "/api/proposals/7/conveyance-note")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "cms", decodeError(t, rec).Kind)
}

func TestGenerateEndpoint_IDEscapedForCMS(t *testing.T) {
	paths := make(chan [2]string, 1)
	cmsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- [2]string{r.URL.Path, r.URL.EscapedPath()}
		http.NotFound(w, r)
	}))
	defer cmsSrv.Close()

	client, err := cms.New(cmsSrv.URL, cms.WithToken("admin-token"), cms.WithHTTPClient(cmsSrv.Client()))
	require.NoError(t, err)
	s := newTestServer(t, client, true)

	rec := serve(s, "/api/proposals/users%2Fme/conveyance-note")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "precondition", decodeError(t, rec).Kind)
	assert.Equal(t, [2]string{"/items/proposals/users/me", "/items/proposals/users%2Fme"}, <-paths)
}

func TestListEndpoint(t *testing.T) {
	s := newTestServer(t, sampleRecords(), true)

	rec := serve(s, "/api/proposals")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":7,"short_title":"Harbour Bill"},{"id":"draft-2","short_title":"Rail Bill"}]`, rec.Body.String())

	rec = serve(s, "/api/proposals?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":7,"short_title":"Harbour Bill"}]`, rec.Body.String())

	rec = serve(s, "/api/proposals?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublicFiles(t *testing.T) {
	s := newTestServer(t, sampleRecords(), true)

	rec := serve(s, "/"+generator.TemplateName)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, templateDocx(t)[:4], rec.Body.Bytes()[:4])

	rec = serve(s, "/missing.docx")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, sampleRecords(), true)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

// Шаблон загружается по HTTP с того же сервера, из корня публичных файлов
func TestServe_TemplateOverHTTP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	baseURL := "http://" + ln.Addr().String()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, generator.TemplateName), templateDocx(t), 0o644))

	tr := &http.Transport{DisableKeepAlives: true}
	defer tr.CloseIdleConnections()
	client := &http.Client{Transport: tr, Timeout: 5 * time.Second}

	source, err := assets.NewHTTPSource(baseURL, generator.TemplateName, client)
	require.NoError(t, err)
	s := New(generator.New(source), sampleRecords(), WithPublicDir(dir), WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := client.Get(baseURL + "/api/proposals/7/conveyance-note")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, generator.MimeType, resp.Header.Get("Content-Type"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
