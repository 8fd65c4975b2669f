// Package server - HTTP-сервер: отдает публичные файлы (в том числе шаблон)
// и формирует уведомление о передаче по идентификатору записи CMS.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Navl-bm/conveyance-note/internal/cms"
	"github.com/Navl-bm/conveyance-note/internal/delivery"
	"github.com/Navl-bm/conveyance-note/internal/generator"
)

// Records - чтение записей CMS
type Records interface {
	ReadRecord(ctx context.Context, collection, id string) (*generator.SourceRecord, error)
	ReadItems(ctx context.Context, collection string, q cms.Query) ([]map[string]any, error)
}

// Server обслуживает HTTP-запросы
type Server struct {
	gen             *generator.Generator
	records         Records
	collection      string
	publicDir       string
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

type Option func(*Server)

// WithPublicDir задает каталог статических файлов
func WithPublicDir(dir string) Option {
	return func(s *Server) { s.publicDir = dir }
}

// WithCollection задает коллекцию CMS с записями
func WithCollection(name string) Option {
	return func(s *Server) { s.collection = name }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func New(gen *generator.Generator, records Records, opts ...Option) *Server {
	s := &Server{
		gen:             gen,
		records:         records,
		collection:      "proposals",
		publicDir:       "public",
		shutdownTimeout: 10 * time.Second,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler возвращает маршруты сервера
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/proposals", s.handleList)
	mux.HandleFunc("GET /api/proposals/{id}/conveyance-note", s.handleGenerate)
	mux.Handle("GET /", http.FileServer(http.Dir(s.publicDir)))
	return s.withRequestID(mux)
}

type ctxKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return s.logger.With(zap.String("request_id", id), zap.String("path", r.URL.Path))
}

// errorBody - тело ответа при ошибке
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(k generator.Kind) int {
	switch k {
	case generator.KindPrecondition:
		return http.StatusBadRequest
	case generator.KindTemplateNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// trackingWriter запоминает, был ли уже отправлен заголовок ответа
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) WriteHeader(code int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	id := r.PathValue("id")

	rec, err := s.records.ReadRecord(r.Context(), s.collection, id)
	var pre *generator.PreconditionError
	switch {
	case errors.Is(err, cms.ErrNotFound):
		// Записи нет: то же, что генерация без выбранной записи
		log.Debug("Record not found", zap.String("id", id))
		rec = nil
	case errors.As(err, &pre):
		writeJSON(w, http.StatusBadRequest, errorBody{Kind: generator.KindPrecondition.String(), Message: pre.Message})
		return
	case err != nil:
		log.Error("CMS request failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Kind: "cms", Message: err.Error()})
		return
	}

	tw := &trackingWriter{ResponseWriter: w}
	res := s.gen.Generate(r.Context(), rec, delivery.NewHTTPSaver(tw))
	if res.OK() {
		log.Info("Document sent", zap.String("filename", res.Artifact.Filename))
		return
	}
	if tw.wrote {
		// Заголовок уже отправлен, сообщить об ошибке клиенту нельзя
		log.Warn("Response aborted", zap.Error(res.Err))
		return
	}
	writeJSON(w, statusOf(res.Kind), errorBody{Kind: res.Kind.String(), Message: res.Advisory})
}

// proposal - элемент списка записей
type proposal struct {
	ID         any    `json:"id"`
	ShortTitle string `json:"short_title"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := cms.Query{
		Fields: []string{generator.FieldID, generator.FieldShortTitle},
		Sort:   []string{generator.FieldID},
		Limit:  -1,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Kind: "request", Message: "invalid limit"})
			return
		}
		q.Limit = n
	}

	items, err := s.records.ReadItems(r.Context(), s.collection, q)
	if err != nil {
		s.requestLogger(r).Error("CMS request failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorBody{Kind: "cms", Message: err.Error()})
		return
	}

	out := make([]proposal, 0, len(items))
	for _, item := range items {
		title, _ := item[generator.FieldShortTitle].(string)
		out = append(out, proposal{ID: item[generator.FieldID], ShortTitle: title})
	}
	writeJSON(w, http.StatusOK, out)
}

// Run слушает addr до отмены ctx
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve обслуживает ln до отмены ctx, затем корректно завершает работу
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.logger.Info("Server stopping")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
