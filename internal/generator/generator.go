// Package generator заполняет шаблон уведомления о передаче (conveyance note)
// данными записи CMS и передает готовый документ на сохранение.
//
// Generate никогда не возвращает ошибку и не паникует: результат описывает
// успех или вид ошибки, а сообщение для пользователя отправляется в Notifier.
package generator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Navl-bm/conveyance-note/godocx"
)

// TemplateSource загружает байты шаблона
type TemplateSource interface {
	Fetch(ctx context.Context) ([]byte, error)
	// Location описывает, откуда загружается шаблон (URL или путь)
	Location() string
}

// Saver передает готовый документ пользователю
type Saver interface {
	Save(ctx context.Context, a *Artifact) error
}

// Notifier - канал уведомлений пользователя
type Notifier interface {
	Advise(ctx context.Context, message string)
}

// Result - итог одного вызова Generate
type Result struct {
	Kind     Kind
	Artifact *Artifact
	Err      error
	// Advisory - сообщение, отправленное пользователю при ошибке
	Advisory string
}

// OK сообщает об успешной генерации
func (r Result) OK() bool {
	return r.Kind == KindOK
}

// Generator не хранит изменяемого состояния; вызовы независимы.
type Generator struct {
	source   TemplateSource
	notifier Notifier
	clock    Clock
	logger   *zap.Logger
	opts     godocx.Options
}

// Option настраивает Generator
type Option func(*Generator)

// WithNotifier задает канал уведомлений. Без него сообщения только логируются.
func WithNotifier(n Notifier) Option {
	return func(g *Generator) { g.notifier = n }
}

// WithClock задает источник времени для имени файла
func WithClock(c Clock) Option {
	return func(g *Generator) { g.clock = c }
}

// WithLogger задает логгер
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithRenderOptions переопределяет настройки подстановки
func WithRenderOptions(o godocx.Options) Option {
	return func(g *Generator) { g.opts = o }
}

// New создает генератор для заданного источника шаблона
func New(source TemplateSource, opts ...Option) *Generator {
	g := &Generator{
		source: source,
		clock:  SystemClock,
		logger: zap.NewNop(),
		opts:   godocx.Options{ParagraphLoop: true, LineBreaks: true},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Render выполняет шаги от загрузки шаблона до вычисления имени файла
func (g *Generator) Render(ctx context.Context, rec *SourceRecord) (*Artifact, error) {
	if rec == nil {
		return nil, &PreconditionError{Message: NoRecordMessage}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	// Шаг 1: загрузка шаблона
	data, err := g.source.Fetch(ctx)
	if err != nil {
		return nil, &TemplateNotFoundError{Name: TemplateName, Location: g.source.Location(), Err: err}
	}

	// Шаг 2: разбор архива
	tmpl, err := godocx.Open(data)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	// Шаг 3: подстановка значений
	doc, err := tmpl.Render(rec.Data(), g.opts)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	// Шаг 4: упаковка
	content, err := doc.Bytes()
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	// Шаг 5: имя файла
	return &Artifact{
		Filename: Filename(g.clock.Now()),
		MimeType: MimeType,
		Content:  content,
	}, nil
}

// Generate создает документ и передает его saver. saver может быть nil,
// если вызывающий сам распоряжается Result.Artifact.
func (g *Generator) Generate(ctx context.Context, rec *SourceRecord, saver Saver) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = g.fail(ctx, rec, &GenerationError{Err: fmt.Errorf("panic: %v", p)})
		}
	}()

	artifact, err := g.Render(ctx, rec)
	if err != nil {
		return g.fail(ctx, rec, err)
	}

	// Шаг 6: передача пользователю
	if saver != nil {
		if err := saver.Save(ctx, artifact); err != nil {
			return g.fail(ctx, rec, &GenerationError{Err: fmt.Errorf("ошибка сохранения: %w", err)})
		}
	}

	g.logger.Info("Document generated",
		zap.String("id", rec.ID.String()),
		zap.String("filename", artifact.Filename),
		zap.Int("bytes", artifact.Size()))

	return Result{Kind: KindOK, Artifact: artifact}
}

func (g *Generator) fail(ctx context.Context, rec *SourceRecord, err error) Result {
	res := Result{Kind: KindOf(err), Err: err, Advisory: Advisory(err)}

	if res.Kind == KindPrecondition {
		g.logger.Warn("Document not generated", zap.String("reason", res.Advisory))
	} else {
		fields := []zap.Field{zap.Error(err), zap.String("kind", res.Kind.String())}
		if rec != nil {
			fields = append(fields, zap.String("id", rec.ID.String()))
		}
		g.logger.Error("Error generating document", fields...)
	}

	if g.notifier != nil {
		g.notifier.Advise(ctx, res.Advisory)
	}
	return res
}
