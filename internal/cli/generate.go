package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/Navl-bm/conveyance-note/godocx"
	"github.com/Navl-bm/conveyance-note/internal/cms"
	"github.com/Navl-bm/conveyance-note/internal/delivery"
	"github.com/Navl-bm/conveyance-note/internal/generator"
	"github.com/Navl-bm/conveyance-note/internal/notify"
)

// maxParallel ограничивает число одновременных генераций при --id a --id b
const maxParallel = 4

type generateOptions struct {
	ids        []string
	recordPath string
	fields     map[string]string
	outputDir  string
	check      bool
}

// NewGenerateCommand создает команду generate
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a conveyance note",
		Long: `Fill conveyance-template.docx with a proposal record and save the
result as "YYYY-MM-DD Conveyance Note (HHMMSS).docx".

The record is read from Directus (--id, repeatable), from a YAML/JSON file
(--record) or from --field key=value pairs.`,
		Example: `  conveyance generate --id 42
  conveyance generate --record proposal.yaml --output notes/
  conveyance generate --field id=7 --field short_title="Harbour Bill" ...
  conveyance generate --check`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.init(); err != nil {
				return err
			}
			if opts.check {
				return runCheck(cmd.Context(), rootOpts, cmd.OutOrStdout())
			}
			return runGenerate(cmd.Context(), rootOpts, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringArrayVar(&opts.ids, "id", nil, "proposal id in the CMS (repeatable)")
	cmd.Flags().StringVarP(&opts.recordPath, "record", "r", "", "read the record from a YAML or JSON file")
	cmd.Flags().StringToStringVar(&opts.fields, "field", nil, "record field as key=value")
	cmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "output directory (default from config)")
	cmd.Flags().BoolVar(&opts.check, "check", false, "list the template placeholders and exit")
	cmd.MarkFlagsMutuallyExclusive("id", "record", "field")

	return cmd
}

func runGenerate(ctx context.Context, root *RootOptions, opts *generateOptions, stdout, stderr io.Writer) error {
	logger := root.Logger

	source, err := root.templateSource()
	if err != nil {
		return err
	}

	outputDir := opts.outputDir
	if outputDir == "" {
		outputDir = root.Config.Output.Dir
	}
	saver, err := delivery.NewDirSaver(outputDir, logger)
	if err != nil {
		return err
	}
	var mu sync.Mutex
	saver.OnSave = func(path string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(stdout, path)
	}

	// Уведомления выводятся пользователю и дублируются в лог
	advisor := notify.Multi(notify.NewWriter(stderr), notify.NewLogger(logger.Named("advisory")))
	gen := generator.New(source,
		generator.WithNotifier(advisor),
		generator.WithLogger(logger.Named("generator")),
	)

	if len(opts.ids) == 0 {
		rec, err := localRecord(opts)
		if err != nil {
			var pre *generator.PreconditionError
			if errors.As(err, &pre) {
				advisor.Advise(ctx, pre.Message)
				return &ExitError{Code: ExitPrecondition, Err: err, Reported: true}
			}
			return err
		}
		return resultError(gen.Generate(ctx, rec, saver))
	}

	client, err := root.cmsClient()
	if err != nil {
		return err
	}
	b := &batch{
		client:     client,
		collection: root.Config.CMS.Collection,
		gen:        gen,
		saver:      saver,
		advisor:    advisor,
		logger:     logger,
	}
	return b.run(ctx, opts.ids)
}

// localRecord читает запись из файла или флагов --field. Без них записи нет.
func localRecord(opts *generateOptions) (*generator.SourceRecord, error) {
	switch {
	case opts.recordPath != "":
		return readRecordFile(opts.recordPath)
	case len(opts.fields) > 0:
		m := make(map[string]any, len(opts.fields))
		for k, v := range opts.fields {
			m[k] = v
		}
		return generator.RecordFromMap(m)
	default:
		return nil, nil
	}
}

func readRecordFile(path string) (*generator.SourceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m map[string]any
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора записи %s: %w", path, err)
	}
	return generator.RecordFromMap(m)
}

// batch читает записи из CMS и формирует документы параллельно.
// Ошибка одной записи не останавливает остальные.
type batch struct {
	client     *cms.Client
	collection string
	gen        *generator.Generator
	saver      generator.Saver
	advisor    generator.Notifier
	logger     *zap.Logger
}

func (b *batch) run(ctx context.Context, ids []string) error {
	results := make([]generator.Result, len(ids))

	// Без WithContext: сбой одной записи не отменяет остальные
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = b.one(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	var failed []generator.Result
	for _, res := range results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	switch len(failed) {
	case 0:
		return nil
	case 1:
		return resultError(failed[0])
	default:
		return &ExitError{
			Code: ExitFailure,
			Err:  fmt.Errorf("не сформировано документов: %d из %d", len(failed), len(ids)),
		}
	}
}

// one формирует документ по одной записи. Каждая ошибка, включая сбой CMS,
// сообщается пользователю и возвращается в результате.
func (b *batch) one(ctx context.Context, id string) generator.Result {
	rec, err := b.client.ReadRecord(ctx, b.collection, id)

	var pre *generator.PreconditionError
	switch {
	case errors.Is(err, cms.ErrNotFound):
		// Записи нет: то же, что генерация без выбранной записи
		b.logger.Warn("Record not found", zap.String("id", id))
		rec = nil
	case errors.As(err, &pre):
		b.logger.Warn("Invalid record", zap.String("id", id), zap.String("reason", pre.Message))
		b.advisor.Advise(ctx, pre.Message)
		return generator.Result{Kind: generator.KindPrecondition, Err: err, Advisory: pre.Message}
	case err != nil:
		err = fmt.Errorf("запись %s: %w", id, err)
		b.logger.Error("CMS request failed", zap.String("id", id), zap.Error(err))
		res := generator.Result{Kind: generator.KindGeneration, Err: err, Advisory: generator.Advisory(err)}
		b.advisor.Advise(ctx, res.Advisory)
		return res
	}
	return b.gen.Generate(ctx, rec, b.saver)
}

func resultError(res generator.Result) error {
	if res.OK() {
		return nil
	}
	return &ExitError{Code: exitCode(res.Kind), Err: res.Err, Reported: true}
}

func runCheck(ctx context.Context, root *RootOptions, stdout io.Writer) error {
	source, err := root.templateSource()
	if err != nil {
		return err
	}

	names, unknown, err := inspectTemplate(ctx, source)
	if err != nil {
		var notFound *generator.TemplateNotFoundError
		if errors.As(err, &notFound) {
			return &ExitError{Code: ExitTemplateNotFound, Err: err}
		}
		return err
	}

	for _, name := range names {
		fmt.Fprintln(stdout, name)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("шаблон содержит неизвестные поля: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// inspectTemplate возвращает теги шаблона и те из них, которых нет в записи
func inspectTemplate(ctx context.Context, source generator.TemplateSource) (names, unknown []string, err error) {
	data, err := source.Fetch(ctx)
	if err != nil {
		return nil, nil, &generator.TemplateNotFoundError{Name: generator.TemplateName, Location: source.Location(), Err: err}
	}
	tmpl, err := godocx.Open(data)
	if err != nil {
		return nil, nil, err
	}
	names, err = tmpl.Placeholders()
	if err != nil {
		return nil, nil, err
	}

	known := make(map[string]bool, len(generator.RequiredFields))
	for _, f := range generator.RequiredFields {
		known[f] = true
	}
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return names, unknown, nil
}
