// Package cli - команды conveyance: генерация уведомлений, HTTP-сервер и
// просмотр записей CMS.
package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Navl-bm/conveyance-note/internal/assets"
	"github.com/Navl-bm/conveyance-note/internal/cms"
	"github.com/Navl-bm/conveyance-note/internal/config"
	"github.com/Navl-bm/conveyance-note/internal/generator"
	"github.com/Navl-bm/conveyance-note/internal/logging"
)

// RootOptions - общие флаги и загруженные настройки
type RootOptions struct {
	Verbose    bool
	ConfigPath string

	Config *config.Config
	Logger *zap.Logger
}

// ExitError задает код завершения процесса
type ExitError struct {
	Code int
	Err  error
	// Reported - сообщение уже показано пользователю
	Reported bool
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Коды завершения по виду ошибки генерации
const (
	ExitFailure          = 1
	ExitPrecondition     = 2
	ExitTemplateNotFound = 3
)

func exitCode(k generator.Kind) int {
	switch k {
	case generator.KindPrecondition:
		return ExitPrecondition
	case generator.KindTemplateNotFound:
		return ExitTemplateNotFound
	default:
		return ExitFailure
	}
}

// NewRootCommand создает корневую команду
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "conveyance",
		Short: "Conveyance note generator",
		Long: `Generates conveyance notes from the conveyance-template.docx template
and proposal records stored in Directus.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "config file")

	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// init загружает настройки и создает логгер. Повторный вызов ничего не делает.
func (o *RootOptions) init() error {
	if o.Config == nil {
		path := o.ConfigPath
		if path == "" {
			path = config.DefaultPath
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("ошибка в настройках %s: %w", path, err)
		}
		o.Config = cfg
	}

	if o.Logger == nil {
		logger, err := logging.New(o.Config.Logging, o.Verbose)
		if err != nil {
			return err
		}
		o.Logger = logger
	}
	return nil
}

// templateSource выбирает источник шаблона: HTTP, если задан template.url
func (o *RootOptions) templateSource() (generator.TemplateSource, error) {
	t := o.Config.Template
	if t.URL != "" {
		return assets.NewHTTPSource(t.URL, t.Name, &http.Client{Timeout: o.Config.CMSTimeout()})
	}
	return assets.NewDirSource(t.Dir, t.Name), nil
}

func (o *RootOptions) cmsClient() (*cms.Client, error) {
	if o.Config.CMS.URL == "" {
		return nil, errors.New("не задан адрес CMS (cms.url или CONVEYANCE_CMS_URL)")
	}
	return cms.New(o.Config.CMS.URL,
		cms.WithToken(o.Config.CMS.Token),
		cms.WithHTTPClient(&http.Client{Timeout: o.Config.CMSTimeout()}),
		cms.WithLogger(o.Logger.Named("cms")),
	)
}
