package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Navl-bm/conveyance-note/internal/assets"
	"github.com/Navl-bm/conveyance-note/internal/generator"
	"github.com/Navl-bm/conveyance-note/internal/notify"
	"github.com/Navl-bm/conveyance-note/internal/server"
)

// NewServeCommand создает команду serve
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the public directory and the conveyance note download endpoint",
		Long: `Start an HTTP server that serves the public directory (including
conveyance-template.docx) and GET /api/proposals/{id}/conveyance-note.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.init(); err != nil {
				return err
			}
			if addr == "" {
				addr = rootOpts.Config.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, addr, watch)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", true, "re-check the template when it changes on disk")
	return cmd
}

func runServe(ctx context.Context, root *RootOptions, addr string, watch bool) error {
	source, err := root.templateSource()
	if err != nil {
		return err
	}
	client, err := root.cmsClient()
	if err != nil {
		return err
	}

	logger := root.Logger
	gen := generator.New(source,
		generator.WithNotifier(notify.NewLogger(logger.Named("advisory"))),
		generator.WithLogger(logger.Named("generator")),
	)

	srv := server.New(gen, client,
		server.WithPublicDir(root.Config.Server.PublicDir),
		server.WithCollection(root.Config.CMS.Collection),
		server.WithShutdownTimeout(root.Config.ShutdownTimeout()),
		server.WithLogger(logger.Named("server")),
	)

	tlog := logger.Named("template")
	checkTemplate(ctx, source, tlog)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, addr)
	})
	// Шаблон из каталога проверяется заново при каждом изменении
	if watch && root.Config.Template.URL == "" {
		w := assets.NewWatcher(root.Config.Template.Dir, root.Config.Template.Name, tlog)
		w.OnChange = func(ctx context.Context) { checkTemplate(ctx, source, tlog) }
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				tlog.Warn("Template watcher disabled", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// checkTemplate только журналирует: генерация сообщит об ошибке сама
func checkTemplate(ctx context.Context, source generator.TemplateSource, logger *zap.Logger) {
	names, unknown, err := inspectTemplate(ctx, source)
	switch {
	case err != nil:
		logger.Warn("Template unusable", zap.String("location", source.Location()), zap.Error(err))
	case len(unknown) > 0:
		logger.Warn("Template has unknown placeholders", zap.Strings("unknown", unknown))
	default:
		logger.Info("Template ready", zap.String("location", source.Location()), zap.Strings("placeholders", names))
	}
}
