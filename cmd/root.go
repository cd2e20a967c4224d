// Package cmd implements the docmeta command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/docmeta-crawler/internal/app"
	"github.com/JakeFAU/docmeta-crawler/internal/config"
	"github.com/JakeFAU/docmeta-crawler/internal/crawler"
	"github.com/JakeFAU/docmeta-crawler/internal/logging"
)

// runner is the part of *app.App the commands use; tests swap in a fake.
type runner interface {
	Run(ctx context.Context) (crawler.RunSummary, error)
	Discover(ctx context.Context) ([]crawler.DocumentURL, string, error)
	Close()
}

type appKeyType struct{}

var appKey appKeyType

// newApp builds the application from loaded config. It is a variable so tests
// can inject a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (runner, error) {
	return app.NewFromConfig(ctx, cfg, logger)
}

// newLogger is swappable so tests keep their output quiet.
var newLogger = func(cfg config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		logger  *zap.Logger
	)
	cmd := &cobra.Command{
		Use:   "docmeta",
		Short: "Collects document metadata from a table-driven listing page.",
		Long: `docmeta reads a seed listing page, collects the document links found in
its tables, renders every document page, and writes the URL list and a JSON
file of extracted metadata.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err = newLogger(cfg)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(runner); ok && appInstance != nil {
				appInstance.Close()
			}
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "YAML config file")
	flags.String("seed", "", "seed listing page (file path or http(s) URL)")
	flags.Int("concurrency", 0, "pages in flight per batch")
	flags.Duration("timeout", 0, "per-page fetch timeout")
	flags.String("schedule", "", "scheduling policy: batched or streaming")
	flags.String("renderer", "", "page renderer: headless or static")
	flags.String("output-dir", "", "directory (or gcs object prefix) for output files")

	cmd.AddCommand(newRunCmd(), newDiscoverCmd())
	return cmd
}

func resolveApp(ctx context.Context) (runner, error) {
	appInstance, ok := ctx.Value(appKey).(runner)
	if !ok || appInstance == nil {
		return nil, errors.New("application not initialized")
	}
	return appInstance, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
