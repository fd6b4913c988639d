// Package cmd defines the politylink CLI.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sarcastic555/politylink-crawler/internal/app"
	"github.com/sarcastic555/politylink-crawler/internal/config"
	"github.com/sarcastic555/politylink-crawler/internal/logging"
)

// appFactory builds the application. Tests swap it for one with fakes.
type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Overrides{})
}

// cli carries state from the persistent pre-run to subcommands and to
// cleanup, which must run even when a subcommand fails.
type cli struct {
	newApp      appFactory
	cfgFile     string
	metricsAddr string

	app        *app.App
	logger     *zap.Logger
	stopServer context.CancelFunc
	serverDone chan error
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "politylink",
		Short: "Crawls Diet records and political news into the PolityLink graph.",
		Long: `politylink fetches Diet minutes, Sangiin TV pages, bill tables and
political news, builds deterministic entities from them and links them to
the bills, committees and members already registered in the graph.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&c.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
	cmd.AddCommand(newCrawlCmd(c))
	return cmd
}

func (c *cli) setup(ctx context.Context) error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.metricsAddr != "" {
		cfg.Metrics.Addr = c.metricsAddr
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	a, err := c.newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	c.app = a
	if cfg.Metrics.Addr != "" {
		serverCtx, cancel := context.WithCancel(ctx)
		c.stopServer = cancel
		c.serverDone = make(chan error, 1)
		go func() { c.serverDone <- a.Server().Run(serverCtx, cfg.Metrics.Addr) }()
	}
	return nil
}

func (c *cli) cleanup() {
	if c.stopServer != nil {
		c.stopServer()
		if err := <-c.serverDone; err != nil {
			c.logger.Warn("operator server stopped with error", zap.Error(err))
		}
	}
	if c.app != nil {
		if err := c.app.Close(context.Background()); err != nil {
			c.logger.Warn("close application services", zap.Error(err))
		}
	}
	if c.logger != nil {
		_ = c.logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
	}
}

func (c *cli) requireApp() (*app.App, error) {
	if c.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return c.app, nil
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, args, defaultAppFactory)
}

func execute(ctx context.Context, args []string, factory appFactory) int {
	c := &cli{newApp: factory}
	root := newRootCmd(c)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	c.cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "politylink: %v\n", err)
		return 1
	}
	return 0
}
