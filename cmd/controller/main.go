package main

// #region imports
import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/answer-engine/go-controller/internal/config"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/engine"
	"github.com/danielpatrickdp/answer-engine/go-controller/internal/logging"
)

// #endregion imports

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region app

// app carries flag values and the loaded configuration between commands.
type app struct {
	opts        config.Options
	dbPath      string
	logLevel    string
	pretty      bool
	metricsAddr string

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "answer-engine",
		Short:         "Answer questions per agent: local classifier first, remote model when unsure",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.ConfigFile, "config", "", "YAML config file")
	flags.StringVar(&a.opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&a.opts.Profile, "profile", "", `deployment profile, "development" or "cost_constrained"`)
	flags.StringVar(&a.dbPath, "db", "", "SQLite database path")
	flags.StringVar(&a.logLevel, "log-level", "", "log level")
	flags.BoolVar(&a.pretty, "pretty", false, "console-formatted logs")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	root.AddCommand(
		newAgentCmd(a),
		newContextCmd(a),
		newTrainCmd(a),
		newAskCmd(a),
		newArtifactsCmd(a),
		newAuditCmd(a),
		newServeCompletionCmd(a),
	)
	return root
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.opts)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.pretty {
		cfg.Log.Pretty = true
	}
	if a.metricsAddr != "" {
		cfg.MetricsAddr = a.metricsAddr
	}
	a.cfg = cfg
	a.logger = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
	return nil
}

// open builds the engine and, when configured, starts the metrics endpoint.
// The returned func releases both.
func (a *app) open(ctx context.Context) (*engine.Engine, func(), error) {
	e, err := engine.Build(ctx, a.cfg, engine.WithLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	stop := a.serveMetrics(e)
	return e, func() {
		stop()
		e.Close()
	}, nil
}

func (a *app) serveMetrics(e *engine.Engine) func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Metrics.Handler())
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Str("addr", a.cfg.MetricsAddr).Msg("metrics server stopped")
		}
	}()
	a.logger.Info().Str("addr", a.cfg.MetricsAddr).Msg("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// #endregion app
