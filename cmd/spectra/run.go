package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/spectra/internal/capture"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/config"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/logging"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/spectra/internal/infrastructure/server"
	"github.com/GriffinCanCode/spectra/internal/pipeline"
	"github.com/GriffinCanCode/spectra/internal/shared/id"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serverShutdownTimeout = 5 * time.Second

type runOptions struct {
	configPath string
	source     string
	rate       int
	window     int
	listen     string
	logLevel   string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture, transform and display pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return &pipeline.PhaseError{Phase: pipeline.PhaseArgs, Err: err}
			}
			return runPipeline(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a TOML configuration file")
	flags.StringVar(&opts.source, "source", defaults.Capture.Source, "Capture source (see 'spectra sources')")
	flags.IntVar(&opts.rate, "rate", defaults.Capture.SampleRate, "Sampling rate in Hz")
	flags.IntVar(&opts.window, "window", defaults.Capture.Window, "Analysis window length in samples")
	flags.StringVar(&opts.listen, "listen", defaults.Server.Listen, "HTTP listen address, empty to disable")
	flags.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "Log level (debug, info, warn, error)")
	return cmd
}

// config layers the flags the user set over file and environment settings
// and validates the result.
func (o *runOptions) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Capture.Source = o.source
	}
	if flags.Changed("rate") {
		cfg.Capture.SampleRate = o.rate
	}
	if flags.Changed("window") {
		cfg.Capture.Window = o.window
	}
	if flags.Changed("listen") {
		cfg.Server.Listen = o.listen
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runPipeline(ctx context.Context, cfg *config.Config) (err error) {
	device, err := capture.NewDevice(cfg.Capture.Source)
	if err != nil {
		return &pipeline.PhaseError{Phase: pipeline.PhaseArgs, Err: err}
	}

	logCfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		logCfg = logging.DevelopmentConfig()
	}
	logCfg.Level = cfg.Logging.Level
	logCfg.Async = cfg.Logging.Async
	logCfg.FlushInterval = cfg.Logging.FlushInterval.Duration()
	logs, err := logging.New(logCfg)
	if err != nil {
		return &pipeline.PhaseError{Phase: pipeline.PhaseArgs, Err: err}
	}
	defer func() {
		err = multierr.Append(err, logs.Close())
	}()

	runID := id.NewRunID()
	logger := logs.With(zap.String("run_id", runID.String()))
	logger.Info("spectra starting",
		zap.String("version", version),
		zap.String("source", cfg.Capture.Source),
		zap.Int("rate", cfg.Capture.SampleRate),
		zap.Int("window", cfg.Capture.Window),
	)

	metrics := monitoring.NewMetrics()
	p, err := pipeline.New(pipeline.FromConfig(cfg), device, logger, metrics)
	if err != nil {
		return &pipeline.PhaseError{Phase: pipeline.PhaseInit, Err: err}
	}

	var srv *server.Server
	if cfg.Server.Listen != "" {
		srv = server.NewServer(cfg, p, logger)
		if err := srv.Listen(); err != nil {
			_ = p.Shutdown(context.Background())
			return &pipeline.PhaseError{Phase: pipeline.PhaseInit, Stage: "server", Err: err}
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	// Run returns nil once gctx ends, so a clean signal exit yields nil.
	g.Go(func() error {
		return p.Run(gctx)
	})
	if srv != nil {
		g.Go(srv.Run)
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	err = g.Wait()
	if err != nil {
		logger.Error("spectra stopped", zap.Error(err), zap.Int("exit_code", pipeline.ExitCode(err)),
			zap.Uint64("log_dropped", logs.Dropped()))
	} else {
		logger.Info("spectra stopped", zap.Uint64("log_dropped", logs.Dropped()))
	}
	return err
}
