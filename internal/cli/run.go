package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wesleyorama2/hive/internal/config"
	hivehttp "github.com/wesleyorama2/hive/internal/http"
	"github.com/wesleyorama2/hive/internal/output"
	"github.com/wesleyorama2/hive/internal/swarm"
	"github.com/wesleyorama2/hive/internal/swarm/engine"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [run-file]",
		Short: "Run a load test",
		Long: `Run a load test described by a YAML or JSON run file.

Flags and HIVE_* environment variables override the file:
  hive run examples/movies.yaml --users 100 --spawn-rate 20 --duration 5m

Without a file, --host and --path describe a quick single-endpoint run:
  hive run --host http://localhost:4000 --path /v1/healthcheck -u 10 -r 2 -t 1m

The first interrupt stops users gracefully; a second one aborts in-flight
requests. The exit code is 1 when a threshold fails or the run errors and
2 when the configuration is invalid.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			path := a.v.GetString("config")
			if len(args) == 1 {
				path = args[0]
			}
			return a.run(cmd.Context(), path)
		},
	}

	addRunFlags(cmd.Flags())
	return cmd
}

func addRunFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "f", "", "run file (YAML or JSON)")
	flags.StringP("host", "H", "", "base URL of the system under test")
	flags.StringSlice("path", nil, "request path for a quick run without a file (repeatable)")
	flags.IntP("users", "u", 0, "number of concurrent users")
	flags.Float64P("spawn-rate", "r", 0, "users started per second")
	flags.DurationP("duration", "t", 0, "stop after this long (e.g. 30s, 5m)")
	flags.Int64("max-requests", 0, "stop after this many requests")
	flags.Duration("timeout", 0, "per-request timeout")
	flags.Duration("graceful-stop", 0, "how long stopping users may finish their task")
	flags.Duration("report-interval", 0, "how often live stats are printed")
	flags.Int64("seed", 0, "random seed for task picks and waits (0: time based)")
	flags.BoolP("quiet", "q", false, "only print PASSED or FAILED")
	flags.StringP("output", "o", "", "write the summary to this file")
	flags.String("format", "", "summary format: json, yaml, junit, csv, html (default: from --output extension)")
}

// run loads the run, wires the engine and blocks until it ends.
func (a *app) run(ctx context.Context, path string) error {
	logger, err := newLogger(a.v.GetString("log-level"), a.v.GetString("log-format"))
	if err != nil {
		return &exitError{code: ExitConfigured, err: err}
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := a.loadRunConfig(path)
	if err != nil {
		return &exitError{code: ExitConfigured, err: err}
	}

	format, err := a.summaryFormat()
	if err != nil {
		return &exitError{code: ExitConfigured, err: err}
	}

	registry, err := cfg.BuildRegistry()
	if err != nil {
		return &exitError{code: ExitConfigured, err: err}
	}

	runCfg := cfg.ToRunConfig()
	client := hivehttp.NewClient(
		hivehttp.WithBaseURL(runCfg.Host),
		hivehttp.WithConfig(cfg.HTTPConfig()),
	)
	defer client.CloseIdleConnections()

	console := output.NewConsole(output.ConsoleConfig{
		Name:      cfg.Name,
		Host:      runCfg.Host,
		Users:     runCfg.Users,
		SpawnRate: runCfg.SpawnRate,
		Duration:  runCfg.Duration,
		Writer:    a.stdout,
		Quiet:     a.v.GetBool("quiet"),
		NoColor:   a.v.GetBool("no-color"),
	})

	eng, err := engine.New(runCfg, registry, client,
		engine.WithLogger(logger),
		engine.WithReporter(console),
		engine.WithThresholds(cfg.Thresholds),
		engine.WithSeed(a.v.GetInt64("seed")),
	)
	if err != nil {
		return &exitError{code: ExitConfigured, err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	console.PrintHeader()
	if err := eng.Start(runCtx); err != nil {
		code := ExitFailed
		if swarm.IsConfigurationError(err) {
			code = ExitConfigured
		}
		return &exitError{code: code, err: err}
	}

	stopSignals := handleSignals(eng, cancel, logger)
	defer stopSignals()

	res, runErr := eng.Wait()
	if res != nil && a.v.GetString("output") != "" {
		if err := writeSummary(a.v.GetString("output"), cfg.Name, res, format); err != nil {
			logger.Error("failed to write summary", zap.Error(err))
			return &exitError{code: ExitFailed, err: err}
		}
	}

	switch {
	case res == nil:
		return &exitError{code: ExitFailed, err: runErr}
	case !res.Passed:
		return &exitError{code: ExitFailed, err: runErr}
	}
	return nil
}

// handleSignals stops the engine gracefully on the first interrupt and
// cancels the run on the second. The returned func releases the handler.
func handleSignals(eng *engine.Engine, cancel context.CancelFunc, logger *zap.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("stopping users, interrupt again to abort", zap.Stringer("signal", sig))
			go func() { _ = eng.Stop(context.Background()) }()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			logger.Warn("aborting in-flight requests")
			cancel()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// loadRunConfig reads the run file, or builds a quick config from flags,
// then applies flag and environment overrides.
func (a *app) loadRunConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		paths := a.v.GetStringSlice("path")
		if a.v.GetString("host") == "" || len(paths) == 0 {
			return nil, fmt.Errorf("a run file or --host with --path is required")
		}
		cfg = quickConfig(paths)
	}

	a.applyOverrides(cfg)
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func quickConfig(paths []string) *config.Config {
	cfg := &config.Config{Users: 1, SpawnRate: 1}
	for _, p := range paths {
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		cfg.Tasks = append(cfg.Tasks, config.TaskConfig{
			Name:     p,
			Weight:   1,
			Requests: []config.RequestConfig{{Method: "GET", Path: p}},
		})
	}
	return cfg
}

func (a *app) applyOverrides(cfg *config.Config) {
	v := a.v
	if v.IsSet("host") {
		cfg.Host = v.GetString("host")
	}
	if v.IsSet("users") {
		cfg.Users = v.GetInt("users")
	}
	if v.IsSet("spawn-rate") {
		cfg.SpawnRate = v.GetFloat64("spawn-rate")
	}
	if v.IsSet("duration") {
		cfg.Duration = config.Duration(v.GetDuration("duration"))
	}
	if v.IsSet("max-requests") {
		cfg.MaxRequests = v.GetInt64("max-requests")
	}
	if v.IsSet("timeout") {
		cfg.Timeout = config.Duration(v.GetDuration("timeout"))
	}
	if v.IsSet("graceful-stop") {
		cfg.GracefulStop = config.Duration(v.GetDuration("graceful-stop"))
	}
	if v.IsSet("report-interval") {
		cfg.ReportInterval = config.Duration(v.GetDuration("report-interval"))
	}
}

func (a *app) summaryFormat() (output.Format, error) {
	if f := a.v.GetString("format"); f != "" {
		return output.ParseFormat(f)
	}
	out := a.v.GetString("output")
	if out == "" {
		return output.FormatJSON, nil
	}
	ext := strings.TrimPrefix(filepath.Ext(out), ".")
	if ext == "" {
		return output.FormatJSON, nil
	}
	return output.ParseFormat(ext)
}

func writeSummary(path, name string, res *engine.Result, format output.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	if err := output.WriteResult(f, name, res, format); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// durationFlag renders an optional duration, "-" when unset.
func durationFlag(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.String()
}
