package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/walletprobe/internal/config"
	"github.com/wesleyorama2/walletprobe/internal/engine"
	"github.com/wesleyorama2/walletprobe/internal/executor"
	"github.com/wesleyorama2/walletprobe/internal/metrics"
	"github.com/wesleyorama2/walletprobe/internal/output"
	"github.com/wesleyorama2/walletprobe/internal/profile"
	"github.com/wesleyorama2/walletprobe/internal/report"
)

type runOptions struct {
	profile    string
	configPath string

	baseURL  string
	secret   string
	audience string
	runID    string
	duration string
	rate     float64
	vus      int

	jsonPath         string
	htmlPath         string
	metricsAddr      string
	quiet            bool
	noColor          bool
	progressInterval time.Duration

	logLevel  string
	logFormat string
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a profile or configuration file against the wallet service",
		Long: `Run drives the wallet service with the traffic shape of a built-in profile
or a YAML/JSON configuration file, then evaluates the thresholds.

  walletprobe run --profile baseline --base-url http://wallet:8080
  walletprobe run --config soak.yaml --duration 10m --json soak.json
  walletprobe run --profile spike --metrics-addr :9464
  walletprobe run --profile soak --html soak.html

Exit status is 0 when every threshold holds, 1 when any is crossed and 2
when the configuration is invalid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.profile, "profile", "p", "", fmt.Sprintf("Built-in profile %v", profile.Names()))
	f.StringVarP(&opts.configPath, "config", "c", "", "Configuration file (.yaml, .yml or .json)")
	f.StringVar(&opts.baseURL, "base-url", "", "Wallet service base URL")
	f.StringVar(&opts.secret, "secret", "", "HS256 signing secret (default: $JWT_SECRET)")
	f.StringVar(&opts.audience, "audience", "", "Token audience claim")
	f.StringVar(&opts.runID, "run-id", "", "Run id folded into idempotency keys (default: random UUID)")
	f.StringVar(&opts.duration, "duration", "", "Override the scenario duration (e.g., 30s, 5m)")
	f.Float64Var(&opts.rate, "rate", 0, "Override the arrival rate (constant-arrival-rate)")
	f.IntVar(&opts.vus, "vus", 0, "Override the VU count (constant-vus)")
	f.StringVar(&opts.jsonPath, "json", "", "Write the JSON report to this file (\"-\" for stdout)")
	f.StringVar(&opts.htmlPath, "html", "", "Write an HTML report with charts to this file")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Disable live progress output, print only the verdict")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.DurationVar(&opts.progressInterval, "progress-interval", time.Second, "Live progress refresh interval")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")
	cmd.MarkFlagsMutuallyExclusive("profile", "config")

	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
	if err != nil {
		return configError(err)
	}

	cfg, err := loadRunConfig(opts.profile, opts.configPath)
	if err != nil {
		return configError(err)
	}
	if err := applyOverrides(cfg, opts); err != nil {
		return configError(err)
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}

	var metricsServer *http.Server
	var metricsListener net.Listener
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		engineOpts = append(engineOpts, engine.WithObserver(metrics.NewPrometheusMetrics(reg)))

		metricsListener, err = net.Listen("tcp", opts.metricsAddr)
		if err != nil {
			return configError(fmt.Errorf("metrics listener: %w", err))
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	eng, err := engine.New(cfg, engineOpts...)
	if err != nil {
		if metricsListener != nil {
			metricsListener.Close()
		}
		return configError(err)
	}

	// A JSON report on stdout keeps the console summary off stdout.
	consoleOut := cmd.OutOrStdout()
	if opts.jsonPath == "-" {
		consoleOut = cmd.ErrOrStderr()
	}
	execCfg, _ := cfg.ToExecutorConfig()
	console := output.NewConsole(output.ConsoleConfig{
		Name:          cfg.Name,
		ExecutorType:  string(eng.Executor().Type()),
		TotalDuration: executor.CalculateEstimatedDuration(execCfg),
		Writer:        consoleOut,
		Quiet:         opts.quiet,
		NoColor:       opts.noColor,
	})
	console.PrintHeader(cfg.Target.BaseURL)

	var (
		result *engine.Report
		runErr error
	)
	runDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(runDone)
		result, runErr = eng.Run(gctx)
		return nil
	})

	if !opts.quiet && opts.progressInterval > 0 {
		g.Go(func() error {
			followProgress(eng, console, opts.progressInterval, runDone)
			return nil
		})
	}

	if metricsServer != nil {
		logger.Info("serving metrics", slog.String("addr", metricsListener.Addr().String()))
		g.Go(func() error {
			if err := metricsServer.Serve(metricsListener); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runDone
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("run aborted", slog.Any("error", err))
	}

	if result == nil {
		return &ExitError{Code: ExitThresholdFailed, Err: runErr}
	}

	console.PrintSummary(result)

	switch opts.jsonPath {
	case "":
	case "-":
		if err := output.WriteJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	default:
		if err := output.WriteJSONFile(opts.jsonPath, result); err != nil {
			return err
		}
		if !opts.quiet {
			fmt.Fprintf(consoleOut, "Report written to: %s\n", opts.jsonPath)
		}
	}

	if opts.htmlPath != "" {
		if err := report.GenerateHTML(result, opts.htmlPath); err != nil {
			return err
		}
		if !opts.quiet {
			fmt.Fprintf(consoleOut, "HTML report written to: %s\n", opts.htmlPath)
		}
	}

	if runErr != nil {
		return &ExitError{Code: ExitThresholdFailed, Err: runErr}
	}
	if !result.Passed {
		return &ExitError{Code: ExitThresholdFailed}
	}
	return nil
}

// followProgress refreshes the console until done is closed.
func followProgress(eng *engine.Engine, console *output.Console, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m := eng.Metrics()
			if m == nil {
				continue
			}
			exec := eng.Executor()
			console.Report(output.StatsFromRun(m.Snapshot(), exec.GetStats(), exec.GetProgress()))
		}
	}
}

// loadRunConfig resolves --profile or --config. With neither, the smoke
// profile runs.
func loadRunConfig(name, path string) (*config.RunConfig, error) {
	if path != "" {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		config.ApplyDefaults(cfg)
		return cfg, nil
	}
	if name == "" {
		name = profile.Smoke
	}
	return profile.Get(name)
}

// applyOverrides applies command line overrides on top of the loaded
// configuration.
func applyOverrides(cfg *config.RunConfig, opts *runOptions) error {
	if opts.baseURL != "" {
		cfg.Target.BaseURL = opts.baseURL
	}
	if opts.secret != "" {
		cfg.Auth.Secret = opts.secret
	}
	if opts.audience != "" {
		cfg.Auth.Audience = opts.audience
	}

	switch {
	case opts.runID != "":
		cfg.Workload.RunID = opts.runID
	case cfg.Workload.RunID == "":
		cfg.Workload.RunID = uuid.NewString()
	}

	kind := executor.Type(cfg.Scenario.Executor).Canonical()

	if opts.duration != "" {
		if kind == executor.TypeRampingVUs {
			return &config.ValidationError{Field: "--duration", Message: "ramping-vus runs last as long as their stages"}
		}
		if _, err := config.ParseDurationString(opts.duration); err != nil {
			return &config.ValidationError{Field: "--duration", Message: err.Error()}
		}
		cfg.Scenario.Duration = opts.duration
	}

	if opts.rate != 0 {
		if kind != executor.TypeConstantArrivalRate {
			return &config.ValidationError{Field: "--rate", Message: fmt.Sprintf("only applies to constant-arrival-rate, not %s", kind)}
		}
		cfg.Scenario.Rate = opts.rate
	}

	if opts.vus != 0 {
		if kind != executor.TypeConstantVUs {
			return &config.ValidationError{Field: "--vus", Message: fmt.Sprintf("only applies to constant-vus, not %s", kind)}
		}
		cfg.Scenario.VUs = opts.vus
	}

	return nil
}
