package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/loadrig/internal/config"
	"github.com/torosent/loadrig/internal/container"
	"github.com/torosent/loadrig/internal/harness"
	"github.com/torosent/loadrig/internal/jmeter"
	"github.com/torosent/loadrig/internal/logging"
	"github.com/torosent/loadrig/internal/metrics"
	"github.com/torosent/loadrig/internal/output"
	"github.com/torosent/loadrig/internal/profile"
	"github.com/torosent/loadrig/internal/threshold"
	"github.com/torosent/loadrig/internal/tracing"
	"github.com/torosent/loadrig/internal/workspace"
)

const (
	exitPassed = 0
	exitFailed = 1
	exitInfra  = 2

	shutdownTimeout = 5 * time.Second
)

// errLoadTestFailed marks a run whose tool exited non-zero.
var errLoadTestFailed = errors.New("load test failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitPassed
	case errors.Is(err, errLoadTestFailed):
		return exitFailed
	default:
		return exitInfra
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: logging.Format(cfg.LogFormat),
		Output: stderr,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	handle, closeHandle, err := newServiceHandle(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeHandle() }()

	if cfg.Lock {
		release, err := acquireWorkspace(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer release()
	}

	var tee io.Writer
	if cfg.Stream {
		tee = stderr
	}
	executor := harness.New(harness.Options{
		InternalPort: cfg.InternalPort,
		Workspace:    cfg.Workspace,
		Profile:      cfg.Profile,
		Overrides:    cfg.Overrides,
		Generator:    profile.NewGenerator(logger, os.DirFS(cfg.TemplatesDir), profile.Defaults()),
		Invoker: jmeter.New(jmeter.Options{
			Executable: cfg.Executable,
			TestPlan:   cfg.TestPlan,
			Capture:    jmeter.CaptureMode(cfg.Capture),
			Env:        cfg.Env,
			Tee:        tee,
			Logger:     logger,
		}),
		Tracer:         provider.Tracer(),
		PropagateTrace: provider.Enabled(),
		Logger:         logger,
	})

	outcome, runErr := executor.Execute(ctx, handle)

	report := output.Report{Outcome: outcome}
	if outcome.Result != nil && (cfg.Summary || len(thresholds) > 0) {
		layout := executor.Layout()
		summary, err := metrics.Summarize(layout.StatisticsFile(), layout.ResultsFile())
		switch {
		case err == nil:
			report.Summary = summary
		case !errors.Is(err, fs.ErrNotExist):
			logger.Warn("could not summarize results", zap.Error(err))
		}
	}
	if runErr == nil && len(thresholds) > 0 {
		report.Thresholds = threshold.NewEvaluator(thresholds).Evaluate(report.Summary)
		if !threshold.AllPassed(report.Thresholds) {
			for _, r := range report.Thresholds {
				if !r.Pass {
					logger.Warn("threshold not met", zap.String("threshold", r.Threshold.Raw), zap.String("result", r.Message))
				}
			}
		}
	}
	if err := output.Write(stdout, output.Format(cfg.Output), report); err != nil {
		return err
	}

	// Only the tool's exit status decides success.
	switch {
	case runErr != nil:
		return runErr
	case !outcome.Passed():
		return fmt.Errorf("%w: %s exited with code %d", errLoadTestFailed, cfg.Executable, outcome.Result.ExitCode)
	}
	return nil
}

// newServiceHandle returns the handle for the service under test and a
// function releasing whatever it holds.
func newServiceHandle(ctx context.Context, cfg *config.Config) (container.ServiceHandle, func() error, error) {
	if cfg.UsesDocker() {
		return container.NewDockerFromEnv(ctx, cfg.Container)
	}
	ports, err := container.ParsePortMap(cfg.PortMap)
	if err != nil {
		return nil, nil, err
	}
	return container.NewStatic(cfg.Image, ports), func() error { return nil }, nil
}

func acquireWorkspace(ctx context.Context, cfg *config.Config, logger *zap.Logger) (func(), error) {
	lock := workspace.NewLock(cfg.Workspace)
	lockCtx := ctx
	if cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, cfg.LockTimeout)
		defer cancel()
	}
	logger.Debug("acquiring workspace lock", zap.String("path", lock.Path()))
	if err := lock.Acquire(lockCtx); err != nil {
		return nil, fmt.Errorf("workspace lock %s: %w", lock.Path(), err)
	}
	return func() {
		if err := lock.Release(); err != nil {
			logger.Warn("release workspace lock", zap.Error(err))
		}
	}, nil
}
