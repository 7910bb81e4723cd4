package jmeter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/loadrig/internal/logging"
)

const (
	DefaultExecutable = "jmeter"
	DefaultTestPlan   = "../../../src/test/resources/stress-test.jmx"
	ResultsFile       = "results.jtl"
	ReportDir         = "report-html"
)

// CaptureMode selects which process streams end up in Result.Output.
type CaptureMode string

const (
	CaptureStdout   CaptureMode = "stdout"
	CaptureCombined CaptureMode = "combined"
)

// ExecutableNotFoundError reports that the tool could not be located or started.
type ExecutableNotFoundError struct {
	Executable string
	Err        error
}

func (e *ExecutableNotFoundError) Error() string {
	return fmt.Sprintf("load test executable %q: %v", e.Executable, e.Err)
}

func (e *ExecutableNotFoundError) Unwrap() error {
	return e.Err
}

// Result is the outcome of one invocation.
type Result struct {
	Command  []string      `json:"command" yaml:"command"`
	Dir      string        `json:"dir" yaml:"dir"`
	Output   string        `json:"output" yaml:"output"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Succeeded reports whether the process exited with status 0.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Options configures an Invoker.
type Options struct {
	Executable string
	TestPlan   string
	Capture    CaptureMode
	Env        []string  // appended to the inherited environment
	Tee        io.Writer // optional live copy of captured output
	Logger     *zap.Logger
}

// Invoker runs the load-test executable.
type Invoker struct {
	executable string
	testPlan   string
	capture    CaptureMode
	env        []string
	tee        io.Writer
	logger     *zap.Logger
}

// New creates an Invoker, filling unset options with defaults.
func New(opts Options) *Invoker {
	inv := &Invoker{
		executable: strings.TrimSpace(opts.Executable),
		testPlan:   strings.TrimSpace(opts.TestPlan),
		capture:    opts.Capture,
		env:        append([]string(nil), opts.Env...),
		tee:        opts.Tee,
		logger:     logging.OrNop(opts.Logger),
	}
	if inv.executable == "" {
		inv.executable = DefaultExecutable
	}
	if inv.testPlan == "" {
		inv.testPlan = DefaultTestPlan
	}
	if inv.capture == "" {
		inv.capture = CaptureStdout
	}
	return inv
}

// Args returns the argument vector for configFile, excluding the executable.
func (i *Invoker) Args(configFile string) []string {
	return []string{
		"-n",
		"-t", i.testPlan,
		"-p", configFile,
		"-l", ResultsFile,
		"-e",
		"-o", ReportDir,
	}
}

// Run executes the tool in workspace with configFile (relative to workspace)
// and waits for it to exit. The invoker imposes no timeout; cancelling ctx
// kills the process.
func (i *Invoker) Run(ctx context.Context, workspace, configFile string) (*Result, error) {
	return i.RunWithEnv(ctx, workspace, configFile, nil)
}

// RunWithEnv is Run with additional KEY=VALUE entries for this invocation only.
func (i *Invoker) RunWithEnv(ctx context.Context, workspace, configFile string, env []string) (*Result, error) {
	path, err := i.lookPath()
	if err != nil {
		return nil, &ExecutableNotFoundError{Executable: i.executable, Err: err}
	}

	args := i.Args(configFile)
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = workspace
	if len(i.env) > 0 || len(env) > 0 {
		cmd.Env = append(append(os.Environ(), i.env...), env...)
	}

	var out bytes.Buffer
	var sink io.Writer = &out
	if i.tee != nil {
		sink = io.MultiWriter(&out, i.tee)
	}
	cmd.Stdout = sink
	if i.capture == CaptureCombined {
		cmd.Stderr = sink
	}

	command := append([]string{i.executable}, args...)
	log := logging.WithSpan(ctx, i.logger)
	log.Info("executing", zap.String("command", strings.Join(command, " ")), zap.String("dir", workspace))

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Command:  command,
		Dir:      workspace,
		Output:   out.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		if res.ExitCode == 0 {
			res.ExitCode = -1
		}
	case ctx.Err() != nil:
		res.ExitCode = -1
	default:
		return nil, &ExecutableNotFoundError{Executable: i.executable, Err: runErr}
	}

	log.Info("standard output", zap.String("output", res.Output))
	log.Info("exit code", zap.Int("exit_code", res.ExitCode), zap.Duration("duration", res.Duration))

	if ctxErr := ctx.Err(); ctxErr != nil && !res.Succeeded() {
		return res, fmt.Errorf("load test interrupted: %w", ctxErr)
	}
	return res, nil
}

// lookPath resolves the executable through PATH. Names containing a separator
// are made absolute so that changing the working directory cannot break them.
func (i *Invoker) lookPath() (string, error) {
	path, err := exec.LookPath(i.executable)
	if err != nil {
		return "", err
	}
	if strings.ContainsRune(i.executable, filepath.Separator) && !filepath.IsAbs(path) {
		return filepath.Abs(path)
	}
	return path, nil
}
