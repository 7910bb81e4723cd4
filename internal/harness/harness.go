package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/torosent/loadrig/internal/container"
	"github.com/torosent/loadrig/internal/endpoint"
	"github.com/torosent/loadrig/internal/jmeter"
	"github.com/torosent/loadrig/internal/logging"
	"github.com/torosent/loadrig/internal/profile"
	"github.com/torosent/loadrig/internal/tracing"
	"github.com/torosent/loadrig/internal/workspace"
)

// Phase is a step in a run's lifecycle.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseResolvingEndpoint  Phase = "resolving-endpoint"
	PhasePreparingWorkspace Phase = "preparing-workspace"
	PhaseWritingProfile     Phase = "writing-profile"
	PhaseRunning            Phase = "running"
	PhaseSucceeded          Phase = "succeeded"
	PhaseFailed             Phase = "failed"
)

// PhaseError attaches the phase and run to the error that aborted a run.
type PhaseError struct {
	Phase Phase
	RunID string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Options configures an Executor. Zero values select defaults.
type Options struct {
	InternalPort int
	Workspace    string
	Profile      string
	Overrides    map[string]string

	Resolver  *endpoint.Resolver
	Generator *profile.Generator
	Invoker   *jmeter.Invoker

	Tracer trace.Tracer
	// PropagateTrace passes the running span to the tool as TRACEPARENT.
	PropagateTrace bool
	Logger         *zap.Logger
	// OnPhase observes every transition, including the terminal one.
	OnPhase func(runID string, phase Phase)
}

// Preparation is everything a prepared run needs to execute.
type Preparation struct {
	RunID       string           `json:"run_id" yaml:"run_id"`
	Image       string           `json:"image" yaml:"image"`
	ServicePort int              `json:"service_port" yaml:"service_port"`
	Profile     string           `json:"profile" yaml:"profile"`
	Layout      workspace.Layout `json:"layout" yaml:"layout"`
	ConfigFile  string           `json:"config_file" yaml:"config_file"`

	history []Phase
}

// Outcome is the terminal state of a run.
type Outcome struct {
	RunID       string         `json:"run_id" yaml:"run_id"`
	Phase       Phase          `json:"phase" yaml:"phase"`
	History     []Phase        `json:"history" yaml:"history"`
	Preparation *Preparation   `json:"preparation,omitempty" yaml:"preparation,omitempty"`
	Result      *jmeter.Result `json:"result,omitempty" yaml:"result,omitempty"`
	Error       string         `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time      `json:"finished_at" yaml:"finished_at"`

	Err error `json:"-" yaml:"-"`
}

// Passed reports whether the tool ran and exited with status 0.
func (o *Outcome) Passed() bool {
	return o != nil && o.Phase == PhaseSucceeded && o.Result.Succeeded()
}

// Executor sequences the phases of a run.
type Executor struct {
	internalPort int
	layout       workspace.Layout
	profile      string
	overrides    map[string]string

	resolver  *endpoint.Resolver
	generator *profile.Generator
	invoker   *jmeter.Invoker

	tracer    trace.Tracer
	propagate bool
	logger    *zap.Logger
	onPhase   func(string, Phase)
}

// New creates an Executor.
func New(opts Options) *Executor {
	logger := logging.OrNop(opts.Logger)
	e := &Executor{
		internalPort: opts.InternalPort,
		layout:       workspace.NewLayout(opts.Workspace),
		profile:      opts.Profile,
		overrides:    make(map[string]string, len(opts.Overrides)),
		resolver:     opts.Resolver,
		generator:    opts.Generator,
		invoker:      opts.Invoker,
		tracer:       opts.Tracer,
		propagate:    opts.PropagateTrace,
		logger:       logger,
		onPhase:      opts.OnPhase,
	}
	for k, v := range opts.Overrides {
		e.overrides[k] = v
	}
	if e.internalPort == 0 {
		e.internalPort = endpoint.DefaultInternalPort
	}
	if e.resolver == nil {
		e.resolver = endpoint.NewResolver(logger)
	}
	if e.generator == nil {
		e.generator = profile.NewGenerator(logger)
	}
	if e.invoker == nil {
		e.invoker = jmeter.New(jmeter.Options{Logger: logger})
	}
	if e.tracer == nil {
		e.tracer = noop.NewTracerProvider().Tracer("loadrig")
	}
	return e
}

// Layout returns the workspace layout runs are prepared in.
func (e *Executor) Layout() workspace.Layout {
	return e.layout
}

// run tracks one run's transitions.
type run struct {
	id      string
	history []Phase
	started time.Time
	e       *Executor
}

func (e *Executor) newRun() *run {
	r := &run{id: ulid.Make().String(), started: time.Now(), e: e}
	r.enter(PhaseIdle)
	return r
}

func (r *run) enter(p Phase) {
	r.history = append(r.history, p)
	r.e.logger.Debug("phase", zap.String("run_id", r.id), zap.String("phase", string(p)))
	if r.e.onPhase != nil {
		r.e.onPhase(r.id, p)
	}
}

// step runs fn as phase p inside its own span.
func (r *run) step(ctx context.Context, p Phase, fn func(ctx context.Context) error) error {
	r.enter(p)
	ctx, span := tracing.StartPhaseSpan(ctx, r.e.tracer, r.id, string(p))
	err := fn(ctx)
	tracing.EndSpan(span, err)
	if err != nil {
		return &PhaseError{Phase: p, RunID: r.id, Err: err}
	}
	return nil
}

func (r *run) finish(o *Outcome, err error) (*Outcome, error) {
	o.RunID = r.id
	o.StartedAt = r.started
	o.FinishedAt = time.Now()
	if err != nil {
		o.Phase = PhaseFailed
		o.Err = err
		o.Error = err.Error()
	} else if o.Result.Succeeded() {
		o.Phase = PhaseSucceeded
	} else {
		o.Phase = PhaseFailed
	}
	r.enter(o.Phase)
	o.History = r.history

	log := r.e.logger.With(zap.String("run_id", r.id), zap.String("phase", string(o.Phase)))
	switch {
	case err != nil:
		log.Error("load test infrastructure failure", zap.Error(err))
	case o.Phase == PhaseFailed:
		log.Warn("load test failed", zap.Int("exit_code", o.Result.ExitCode))
	default:
		log.Info("load test passed", zap.Duration("duration", o.Result.Duration))
	}
	return o, err
}

// Prepare resolves the service port, cleans the workspace and writes the
// generated profile into it. handle is only borrowed for the call.
func (e *Executor) Prepare(ctx context.Context, handle container.ServiceHandle) (*Preparation, error) {
	r := e.newRun()
	prep, err := r.prepare(ctx, handle)
	if err != nil {
		_, err = r.finish(&Outcome{Preparation: prep}, err)
		return nil, err
	}
	prep.history = append([]Phase(nil), r.history...)
	return prep, nil
}

// Run executes a prepared run.
func (e *Executor) Run(ctx context.Context, prep *Preparation) (*Outcome, error) {
	if prep == nil {
		return nil, fmt.Errorf("run requires a preparation")
	}
	history := prep.history
	if len(history) == 0 {
		history = []Phase{PhaseIdle}
	}
	id := prep.RunID
	if id == "" {
		id = ulid.Make().String()
	}
	r := &run{id: id, started: time.Now(), e: e, history: append([]Phase(nil), history...)}
	return r.execute(ctx, prep)
}

// Execute prepares and runs in one call. On error the returned Outcome is
// still populated with the phase history.
func (e *Executor) Execute(ctx context.Context, handle container.ServiceHandle) (*Outcome, error) {
	r := e.newRun()
	prep, err := r.prepare(ctx, handle)
	if err != nil {
		return r.finish(&Outcome{Preparation: prep}, err)
	}
	return r.execute(ctx, prep)
}

func (r *run) prepare(ctx context.Context, handle container.ServiceHandle) (*Preparation, error) {
	e := r.e
	var port int
	err := r.step(ctx, PhaseResolvingEndpoint, func(ctx context.Context) error {
		var err error
		port, err = e.resolver.Resolve(ctx, handle, e.internalPort)
		return err
	})
	if err != nil {
		return nil, err
	}

	prep := &Preparation{
		RunID:       r.id,
		Image:       handle.Image(),
		ServicePort: port,
		Profile:     e.profile,
		Layout:      e.layout,
	}

	err = r.step(ctx, PhasePreparingWorkspace, func(context.Context) error {
		return workspace.EnsureClean(e.layout.Dir)
	})
	if err != nil {
		return prep, err
	}

	err = r.step(ctx, PhaseWritingProfile, func(ctx context.Context) error {
		path, err := e.generator.Generate(ctx, profile.Request{
			Workspace:   e.layout.Dir,
			Profile:     e.profile,
			ServicePort: port,
			Overrides:   e.overrides,
		})
		prep.ConfigFile = path
		return err
	})
	if err != nil {
		return prep, err
	}
	return prep, nil
}

func (r *run) execute(ctx context.Context, prep *Preparation) (*Outcome, error) {
	e := r.e
	outcome := &Outcome{Preparation: prep}
	err := r.step(ctx, PhaseRunning, func(ctx context.Context) error {
		var env []string
		if e.propagate {
			env = tracing.EnvCarrier(ctx)
		}
		res, err := e.invoker.RunWithEnv(ctx, prep.Layout.Dir, filepath.Base(prep.ConfigFile), env)
		outcome.Result = res
		if err == nil && !res.Succeeded() {
			trace.SpanFromContext(ctx).SetAttributes(attribute.Int("loadrig.exit_code", res.ExitCode))
		}
		return err
	})
	return r.finish(outcome, err)
}
