// Package config loads loadrig settings from defaults, an optional config file,
// the environment and command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torosent/loadrig/internal/threshold"
)

type CaptureMode string

const (
	CaptureStdout   CaptureMode = "stdout"
	CaptureCombined CaptureMode = "combined"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

const (
	DefaultWorkspace    = "build/test-results/jmeter"
	DefaultTemplatesDir = "src/test/resources"
	DefaultInternalPort = 8080
	DefaultExecutable   = "jmeter"
	DefaultTestPlan     = "../../../src/test/resources/stress-test.jmx"
	DefaultLockTimeout  = 5 * time.Minute
)

// Environment variables consulted when neither a flag nor the config file sets a value.
const (
	EnvProfile       = "STRESS_TEST_PROFILE"
	EnvPrefix        = "LOADRIG"
	envProfileLegacy = "LOADRIG_PROFILE"
)

type Config struct {
	Workspace    string            `mapstructure:"workspace"`
	TemplatesDir string            `mapstructure:"templates_dir"`
	Profile      string            `mapstructure:"profile"`
	Overrides    map[string]string `mapstructure:"overrides"`
	InternalPort int               `mapstructure:"internal_port"`
	Container    string            `mapstructure:"container"`
	PortMap      map[string]string `mapstructure:"port_map"`
	Image        string            `mapstructure:"image"`
	Executable   string            `mapstructure:"executable"`
	TestPlan     string            `mapstructure:"test_plan"`
	Capture      CaptureMode       `mapstructure:"capture"`
	Env          []string          `mapstructure:"env"`
	Summary      bool              `mapstructure:"summary"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Stream       bool              `mapstructure:"stream"`
	Lock         bool              `mapstructure:"lock"`
	LockTimeout  time.Duration     `mapstructure:"lock_timeout"`
	Output       OutputFormat      `mapstructure:"output"`
	LogLevel     string            `mapstructure:"log_level"`
	LogFormat    string            `mapstructure:"log_format"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	ConfigFile   string            `mapstructure:"-"`
}

// TracingConfig configures OpenTelemetry export of run phases.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Enabled reports whether an exporter endpoint is configured, either
// explicitly or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// UsesDocker reports whether the service handle comes from a Docker daemon
// rather than a static port map.
func (c Config) UsesDocker() bool {
	return strings.TrimSpace(c.Container) != ""
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Workspace) == "" {
		issues = append(issues, "workspace is required")
	}
	if c.InternalPort < 1 || c.InternalPort > 65535 {
		issues = append(issues, fmt.Sprintf("internal port %d must be between 1 and 65535", c.InternalPort))
	}

	switch {
	case c.UsesDocker() && len(c.PortMap) > 0:
		issues = append(issues, "container and port-map are mutually exclusive")
	case !c.UsesDocker() && len(c.PortMap) == 0:
		issues = append(issues, "a container or a port-map is required (use --help for usage information)")
	}

	if strings.ContainsAny(c.Profile, `/\`) {
		issues = append(issues, fmt.Sprintf("profile %q must not contain path separators", c.Profile))
	}
	for key := range c.Overrides {
		if strings.TrimSpace(key) == "" {
			issues = append(issues, "override keys must not be empty")
			break
		}
	}

	switch c.Capture {
	case "", CaptureStdout, CaptureCombined:
	default:
		issues = append(issues, fmt.Sprintf("capture mode %q is not supported (use stdout or combined)", c.Capture))
	}
	switch c.Output {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output format %q is not supported (use text, json or yaml)", c.Output))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		issues = append(issues, fmt.Sprintf("log format %q is not supported", c.LogFormat))
	}
	if c.LockTimeout < 0 {
		issues = append(issues, "lock timeout must be >= 0")
	}
	for _, kv := range c.Env {
		if !strings.Contains(kv, "=") {
			issues = append(issues, fmt.Sprintf("env entry %q must be in KEY=VALUE form", kv))
		}
	}

	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}

	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
