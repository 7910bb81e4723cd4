package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loadrig",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Service under test
	flags.String("container", "", "Docker container name or ID running the service under test")
	flags.StringToString("port-map", nil, "Static internal=external port mapping, used instead of --container")
	flags.String("image", "", "Image name reported in logs when using --port-map")
	flags.Int("internal-port", DefaultInternalPort, "Port the service listens on inside its container")

	// Workspace and profile
	flags.StringP("workspace", "w", DefaultWorkspace, "Working directory for the run (wiped at the start of each run)")
	flags.String("templates-dir", DefaultTemplatesDir, "Directory holding user.properties and user-<profile>.properties templates")
	flags.StringP("profile", "p", "", "Configuration profile name (default: $"+EnvProfile+")")
	flags.StringArray("set", nil, "Property override in key=value form (repeatable)")
	flags.Bool("lock", false, "Hold an exclusive lock on the workspace for the duration of the run")
	flags.Duration("lock-timeout", DefaultLockTimeout, "How long to wait for the workspace lock")

	// Load-test tool
	flags.String("executable", DefaultExecutable, "Load-test executable, resolved through PATH")
	flags.String("test-plan", DefaultTestPlan, "Test plan path relative to the workspace")
	flags.String("capture", string(CaptureStdout), "Captured streams: 'stdout' or 'combined'")
	flags.StringArray("env", nil, "Extra KEY=VALUE environment for the tool (repeatable)")
	flags.Bool("stream", false, "Copy tool output to stderr while it runs")
	flags.Bool("summary", false, "Add a results summary to the report (does not affect the exit code)")
	flags.StringArray("threshold", nil, "Advisory check such as 'response_time:p95 < 500', reported only (repeatable)")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Result format: 'text', 'json' or 'yaml'")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "console", "Log format: 'console' or 'json'")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.String("tracing-service-name", "", "Service name reported in traces (default: loadrig)")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		name   string
		target *string
	}{
		{"container", &cfg.Container},
		{"image", &cfg.Image},
		{"workspace", &cfg.Workspace},
		{"templates-dir", &cfg.TemplatesDir},
		{"profile", &cfg.Profile},
		{"executable", &cfg.Executable},
		{"test-plan", &cfg.TestPlan},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
	}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.target = strings.TrimSpace(val)
	}

	if fs.Changed("port-map") {
		val, err := fs.GetStringToString("port-map")
		if err != nil {
			return err
		}
		cfg.PortMap = val
	}
	if fs.Changed("internal-port") {
		val, err := fs.GetInt("internal-port")
		if err != nil {
			return err
		}
		cfg.InternalPort = val
	}
	if fs.Changed("set") {
		values, err := fs.GetStringArray("set")
		if err != nil {
			return err
		}
		if cfg.Overrides == nil {
			cfg.Overrides = map[string]string{}
		}
		for _, kv := range values {
			key, value, ok := strings.Cut(kv, "=")
			if !ok || strings.TrimSpace(key) == "" {
				return fmt.Errorf("invalid --set %q: expected key=value", kv)
			}
			cfg.Overrides[strings.TrimSpace(key)] = value
		}
	}
	if fs.Changed("lock") {
		val, err := fs.GetBool("lock")
		if err != nil {
			return err
		}
		cfg.Lock = val
	}
	if fs.Changed("lock-timeout") {
		val, err := fs.GetDuration("lock-timeout")
		if err != nil {
			return err
		}
		cfg.LockTimeout = val
	}
	if fs.Changed("capture") {
		val, err := fs.GetString("capture")
		if err != nil {
			return err
		}
		cfg.Capture = CaptureMode(val)
	}
	if fs.Changed("env") {
		val, err := fs.GetStringArray("env")
		if err != nil {
			return err
		}
		cfg.Env = val
	}
	if fs.Changed("summary") {
		val, err := fs.GetBool("summary")
		if err != nil {
			return err
		}
		cfg.Summary = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("stream") {
		val, err := fs.GetBool("stream")
		if err != nil {
			return err
		}
		cfg.Stream = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(val)
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	return nil
}
