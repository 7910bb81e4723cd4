package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, the environment and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() *Config {
	return &Config{
		Workspace:    DefaultWorkspace,
		TemplatesDir: DefaultTemplatesDir,
		Overrides:    map[string]string{},
		InternalPort: DefaultInternalPort,
		Executable:   DefaultExecutable,
		TestPlan:     DefaultTestPlan,
		Capture:      CaptureStdout,
		LockTimeout:  DefaultLockTimeout,
		Output:       OutputText,
		LogLevel:     "info",
		LogFormat:    "console",
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
// Precedence, lowest first: defaults, config file, environment, flags.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	return l.LoadFlags(cmd.Flags())
}

// LoadFlags builds a Config from an already parsed flag set, such as the one a
// cobra command hands to its RunE.
func (Loader) LoadFlags(flagSet *pflag.FlagSet) (*Config, error) {
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			return nil, ErrHelpRequested
		}
	}

	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	cfgViper.SetEnvPrefix(EnvPrefix)
	cfgViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	cfgViper.AutomaticEnv()
	for _, key := range []string{"workspace", "templates_dir", "container", "executable", "test_plan", "capture", "log_level", "log_format"} {
		if err := cfgViper.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if err := cfgViper.BindEnv("profile", EnvProfile, envProfileLegacy); err != nil {
		return nil, err
	}
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	settings := cfgViper.AllSettings()
	if configPath != "" {
		overrides, handled, err := readFileOverrides(configPath)
		if err != nil {
			return nil, err
		}
		if handled {
			delete(settings, "overrides")
			delete(settings, "properties")
			for k, v := range overrides {
				cfg.Overrides[k] = v
			}
		}
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Workspace = strings.TrimSpace(cfg.Workspace)
	cfg.Profile = strings.TrimSpace(cfg.Profile)
	cfg.Container = strings.TrimSpace(cfg.Container)
	cfg.Capture = CaptureMode(strings.ToLower(strings.TrimSpace(string(cfg.Capture))))
	cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(string(cfg.Output))))
	if cfg.Overrides == nil {
		cfg.Overrides = map[string]string{}
	}
	return cfg, nil
}

// applyConfigSettings applies settings from a config file or the environment to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringFields := []struct {
		target *string
		keys   []string
	}{
		{&cfg.Workspace, []string{"workspace", "working_dir", "working-dir"}},
		{&cfg.TemplatesDir, []string{"templatesdir", "templates_dir", "templates-dir"}},
		{&cfg.Profile, []string{"profile"}},
		{&cfg.Container, []string{"container"}},
		{&cfg.Image, []string{"image"}},
		{&cfg.Executable, []string{"executable"}},
		{&cfg.TestPlan, []string{"testplan", "test_plan", "test-plan"}},
		{&cfg.LogLevel, []string{"loglevel", "log_level", "log-level"}},
		{&cfg.LogFormat, []string{"logformat", "log_format", "log-format"}},
	}
	for _, field := range stringFields {
		raw, ok := lookupSetting(settings, field.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field.keys[0], err)
		}
		if val = strings.TrimSpace(val); val != "" || field.target == &cfg.Profile {
			*field.target = val
		}
	}

	if raw, ok := lookupSetting(settings, "overrides", "properties"); ok {
		overrides, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("overrides: %w", err)
		}
		for k, v := range overrides {
			cfg.Overrides[k] = v
		}
	}

	if raw, ok := lookupSetting(settings, "internalport", "internal_port", "internal-port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("internalPort: %w", err)
		}
		cfg.InternalPort = val
	}

	if raw, ok := lookupSetting(settings, "portmap", "port_map", "port-map"); ok {
		ports, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("portMap: %w", err)
		}
		cfg.PortMap = ports
	}

	if raw, ok := lookupSetting(settings, "capture"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		if val != "" {
			cfg.Capture = CaptureMode(val)
		}
	}

	if raw, ok := lookupSetting(settings, "env"); ok {
		env, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("env: %w", err)
		}
		cfg.Env = env
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "summary"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		cfg.Summary = val
	}

	if raw, ok := lookupSetting(settings, "stream"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("stream: %w", err)
		}
		cfg.Stream = val
	}

	if raw, ok := lookupSetting(settings, "lock"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		cfg.Lock = val
	}

	if raw, ok := lookupSetting(settings, "locktimeout", "lock_timeout", "lock-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("lockTimeout: %w", err)
		}
		cfg.LockTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if val != "" {
			cfg.Output = OutputFormat(val)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracingConfig(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseTracingConfig(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := asSection(value)
	if err != nil {
		return TracingConfig{}, err
	}
	cfg := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		cfg.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		cfg.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		cfg.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		cfg.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		cfg.SampleRate = val
	}
	return cfg, nil
}
