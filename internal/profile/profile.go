// Package profile generates the property file handed to the load-test tool.
//
// A profile is a Java .properties template named user.properties (the default
// profile) or user-<name>.properties. Generation loads the template, applies
// overrides and the resolved service port, and writes the result into the
// workspace.
package profile

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/magiconair/properties"
	"go.uber.org/zap"

	"github.com/torosent/loadrig/internal/logging"
)

// DefaultProfile names the profile selected when no profile is given.
const DefaultProfile = "default"

// ServicePortKey receives the resolved external port and wins over every other source.
const ServicePortKey = "service.port"

// ConfigFileName is the file written into the workspace.
const ConfigFileName = "stress-test.properties"

//go:embed defaults/*.properties
var embedded embed.FS

// Defaults returns the built-in templates.
func Defaults() fs.FS {
	sub, err := fs.Sub(embedded, "defaults")
	if err != nil {
		panic(err)
	}
	return sub
}

// ProfileNotFoundError reports a profile with no template in any source.
type ProfileNotFoundError struct {
	Profile  string
	Template string
}

func (e *ProfileNotFoundError) Error() string {
	return fmt.Sprintf("profile %q not found: no template %s", e.Profile, e.Template)
}

// ProfileWriteError reports a failure to persist the generated configuration.
type ProfileWriteError struct {
	Path string
	Err  error
}

func (e *ProfileWriteError) Error() string {
	return fmt.Sprintf("write profile %s: %v", e.Path, e.Err)
}

func (e *ProfileWriteError) Unwrap() error {
	return e.Err
}

// Request describes one generation.
type Request struct {
	Workspace   string
	Profile     string
	ServicePort int
	Overrides   map[string]string
}

// Generator loads templates from an ordered list of sources; the first source
// containing a template wins.
type Generator struct {
	sources []fs.FS
	logger  *zap.Logger
	now     func() time.Time
}

// NewGenerator creates a Generator. With no sources the built-in defaults are used.
func NewGenerator(logger *zap.Logger, sources ...fs.FS) *Generator {
	if len(sources) == 0 {
		sources = []fs.FS{Defaults()}
	}
	return &Generator{
		sources: sources,
		logger:  logging.OrNop(logger),
		now:     time.Now,
	}
}

// TemplateName maps a profile name to its template file name.
func TemplateName(profile string) string {
	profile = strings.TrimSpace(profile)
	if profile == "" || profile == DefaultProfile {
		return "user.properties"
	}
	return fmt.Sprintf("user-%s.properties", profile)
}

// Load reads the template for profile as an ordered property list.
func (g *Generator) Load(profile string) (*properties.Properties, string, error) {
	name := TemplateName(profile)
	if strings.ContainsAny(strings.TrimSpace(profile), `/\`) || !fs.ValidPath(name) {
		return nil, name, &ProfileNotFoundError{Profile: profile, Template: name}
	}

	for _, src := range g.sources {
		data, err := fs.ReadFile(src, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, name, fmt.Errorf("read template %s: %w", name, err)
		}
		loader := properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
		props, err := loader.LoadBytes(data)
		if err != nil {
			return nil, name, fmt.Errorf("parse template %s: %w", name, err)
		}
		return props, name, nil
	}
	return nil, name, &ProfileNotFoundError{Profile: profile, Template: name}
}

// Generate writes the merged configuration into the workspace and returns its path.
// Merge order is template, then overrides, then the service port.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	props, template, err := g.Load(req.Profile)
	if err != nil {
		return "", err
	}

	keys := make([]string, 0, len(req.Overrides))
	for k := range req.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, _, err := props.Set(k, req.Overrides[k]); err != nil {
			return "", fmt.Errorf("override %s: %w", k, err)
		}
	}
	if _, _, err := props.Set(ServicePortKey, strconv.Itoa(req.ServicePort)); err != nil {
		return "", fmt.Errorf("set %s: %w", ServicePortKey, err)
	}

	logging.WithSpan(ctx, g.logger).Info("using property file",
		zap.String("template", template),
		zap.Int("overrides", len(keys)),
		zap.Int(ServicePortKey, req.ServicePort),
	)

	path := filepath.Join(req.Workspace, ConfigFileName)
	if err := g.write(path, props); err != nil {
		return "", &ProfileWriteError{Path: path, Err: err}
	}
	return path, nil
}

func (g *Generator) write(path string, props *properties.Properties) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "#\n#%s\n", g.now().Format(time.UnixDate))
	for _, key := range props.Keys() {
		value, _ := props.Get(key)
		buf.WriteString(escape(key, true))
		buf.WriteByte('=')
		buf.WriteString(escape(value, false))
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
