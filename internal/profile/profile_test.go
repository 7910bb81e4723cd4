package profile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/magiconair/properties"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/torosent/loadrig/internal/profile"
)

func templates() fstest.MapFS {
	return fstest.MapFS{
		"user.properties": &fstest.MapFile{Data: []byte(
			"# default profile\n" +
				"service.host=localhost\n" +
				"service.port=8080\n" +
				"threads = 10\n" +
				"rampup: 5\n" +
				"path=/api/${version}/items\n")},
		"user-ci.properties": &fstest.MapFile{Data: []byte(
			"service.host=ci-host\n" +
				"threads=50\n")},
	}
}

func readGenerated(t *testing.T, path string) *properties.Properties {
	t.Helper()
	loader := properties.Loader{Encoding: properties.ISO_8859_1, DisableExpansion: true}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	props, err := loader.LoadBytes(data)
	if err != nil {
		t.Fatalf("generated file does not parse: %v", err)
	}
	return props
}

func generate(t *testing.T, g *profile.Generator, req profile.Request) string {
	t.Helper()
	path, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate(%+v) error = %v", req, err)
	}
	return path
}

func assertProps(t *testing.T, props *properties.Properties, want map[string]string) {
	t.Helper()
	for k, v := range want {
		got, ok := props.Get(k)
		if !ok {
			t.Errorf("%s missing", k)
			continue
		}
		if got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestTemplateName(t *testing.T) {
	tests := []struct {
		profile, want string
	}{
		{"", "user.properties"},
		{"  ", "user.properties"},
		{profile.DefaultProfile, "user.properties"},
		{"ci", "user-ci.properties"},
	}
	for _, tt := range tests {
		if got := profile.TemplateName(tt.profile); got != tt.want {
			t.Errorf("TemplateName(%q) = %q, want %q", tt.profile, got, tt.want)
		}
	}
}

func TestGenerateOverridesTemplatePort(t *testing.T) {
	dir := t.TempDir()
	path := generate(t, profile.NewGenerator(nil, templates()), profile.Request{Workspace: dir, ServicePort: 32768})
	if want := filepath.Join(dir, "stress-test.properties"); path != want {
		t.Errorf("Generate() path = %q, want %q", path, want)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "\nservice.port=32768\n") {
		t.Errorf("generated file:\n%s", raw)
	}

	props := readGenerated(t, path)
	if want := []string{"service.host", "service.port", "threads", "rampup", "path"}; !reflect.DeepEqual(props.Keys(), want) {
		t.Errorf("Keys() = %v, want %v", props.Keys(), want)
	}
	assertProps(t, props, map[string]string{
		"service.port": "32768",
		"service.host": "localhost",
		"threads":      "10",
		"rampup":       "5",
		"path":         "/api/${version}/items",
	})
}

func TestGenerateDefaultEqualsExplicitDefault(t *testing.T) {
	g := profile.NewGenerator(nil, templates())

	unset := generate(t, g, profile.Request{Workspace: t.TempDir(), ServicePort: 40000})
	named := generate(t, g, profile.Request{Workspace: t.TempDir(), Profile: profile.DefaultProfile, ServicePort: 40000})

	if a, b := readGenerated(t, unset).Map(), readGenerated(t, named).Map(); !reflect.DeepEqual(a, b) {
		t.Errorf("unset profile = %v, explicit default = %v", a, b)
	}
}

func TestGenerateNamedProfileAndOverrides(t *testing.T) {
	path := generate(t, profile.NewGenerator(nil, templates()), profile.Request{
		Workspace:   t.TempDir(),
		Profile:     "ci",
		ServicePort: 32768,
		Overrides: map[string]string{
			"threads":      "75",
			"duration":     "120",
			"service.port": "1",
		},
	})

	assertProps(t, readGenerated(t, path), map[string]string{
		"service.host": "ci-host",
		"threads":      "75",
		"duration":     "120",
		"service.port": "32768",
	})
}

func TestGenerateProfileNotFound(t *testing.T) {
	g := profile.NewGenerator(nil, templates())

	for _, name := range []string{"staging", "../etc/passwd", `a\b`} {
		_, err := g.Generate(context.Background(), profile.Request{Workspace: t.TempDir(), Profile: name, ServicePort: 1})
		var notFound *profile.ProfileNotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("Generate(%q) error = %v, want *ProfileNotFoundError", name, err)
			continue
		}
		if notFound.Profile != name {
			t.Errorf("Profile = %q, want %q", notFound.Profile, name)
		}
	}
}

func TestGenerateFallsBackThroughSources(t *testing.T) {
	project := fstest.MapFS{
		"user-ci.properties": &fstest.MapFile{Data: []byte("threads=5\n")},
	}
	g := profile.NewGenerator(nil, project, profile.Defaults())

	path := generate(t, g, profile.Request{Workspace: t.TempDir(), ServicePort: 32768})
	assertProps(t, readGenerated(t, path), map[string]string{
		"service.host": "localhost",
		"service.port": "32768",
	})

	path = generate(t, g, profile.Request{Workspace: t.TempDir(), Profile: "ci", ServicePort: 32768})
	assertProps(t, readGenerated(t, path), map[string]string{"threads": "5"})
}

func TestGenerateOverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "stress-test.properties")
	if err := os.WriteFile(stale, []byte(strings.Repeat("stale.key=value\n", 100)), 0o644); err != nil {
		t.Fatal(err)
	}

	generate(t, profile.NewGenerator(nil), profile.Request{Workspace: dir, ServicePort: 32768})

	if _, ok := readGenerated(t, stale).Get("stale.key"); ok {
		t.Error("stale.key survived regeneration")
	}
}

func TestGenerateWriteError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := profile.NewGenerator(nil).Generate(context.Background(), profile.Request{Workspace: missing, ServicePort: 1})

	var writeErr *profile.ProfileWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Generate() error = %v, want *ProfileWriteError", err)
	}
	if want := filepath.Join(missing, "stress-test.properties"); writeErr.Path != want {
		t.Errorf("Path = %q, want %q", writeErr.Path, want)
	}
}

func TestGenerateEscapesRoundTrip(t *testing.T) {
	g := profile.NewGenerator(nil, fstest.MapFS{"user.properties": &fstest.MapFile{Data: []byte("a=1\n")}})

	overrides := map[string]string{
		"key with space": " leading space",
		"url":            "http://host:80/path?q=1#frag",
		"multi":          "line1\nline2\ttab\\slash",
		"unicode":        "café ☕",
	}
	path := generate(t, g, profile.Request{Workspace: t.TempDir(), ServicePort: 8081, Overrides: overrides})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range raw {
		if b >= 0x80 {
			t.Fatalf("generated file must be ASCII, byte %d is %#x", i, b)
		}
	}

	assertProps(t, readGenerated(t, path), overrides)
}

func TestGenerateLogsTemplate(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	generate(t, profile.NewGenerator(zap.New(core), templates()), profile.Request{Workspace: t.TempDir(), Profile: "ci", ServicePort: 1})

	entries := logs.FilterMessage("using property file").All()
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["template"]; got != "user-ci.properties" {
		t.Errorf("template = %v", got)
	}
}

func TestBuiltInDefaults(t *testing.T) {
	props, name, err := profile.NewGenerator(nil).Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if name != "user.properties" {
		t.Errorf("template = %q", name)
	}
	assertProps(t, props, map[string]string{"service.host": "localhost"})
}
