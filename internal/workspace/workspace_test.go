package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/torosent/loadrig/internal/workspace"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mkdir(t *testing.T, path string, perm os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(path, perm); err != nil {
		t.Fatal(err)
	}
}

func assertEmptyDir(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	if !info.IsDir() {
		t.Fatalf("%s is not a directory", path)
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%s has %d entries, want none", path, len(entries))
	}
}

func TestEnsureCleanIsIdempotent(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{
			name:  "missing with missing parents",
			setup: func(t *testing.T, dir string) {},
		},
		{
			name: "empty",
			setup: func(t *testing.T, dir string) {
				mkdir(t, dir, 0o755)
			},
		},
		{
			name: "stale files and nested directories",
			setup: func(t *testing.T, dir string) {
				writeFile(t, filepath.Join(dir, "stress-test.properties"), "service.port=1\n")
				writeFile(t, filepath.Join(dir, "results.jtl"), "timeStamp,elapsed\n")
				writeFile(t, filepath.Join(dir, "report-html", "statistics.json"), "{}")
				writeFile(t, filepath.Join(dir, "report-html", "content", "js", "dashboard.js"), "")
				mkdir(t, filepath.Join(dir, "report-html", "empty"), 0o755)
			},
		},
		{
			name: "dangling symlink",
			setup: func(t *testing.T, dir string) {
				mkdir(t, dir, 0o755)
				if err := os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "link")); err != nil {
					t.Fatal(err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "build", "test-results", "jmeter")
			tt.setup(t, dir)

			for i := 0; i < 2; i++ {
				if err := workspace.EnsureClean(dir); err != nil {
					t.Fatalf("EnsureClean() call %d error = %v", i+1, err)
				}
				assertEmptyDir(t, dir)
			}
		})
	}
}

func TestEnsureCleanLeavesSymlinkTargetsAlone(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "keep")
	writeFile(t, filepath.Join(outside, "important.txt"), "keep me")

	dir := filepath.Join(root, "ws")
	mkdir(t, dir, 0o755)
	if err := os.Symlink(outside, filepath.Join(dir, "linked")); err != nil {
		t.Fatal(err)
	}

	if err := workspace.EnsureClean(dir); err != nil {
		t.Fatalf("EnsureClean() error = %v", err)
	}
	assertEmptyDir(t, dir)
	if _, err := os.Stat(filepath.Join(outside, "important.txt")); err != nil {
		t.Errorf("symlink target removed: %v", err)
	}
}

func TestEnsureCleanRejectsNonDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "occupied")
	writeFile(t, path, "not a dir")

	err := workspace.EnsureClean(path)
	var wsErr *workspace.WorkspaceError
	if !errors.As(err, &wsErr) {
		t.Fatalf("EnsureClean() error = %v, want *WorkspaceError", err)
	}
	if wsErr.Path != path {
		t.Errorf("Path = %q, want %q", wsErr.Path, path)
	}
	if !errors.Is(err, workspace.ErrNotDirectory) {
		t.Errorf("EnsureClean() error = %v, want ErrNotDirectory", err)
	}
}

func TestEnsureCleanRejectsEmptyPath(t *testing.T) {
	var wsErr *workspace.WorkspaceError
	if err := workspace.EnsureClean(""); !errors.As(err, &wsErr) {
		t.Errorf("EnsureClean(\"\") error = %v, want *WorkspaceError", err)
	}
}

func TestEnsureCleanUnwritableParent(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	parent := filepath.Join(t.TempDir(), "ro")
	mkdir(t, parent, 0o555)
	t.Cleanup(func() { _ = os.Chmod(parent, 0o755) })

	err := workspace.EnsureClean(filepath.Join(parent, "ws"))
	var wsErr *workspace.WorkspaceError
	if !errors.As(err, &wsErr) {
		t.Fatalf("EnsureClean() error = %v, want *WorkspaceError", err)
	}
	if wsErr.Op != "create" {
		t.Errorf("Op = %q, want create", wsErr.Op)
	}
}

func TestLayout(t *testing.T) {
	if l := workspace.NewLayout(""); l.Dir != filepath.Clean(workspace.DefaultDir) {
		t.Errorf("NewLayout(\"\").Dir = %q", l.Dir)
	}

	l := workspace.NewLayout("/tmp/ws/")
	tests := []struct {
		name, got, want string
	}{
		{"config", l.ConfigFile(), "/tmp/ws/stress-test.properties"},
		{"results", l.ResultsFile(), "/tmp/ws/results.jtl"},
		{"report", l.ReportDir(), "/tmp/ws/report-html"},
		{"statistics", l.StatisticsFile(), "/tmp/ws/report-html/statistics.json"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s path = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestLockSurvivesCleanAndExcludes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	first := workspace.NewLock(dir)
	if err := first.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	t.Cleanup(func() { _ = first.Release() })

	if err := workspace.EnsureClean(dir); err != nil {
		t.Fatalf("EnsureClean() error = %v", err)
	}
	if _, err := os.Stat(first.Path()); err != nil {
		t.Fatalf("lock file must live outside the workspace: %v", err)
	}

	second := workspace.NewLock(dir)
	ok, err := second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if ok {
		t.Error("TryAcquire() succeeded while the lock is held")
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	ok, err = second.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire() error = %v", err)
	}
	if !ok {
		t.Error("TryAcquire() failed after release")
	}
	if err := second.Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestLockAcquireHonorsContext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	holder := workspace.NewLock(dir)
	if err := holder.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	t.Cleanup(func() { _ = holder.Release() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var wsErr *workspace.WorkspaceError
	if err := workspace.NewLock(dir).Acquire(ctx); !errors.As(err, &wsErr) {
		t.Errorf("Acquire() with cancelled context error = %v, want *WorkspaceError", err)
	}
}
