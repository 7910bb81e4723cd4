// Package workspace prepares the per-run directory the load-test tool works in.
//
// A workspace is wiped at the start of the next preparation rather than at the
// end of a run, so results stay inspectable until another run begins.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DefaultDir is the workspace used when none is configured.
const DefaultDir = "build/test-results/jmeter"

const (
	ConfigFileName     = "stress-test.properties"
	ResultsFileName    = "results.jtl"
	ReportDirName      = "report-html"
	StatisticsFileName = "statistics.json"
)

// ErrNotDirectory is returned when the workspace path is occupied by something else.
var ErrNotDirectory = errors.New("not a directory")

// WorkspaceError reports a filesystem failure while preparing a workspace.
type WorkspaceError struct {
	Op   string
	Path string
	Err  error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WorkspaceError) Unwrap() error {
	return e.Err
}

// Layout names the files a run produces inside its workspace.
type Layout struct {
	Dir string `json:"dir" yaml:"dir"`
}

// NewLayout returns the layout rooted at dir, or DefaultDir when dir is empty.
func NewLayout(dir string) Layout {
	if dir == "" {
		dir = DefaultDir
	}
	return Layout{Dir: filepath.Clean(dir)}
}

func (l Layout) ConfigFile() string  { return filepath.Join(l.Dir, ConfigFileName) }
func (l Layout) ResultsFile() string { return filepath.Join(l.Dir, ResultsFileName) }
func (l Layout) ReportDir() string   { return filepath.Join(l.Dir, ReportDirName) }

// StatisticsFile is the machine-readable summary the tool writes into its HTML report.
// Its content is owned by the tool; loadrig only points downstream consumers at it.
func (l Layout) StatisticsFile() string {
	return filepath.Join(l.Dir, ReportDirName, StatisticsFileName)
}

// EnsureClean leaves path as an existing, empty directory.
//
// Existing content is removed children first. Entries that disappear while
// cleaning, as left behind by a crashed run, are tolerated. Missing parent
// directories are created.
func EnsureClean(path string) error {
	if path == "" {
		return &WorkspaceError{Op: "clean", Path: path, Err: errors.New("empty path")}
	}

	info, err := os.Lstat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return &WorkspaceError{Op: "clean", Path: path, Err: ErrNotDirectory}
		}
		if err := removeBottomUp(path); err != nil {
			return &WorkspaceError{Op: "clean", Path: path, Err: err}
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return &WorkspaceError{Op: "stat", Path: path, Err: err}
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return &WorkspaceError{Op: "create", Path: path, Err: err}
	}
	return nil
}

func removeBottomUp(root string) error {
	var paths []string
	err := filepath.WalkDir(root, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return err
	}

	// A parent is a strict prefix of its children, so reverse order visits children first.
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
