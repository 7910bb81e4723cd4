package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/torosent/loadrig/internal/harness"
	"github.com/torosent/loadrig/internal/metrics"
	"github.com/torosent/loadrig/internal/threshold"
)

// Format selects how a Report is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Report is what a run prints once it has finished.
type Report struct {
	Outcome *harness.Outcome `json:"outcome" yaml:"outcome"`
	Summary *metrics.Stats   `json:"summary,omitempty" yaml:"summary,omitempty"`

	// Thresholds are informational; they never change the verdict.
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Write renders the report in the given format.
func Write(w io.Writer, format Format, report Report) error {
	switch format {
	case FormatJSON:
		return PrintJSONReport(w, report)
	case FormatYAML:
		return PrintYAMLReport(w, report)
	case FormatText, "":
		PrintReport(w, report)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report Report) {
	o := report.Outcome
	if o == nil {
		return
	}
	verdict := "PASSED"
	if !o.Passed() {
		verdict = "FAILED"
	}

	fmt.Fprintln(w, "\n--- Load Test Outcome ---")
	fmt.Fprintf(w, "Run:               %s\n", o.RunID)
	fmt.Fprintf(w, "Result:            %s\n", verdict)
	fmt.Fprintf(w, "Phases:            %s\n", joinPhases(o.History))
	if p := o.Preparation; p != nil {
		profile := p.Profile
		if profile == "" {
			profile = "(default)"
		}
		fmt.Fprintf(w, "Image:             %s\n", p.Image)
		fmt.Fprintf(w, "Service Port:      %d\n", p.ServicePort)
		fmt.Fprintf(w, "Profile:           %s\n", profile)
		fmt.Fprintf(w, "Workspace:         %s\n", p.Layout.Dir)
	}
	if r := o.Result; r != nil {
		fmt.Fprintf(w, "Command:           %s\n", strings.Join(r.Command, " "))
		fmt.Fprintf(w, "Exit Code:         %d\n", r.ExitCode)
		fmt.Fprintf(w, "Duration:          %s\n", r.Duration)
	}
	if o.Error != "" {
		fmt.Fprintf(w, "Error:             %s\n", o.Error)
	}

	if s := report.Summary; s != nil {
		printSummary(w, s)
	}

	if len(report.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds (advisory):")
		for _, r := range report.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

func printSummary(w io.Writer, s *metrics.Stats) {
	fmt.Fprintf(w, "\n--- Load Test Results (%s) ---\n", s.Source)
	fmt.Fprintf(w, "Total Requests:    %d\n", s.Total)
	fmt.Fprintf(w, "Successful:        %d\n", s.Successes)
	fmt.Fprintf(w, "Failed:            %d (%.2f%%)\n", s.Failures, s.ErrorPct)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", s.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %.2fms\n", s.MinLatencyMs)
	fmt.Fprintf(w, "  Max:             %.2fms\n", s.MaxLatencyMs)
	fmt.Fprintf(w, "  Mean:            %.2fms\n", s.MeanLatencyMs)
	fmt.Fprintf(w, "  P50:             %.2fms\n", s.P50LatencyMs)
	fmt.Fprintf(w, "  P90:             %.2fms\n", s.P90LatencyMs)
	fmt.Fprintf(w, "  P95:             %.2fms\n", s.P95LatencyMs)
	fmt.Fprintf(w, "  P99:             %.2fms\n", s.P99LatencyMs)

	if len(s.Labels) > 0 {
		fmt.Fprintln(w, "\nSampler Breakdown:")
		for _, name := range s.LabelNames() {
			label := s.Labels[name]
			share := 0.0
			if s.Total > 0 {
				share = float64(label.Total) / float64(s.Total) * 100
			}
			fmt.Fprintf(
				w,
				"  - %s: total=%d (%.1f%%), failures=%d, rps=%.2f, p99=%.2fms\n",
				name,
				label.Total,
				share,
				label.Failures,
				label.RequestsPerSec,
				label.P99LatencyMs,
			)
		}
	}

	if len(s.ResponseCodes) > 0 {
		fmt.Fprintln(w, "\nFailed Response Codes:")
		for _, code := range sortedKeys(s.ResponseCodes) {
			fmt.Fprintf(w, "  %s: %d\n", code, s.ResponseCodes[code])
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func joinPhases(phases []harness.Phase) string {
	parts := make([]string, len(phases))
	for i, p := range phases {
		parts[i] = string(p)
	}
	return strings.Join(parts, " -> ")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
