package threshold

import (
	"strings"
	"testing"

	"github.com/torosent/loadrig/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "p95 response time",
			input: "response_time:p95 < 500",
			want:  Threshold{Metric: "response_time", Aggregate: "p95", Operator: "<", Value: 500, Raw: "response_time:p95 < 500"},
		},
		{
			name:  "error rate",
			input: "errors:rate < 0.01",
			want:  Threshold{Metric: "errors", Aggregate: "rate", Operator: "<", Value: 0.01, Raw: "errors:rate < 0.01"},
		},
		{
			name:  "throughput without spaces",
			input: "  requests:rate>=100  ",
			want:  Threshold{Metric: "requests", Aggregate: "rate", Operator: ">=", Value: 100, Raw: "requests:rate>=100"},
		},
		{name: "empty", input: "  ", wantError: true},
		{name: "missing aggregate", input: "response_time < 500", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "unknown aggregate", input: "response_time:p42 < 500", wantError: true},
		{name: "unknown operator", input: "response_time:p95 != 500", wantError: true},
		{name: "bad value", input: "response_time:p95 < 1.2.3", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantError {
				if err == nil {
					t.Errorf("Parse(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	got, err := ParseMultiple([]string{"response_time:p99 < 1000", "errors:count == 0"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ParseMultiple() len = %d, want 2", len(got))
	}

	_, err = ParseMultiple([]string{"response_time:p99 < 1000", "bogus", "also bogus"})
	if err == nil || !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("ParseMultiple() error = %v, want both bad entries reported", err)
	}

	if got, err := ParseMultiple(nil); got != nil || err != nil {
		t.Errorf("ParseMultiple(nil) = %v, %v", got, err)
	}
}

func TestEvaluate(t *testing.T) {
	stats := &metrics.Stats{
		Total:          200,
		Failures:       2,
		MinLatencyMs:   3,
		MaxLatencyMs:   900,
		MeanLatencyMs:  40,
		P50LatencyMs:   30,
		P90LatencyMs:   120,
		P95LatencyMs:   250,
		P99LatencyMs:   600,
		RequestsPerSec: 80,
	}

	tests := []struct {
		expr   string
		pass   bool
		actual float64
	}{
		{"response_time:p50 <= 30", true, 30},
		{"response_time:p90 < 100", false, 120},
		{"response_time:p95 < 300", true, 250},
		{"response_time:p99 < 500", false, 600},
		{"response_time:avg < 50", true, 40},
		{"response_time:min >= 3", true, 3},
		{"response_time:max < 1000", true, 900},
		{"errors:rate < 0.02", true, 0.01},
		{"errors:count == 0", false, 2},
		{"requests:count >= 200", true, 200},
		{"requests:rate > 100", false, 80},
		{"errors:p99 < 1", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			th, err := Parse(tt.expr)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			results := NewEvaluator([]Threshold{th}).Evaluate(stats)
			if len(results) != 1 {
				t.Fatalf("Evaluate() len = %d", len(results))
			}
			r := results[0]
			if r.Pass != tt.pass {
				t.Errorf("Pass = %v, want %v (%s)", r.Pass, tt.pass, r.Message)
			}
			if r.Actual != tt.actual {
				t.Errorf("Actual = %v, want %v", r.Actual, tt.actual)
			}
		})
	}
}

func TestEvaluateWithoutResults(t *testing.T) {
	th, _ := Parse("errors:count == 0")
	results := NewEvaluator([]Threshold{th}).Evaluate(nil)
	if len(results) != 1 || results[0].Pass {
		t.Fatalf("Evaluate(nil) = %+v, want single failure", results)
	}
	if AllPassed(results) {
		t.Error("AllPassed() = true")
	}
}

func TestEvaluateNoThresholds(t *testing.T) {
	if got := NewEvaluator(nil).Evaluate(&metrics.Stats{}); got != nil {
		t.Errorf("Evaluate() = %v, want nil", got)
	}
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) = false")
	}
}

func TestErrorRateWithNoSamples(t *testing.T) {
	th, _ := Parse("errors:rate < 0.01")
	results := NewEvaluator([]Threshold{th}).Evaluate(&metrics.Stats{})
	if !results[0].Pass || results[0].Actual != 0 {
		t.Errorf("result = %+v", results[0])
	}
}
