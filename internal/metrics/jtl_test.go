package metrics_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/torosent/loadrig/internal/metrics"
)

const sampleJTL = `timeStamp,elapsed,label,responseCode,responseMessage,threadName,dataType,success,failureMessage,bytes,sentBytes,grpThreads,allThreads,URL,Latency,IdleTime,Connect
1700000000000,12,GET /orders,200,OK,Thread Group 1-1,text,true,,512,120,1,1,http://localhost:32768/orders,11,0,2
1700000000100,30,GET /orders,200,OK,Thread Group 1-2,text,true,,512,120,2,2,http://localhost:32768/orders,29,0,1
1700000000200,45,"POST /orders, bulk",503,Service Unavailable,Thread Group 1-1,text,false,"Assertion failed, retry",64,300,2,2,http://localhost:32768/orders,44,0,1
`

func TestReadJTL(t *testing.T) {
	c, err := metrics.ReadJTL(strings.NewReader(sampleJTL))
	if err != nil {
		t.Fatalf("ReadJTL() error = %v", err)
	}
	stats := c.Stats()

	if stats.Total != 3 || stats.Failures != 1 {
		t.Errorf("total/failures = %d/%d, want 3/1", stats.Total, stats.Failures)
	}
	if stats.MaxLatencyMs != 45 {
		t.Errorf("max = %v, want 45", stats.MaxLatencyMs)
	}
	if got := stats.Labels["POST /orders, bulk"]; got.Total != 1 || got.Failures != 1 {
		t.Errorf("quoted label = %+v", got)
	}
	if stats.ResponseCodes["503"] != 1 {
		t.Errorf("response codes = %v", stats.ResponseCodes)
	}
}

func TestReadJTLErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "no header"},
		{"no elapsed column", "timeStamp,label\n1,a\n", "no header"},
		{"bad elapsed", "elapsed,label\nfast,a\n", "line 2"},
		{"bad success", "elapsed,success\n1,maybe\n", "invalid success"},
		{"bad timestamp", "timeStamp,elapsed\nyesterday,1\n", "invalid timeStamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := metrics.ReadJTL(strings.NewReader(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ReadJTL() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestReadJTLMissingSuccessColumnCountsAsSuccess(t *testing.T) {
	c, err := metrics.ReadJTL(strings.NewReader("elapsed\n5\n7\n"))
	if err != nil {
		t.Fatalf("ReadJTL() error = %v", err)
	}
	if got := c.Stats(); got.Successes != 2 {
		t.Errorf("successes = %d, want 2", got.Successes)
	}
}

func TestLoadJTLMissingFile(t *testing.T) {
	_, err := metrics.LoadJTL(filepath.Join(t.TempDir(), "results.jtl"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("LoadJTL() error = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadJTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jtl")
	if err := os.WriteFile(path, []byte(sampleJTL), 0o644); err != nil {
		t.Fatal(err)
	}
	stats, err := metrics.LoadJTL(path)
	if err != nil {
		t.Fatalf("LoadJTL() error = %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
}
