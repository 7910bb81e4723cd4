package metrics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tidwall/gjson"
)

// totalKey is the aggregate row in the dashboard statistics file.
const totalKey = "Total"

// ParseStatistics reads the dashboard statistics document. Percentile
// columns follow JMeter's defaults (pct1=90th, pct2=95th, pct3=99th).
func ParseStatistics(data []byte) (*Stats, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("statistics: invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	total := doc.Get(totalKey)
	if !total.Exists() {
		return nil, errors.New("statistics: missing Total row")
	}

	count := total.Get("sampleCount").Int()
	failures := total.Get("errorCount").Int()
	stats := &Stats{
		Source:         "statistics",
		Total:          count,
		Successes:      count - failures,
		Failures:       failures,
		ErrorPct:       total.Get("errorPct").Float(),
		MinLatencyMs:   total.Get("minResTime").Float(),
		MaxLatencyMs:   total.Get("maxResTime").Float(),
		MeanLatencyMs:  total.Get("meanResTime").Float(),
		P50LatencyMs:   total.Get("medianResTime").Float(),
		P90LatencyMs:   total.Get("pct1ResTime").Float(),
		P95LatencyMs:   total.Get("pct2ResTime").Float(),
		P99LatencyMs:   total.Get("pct3ResTime").Float(),
		RequestsPerSec: total.Get("throughput").Float(),
	}

	doc.ForEach(func(key, row gjson.Result) bool {
		if key.String() == totalKey || !row.IsObject() {
			return true
		}
		if stats.Labels == nil {
			stats.Labels = make(map[string]LabelStats)
		}
		name := row.Get("transaction").String()
		if name == "" {
			name = key.String()
		}
		stats.Labels[name] = LabelStats{
			Total:          row.Get("sampleCount").Int(),
			Failures:       row.Get("errorCount").Int(),
			MeanLatencyMs:  row.Get("meanResTime").Float(),
			P99LatencyMs:   row.Get("pct3ResTime").Float(),
			RequestsPerSec: row.Get("throughput").Float(),
		}
		return true
	})
	return stats, nil
}

// LoadStatistics reads the dashboard statistics file at path.
func LoadStatistics(path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stats, err := ParseStatistics(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return stats, nil
}

// Summarize prefers the dashboard statistics and falls back to the sample
// log. It returns an error wrapping fs.ErrNotExist when neither exists.
func Summarize(statisticsFile, resultsFile string) (*Stats, error) {
	stats, err := LoadStatistics(statisticsFile)
	if err == nil {
		return stats, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return LoadJTL(resultsFile)
}
