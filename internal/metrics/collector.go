package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sample is one recorded request from a load tool's sample log.
type Sample struct {
	Timestamp    time.Time
	Elapsed      time.Duration
	Label        string
	ResponseCode string
	Success      bool
}

// LabelStats is the breakdown for one sampler label.
type LabelStats struct {
	Total          int64   `json:"total" yaml:"total"`
	Failures       int64   `json:"failures" yaml:"failures"`
	MeanLatencyMs  float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P99LatencyMs   float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	RequestsPerSec float64 `json:"requests_per_sec" yaml:"requests_per_sec"`
}

// Stats represents aggregated results of a run.
type Stats struct {
	Source         string  `json:"source" yaml:"source"`
	Total          int64   `json:"total" yaml:"total"`
	Successes      int64   `json:"successes" yaml:"successes"`
	Failures       int64   `json:"failures" yaml:"failures"`
	ErrorPct       float64 `json:"error_pct" yaml:"error_pct"`
	MinLatencyMs   float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs   float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs  float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs   float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs   float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs   float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs   float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	RequestsPerSec float64 `json:"requests_per_sec" yaml:"requests_per_sec"`

	Labels map[string]LabelStats `json:"labels,omitempty" yaml:"labels,omitempty"`
	// ResponseCodes counts failed samples by response code.
	ResponseCodes map[string]int `json:"response_codes,omitempty" yaml:"response_codes,omitempty"`
}

// LabelNames returns label names ordered by descending sample count.
func (s *Stats) LabelNames() []string {
	names := make([]string, 0, len(s.Labels))
	for name := range s.Labels {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := s.Labels[names[i]], s.Labels[names[j]]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return names[i] < names[j]
	})
	return names
}

type series struct {
	hist      *hdrhistogram.Histogram
	total     int64
	failures  int64
	sum       time.Duration
	min, max  time.Duration
	first     time.Time
	lastEnded time.Time
}

func newSeries() *series {
	// Track response times from 1µs up to 10min with 3 significant figures.
	return &series{hist: hdrhistogram.New(1, 600_000_000, 3)}
}

func (s *series) record(sample Sample) {
	us := sample.Elapsed.Microseconds()
	if us < s.hist.LowestTrackableValue() {
		us = s.hist.LowestTrackableValue()
	}
	if us > s.hist.HighestTrackableValue() {
		us = s.hist.HighestTrackableValue()
	}
	_ = s.hist.RecordValue(us)

	s.total++
	if !sample.Success {
		s.failures++
	}
	s.sum += sample.Elapsed
	if s.total == 1 || sample.Elapsed < s.min {
		s.min = sample.Elapsed
	}
	if sample.Elapsed > s.max {
		s.max = sample.Elapsed
	}
	if !sample.Timestamp.IsZero() {
		if s.first.IsZero() || sample.Timestamp.Before(s.first) {
			s.first = sample.Timestamp
		}
		if end := sample.Timestamp.Add(sample.Elapsed); end.After(s.lastEnded) {
			s.lastEnded = end
		}
	}
}

func (s *series) mean() time.Duration {
	if s.total == 0 {
		return 0
	}
	return time.Duration(int64(s.sum) / s.total)
}

func (s *series) quantile(q float64) time.Duration {
	if s.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(s.hist.ValueAtQuantile(q)) * time.Microsecond
}

// throughput uses the span between the first sample start and the last
// sample end, the same window JMeter's dashboard reports.
func (s *series) throughput() float64 {
	window := s.lastEnded.Sub(s.first)
	if s.total == 0 || window <= 0 {
		return 0
	}
	return float64(s.total) / window.Seconds()
}

// Collector aggregates samples in a thread-safe manner.
type Collector struct {
	mu     sync.Mutex
	all    *series
	labels map[string]*series
	codes  map[string]int
}

func NewCollector() *Collector {
	return &Collector{
		all:    newSeries(),
		labels: make(map[string]*series),
		codes:  make(map[string]int),
	}
}

// Record adds a single sample.
func (c *Collector) Record(sample Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.all.record(sample)
	if sample.Label != "" {
		s, ok := c.labels[sample.Label]
		if !ok {
			s = newSeries()
			c.labels[sample.Label] = s
		}
		s.record(sample)
	}
	if !sample.Success {
		code := sample.ResponseCode
		if code == "" {
			code = "unknown"
		}
		c.codes[code]++
	}
}

// Stats computes the current aggregate.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.all
	stats := Stats{
		Source:         "jtl",
		Total:          all.total,
		Successes:      all.total - all.failures,
		Failures:       all.failures,
		MinLatencyMs:   ms(all.min),
		MaxLatencyMs:   ms(all.max),
		MeanLatencyMs:  ms(all.mean()),
		P50LatencyMs:   ms(all.quantile(50)),
		P90LatencyMs:   ms(all.quantile(90)),
		P95LatencyMs:   ms(all.quantile(95)),
		P99LatencyMs:   ms(all.quantile(99)),
		RequestsPerSec: all.throughput(),
	}
	if all.total > 0 {
		stats.ErrorPct = float64(all.failures) / float64(all.total) * 100
	}

	if len(c.labels) > 0 {
		stats.Labels = make(map[string]LabelStats, len(c.labels))
		for name, s := range c.labels {
			stats.Labels[name] = LabelStats{
				Total:          s.total,
				Failures:       s.failures,
				MeanLatencyMs:  ms(s.mean()),
				P99LatencyMs:   ms(s.quantile(99)),
				RequestsPerSec: s.throughput(),
			}
		}
	}
	if len(c.codes) > 0 {
		stats.ResponseCodes = make(map[string]int, len(c.codes))
		for k, v := range c.codes {
			stats.ResponseCodes[k] = v
		}
	}
	return stats
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
