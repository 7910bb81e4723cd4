package metrics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrNoHeader is returned for a sample log without a CSV header line.
var ErrNoHeader = errors.New("sample log has no header")

// jtlColumns are the CSV columns a summary needs. JMeter writes more.
var jtlColumns = []string{"timeStamp", "elapsed", "label", "responseCode", "success"}

// ReadJTL replays a CSV sample log into a new Collector.
func ReadJTL(r io.Reader) (*Collector, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read sample log header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	if _, ok := index["elapsed"]; !ok {
		return nil, ErrNoHeader
	}

	c := NewCollector()
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("sample log line %d: %w", line, err)
		}
		sample, err := parseSample(record, index)
		if err != nil {
			return nil, fmt.Errorf("sample log line %d: %w", line, err)
		}
		c.Record(sample)
	}
	return c, nil
}

// LoadJTL reads the sample log at path.
func LoadJTL(path string) (*Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := ReadJTL(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	stats := c.Stats()
	return &stats, nil
}

func parseSample(record []string, index map[string]int) (Sample, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	elapsed, err := strconv.ParseInt(field("elapsed"), 10, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("invalid elapsed %q", field("elapsed"))
	}
	sample := Sample{
		Elapsed:      time.Duration(elapsed) * time.Millisecond,
		Label:        field("label"),
		ResponseCode: field("responseCode"),
		Success:      true,
	}
	if raw := field("timeStamp"); raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("invalid timeStamp %q", raw)
		}
		sample.Timestamp = time.UnixMilli(millis)
	}
	if raw := field("success"); raw != "" {
		ok, err := strconv.ParseBool(raw)
		if err != nil {
			return Sample{}, fmt.Errorf("invalid success %q", raw)
		}
		sample.Success = ok
	}
	return sample, nil
}
