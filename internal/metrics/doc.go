// Package metrics summarizes the artifacts a load tool leaves in its
// workspace.
//
// JMeter's HTML dashboard writes report-html/statistics.json with the
// aggregated numbers already computed; when it is present it is read with
// gjson. Otherwise the raw sample log (results.jtl, CSV) is replayed through
// a Collector, which keeps an HDR histogram of response times so the
// percentiles match what the dashboard would have shown.
package metrics
