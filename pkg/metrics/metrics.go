// Package metrics exposes run results as Prometheus metrics written to a node-exporter
// textfile collector file.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autobrr/dupelink/pkg/consolidate"
	"github.com/autobrr/dupelink/pkg/dedupe"
)

type RunCollector struct {
	mu       sync.Mutex
	summary  dedupe.Summary
	outcomes map[consolidate.Status]float64
	reclaim  uint64
	duration time.Duration
	lastRun  time.Time

	scannedDesc     *prometheus.Desc
	uniqueDesc      *prometheus.Desc
	setsDesc        *prometheus.Desc
	filesInSetsDesc *prometheus.Desc
	preLinkedDesc   *prometheus.Desc
	reclaimableDesc *prometheus.Desc
	reclaimedDesc   *prometheus.Desc
	failedDesc      *prometheus.Desc
	outcomesDesc    *prometheus.Desc
	durationDesc    *prometheus.Desc
	lastRunDesc     *prometheus.Desc
}

func NewRunCollector() *RunCollector {
	return &RunCollector{
		outcomes: make(map[consolidate.Status]float64),

		scannedDesc:     prometheus.NewDesc("dupelink_files_scanned", "Number of candidate files scanned in the last run", nil, nil),
		uniqueDesc:      prometheus.NewDesc("dupelink_files_unique", "Number of scanned files not part of any duplicate set", nil, nil),
		setsDesc:        prometheus.NewDesc("dupelink_duplicate_sets", "Number of duplicate sets found", nil, nil),
		filesInSetsDesc: prometheus.NewDesc("dupelink_files_in_sets", "Number of files belonging to a duplicate set", nil, nil),
		preLinkedDesc:   prometheus.NewDesc("dupelink_preexisting_links", "Number of files already hardlinked to a scanned file", nil, nil),
		reclaimableDesc: prometheus.NewDesc("dupelink_reclaimable_bytes", "Bytes that consolidating every duplicate set would free", nil, nil),
		reclaimedDesc:   prometheus.NewDesc("dupelink_reclaimed_bytes", "Bytes freed by the last consolidation", nil, nil),
		failedDesc:      prometheus.NewDesc("dupelink_files_failed", "Number of files that could not be read during the scan", nil, nil),
		outcomesDesc:    prometheus.NewDesc("dupelink_consolidation_outcomes", "Consolidation outcomes of the last run by status", []string{"status"}, nil),
		durationDesc:    prometheus.NewDesc("dupelink_run_duration_seconds", "Wall time of the last run", nil, nil),
		lastRunDesc:     prometheus.NewDesc("dupelink_last_run_timestamp_seconds", "Unix time the last run finished", nil, nil),
	}
}

func (c *RunCollector) ObserveSummary(s dedupe.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summary = s
}

func (c *RunCollector) ObserveOutcome(o consolidate.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[o.Status]++
}

func (c *RunCollector) ObserveReport(r *consolidate.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reclaim = r.ReclaimedBytes
}

func (c *RunCollector) ObserveDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = d
	c.lastRun = time.Now()
}

func (c *RunCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.scannedDesc
	ch <- c.uniqueDesc
	ch <- c.setsDesc
	ch <- c.filesInSetsDesc
	ch <- c.preLinkedDesc
	ch <- c.reclaimableDesc
	ch <- c.reclaimedDesc
	ch <- c.failedDesc
	ch <- c.outcomesDesc
	ch <- c.durationDesc
	ch <- c.lastRunDesc
}

func (c *RunCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	}

	gauge(c.scannedDesc, float64(c.summary.Scanned))
	gauge(c.uniqueDesc, float64(c.summary.Unique))
	gauge(c.setsDesc, float64(c.summary.Sets))
	gauge(c.filesInSetsDesc, float64(c.summary.FilesInSets))
	gauge(c.preLinkedDesc, float64(c.summary.PreExistingLinks))
	gauge(c.reclaimableDesc, float64(c.summary.ReclaimableBytes))
	gauge(c.reclaimedDesc, float64(c.reclaim))
	gauge(c.failedDesc, float64(c.summary.Failed))

	for status, n := range c.outcomes {
		gauge(c.outcomesDesc, n, status.String())
	}

	gauge(c.durationDesc, c.duration.Seconds())
	if !c.lastRun.IsZero() {
		gauge(c.lastRunDesc, float64(c.lastRun.Unix()))
	}
}

// Manager owns the private registry the run collector is registered with.
type Manager struct {
	registry *prometheus.Registry
	run      *RunCollector
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()
	run := NewRunCollector()
	registry.MustRegister(run)

	return &Manager{
		registry: registry,
		run:      run,
	}
}

func (m *Manager) Run() *RunCollector {
	return m.run
}

// WriteTextfile atomically replaces path with the current metrics in text exposition format.
func (m *Manager) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
