package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks operational counters for collection sessions and the
// collector server.
type Metrics struct {
	// Convergence loop
	Cycles            atomic.Int64
	Stalls            atomic.Int64
	ContainersSeen    atomic.Int64
	ContainersSkipped atomic.Int64
	RecordsCollected  atomic.Int64

	// Sessions and submission
	SessionsStarted   atomic.Int64
	SessionsFailed    atomic.Int64
	Submissions       atomic.Int64
	SubmissionsFailed atomic.Int64
	RecordsSubmitted  atomic.Int64

	// Collector server
	BatchesReceived    atomic.Int64
	BatchesRejected    atomic.Int64
	RecordsReceived    atomic.Int64
	StorageErrors      atomic.Int64
	RecordsCategorized atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"markbook_cycles_total", "Total scroll cycles run", m.Cycles.Load()},
		{"markbook_stalls_total", "Total cycles without a novel record", m.Stalls.Load()},
		{"markbook_containers_seen_total", "Total containers sampled", m.ContainersSeen.Load()},
		{"markbook_containers_skipped_total", "Total containers without a record", m.ContainersSkipped.Load()},
		{"markbook_records_collected_total", "Total unique records collected", m.RecordsCollected.Load()},
		{"markbook_sessions_started_total", "Total sessions started", m.SessionsStarted.Load()},
		{"markbook_sessions_failed_total", "Total sessions ending in error", m.SessionsFailed.Load()},
		{"markbook_submissions_total", "Total submissions attempted", m.Submissions.Load()},
		{"markbook_submissions_failed_total", "Total failed submissions", m.SubmissionsFailed.Load()},
		{"markbook_records_submitted_total", "Total records accepted by the endpoint", m.RecordsSubmitted.Load()},
		{"markbook_batches_received_total", "Total submission batches received", m.BatchesReceived.Load()},
		{"markbook_batches_rejected_total", "Total submission batches rejected", m.BatchesRejected.Load()},
		{"markbook_records_received_total", "Total records received", m.RecordsReceived.Load()},
		{"markbook_storage_errors_total", "Total storage failures", m.StorageErrors.Load()},
		{"markbook_records_categorized_total", "Total records categorized", m.RecordsCategorized.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"cycles":              m.Cycles.Load(),
		"stalls":              m.Stalls.Load(),
		"containers_seen":     m.ContainersSeen.Load(),
		"containers_skipped":  m.ContainersSkipped.Load(),
		"records_collected":   m.RecordsCollected.Load(),
		"sessions_started":    m.SessionsStarted.Load(),
		"sessions_failed":     m.SessionsFailed.Load(),
		"submissions":         m.Submissions.Load(),
		"submissions_failed":  m.SubmissionsFailed.Load(),
		"records_submitted":   m.RecordsSubmitted.Load(),
		"batches_received":    m.BatchesReceived.Load(),
		"batches_rejected":    m.BatchesRejected.Load(),
		"records_received":    m.RecordsReceived.Load(),
		"storage_errors":      m.StorageErrors.Load(),
		"records_categorized": m.RecordsCategorized.Load(),
	}
}

// LogSummary writes the non-zero counters at info level.
func (m *Metrics) LogSummary(msg string) {
	args := make([]any, 0, 30)
	for k, v := range m.Snapshot() {
		if v != 0 {
			args = append(args, k, v)
		}
	}
	m.logger.Info(msg, args...)
}
