package migrate

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tonimelisma/gdrive2preservica/internal/ledger"
)

// Metrics counts what a run did. A batch job has no endpoint to scrape, so
// the registry is written to a node-exporter textfile when the run ends.
type Metrics struct {
	registry    *prometheus.Registry
	files       *prometheus.CounterVec
	bytes       prometheus.Counter
	pages       prometheus.Counter
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
	duration    prometheus.Gauge
}

// NewMetrics creates the run metrics on a private registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gdrive2preservica_files_total",
			Help: "Files seen in the listing, by result.",
		}, []string{"result"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gdrive2preservica_exported_bytes_total",
			Help: "Bytes downloaded from Drive.",
		}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gdrive2preservica_pages_total",
			Help: "Listing pages fetched.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gdrive2preservica_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gdrive2preservica_last_run_success",
			Help: "1 if the last run completed, 0 if it aborted.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gdrive2preservica_last_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}

	for _, c := range []prometheus.Collector{m.files, m.bytes, m.pages, m.lastRun, m.lastSuccess, m.duration} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("migrate: registering metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) observePage() {
	if m != nil {
		m.pages.Inc()
	}
}

func (m *Metrics) observeFile(r ledger.Result, bytes int64) {
	if m == nil {
		return
	}

	m.files.WithLabelValues(string(r)).Inc()

	if bytes > 0 {
		m.bytes.Add(float64(bytes))
	}
}

// Finish records the run's end state.
func (m *Metrics) Finish(started, finished time.Time, runErr error) {
	if m == nil {
		return
	}

	m.lastRun.Set(float64(finished.Unix()))
	m.duration.Set(finished.Sub(started).Seconds())

	if runErr == nil {
		m.lastSuccess.Set(1)
	} else {
		m.lastSuccess.Set(0)
	}
}

// WriteTextfile writes the registry atomically to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("migrate: writing metrics textfile: %w", err)
	}

	return nil
}
