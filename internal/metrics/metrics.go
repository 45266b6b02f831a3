// Package metrics exposes Prometheus counters and gauges for archive
// operations (appends, re-indexes, and append conflicts), the
// operational analogue of the teacher's derived CodebaseStats: where
// that package summarized index data for a human report, this package
// summarizes archive activity for a scrape target.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the registered series an Archive updates as it
// processes operations. A nil *Collectors is valid and every method on
// it is a no-op, so metrics remain optional for callers that don't
// register a Prometheus registry.
type Collectors struct {
	Appends         *prometheus.CounterVec
	Reindexes       prometheus.Counter
	AppendConflicts *prometheus.CounterVec
	Subjects        prometheus.Gauge
}

// New creates and registers the archive's metric series on reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer for process-wide export.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtbids",
			Subsystem: "archive",
			Name:      "appends_total",
			Help:      "Total number of append operations, by outcome.",
		}, []string{"outcome"}),
		Reindexes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rtbids",
			Subsystem: "archive",
			Name:      "reindexes_total",
			Help:      "Total number of layout re-index operations.",
		}),
		AppendConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtbids",
			Subsystem: "archive",
			Name:      "append_conflicts_total",
			Help:      "Total number of append operations rejected by a compatibility check, by error kind.",
		}, []string{"kind"}),
		Subjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rtbids",
			Subsystem: "archive",
			Name:      "subjects",
			Help:      "Number of distinct subjects in the archive as of the last re-index.",
		}),
	}
	reg.MustRegister(c.Appends, c.Reindexes, c.AppendConflicts, c.Subjects)
	return c
}

// ObserveAppend records the outcome of one append_incremental call.
func (c *Collectors) ObserveAppend(outcome string) {
	if c == nil {
		return
	}
	c.Appends.WithLabelValues(outcome).Inc()
}

// ObserveReindex records one layout re-index.
func (c *Collectors) ObserveReindex() {
	if c == nil {
		return
	}
	c.Reindexes.Inc()
}

// ObserveConflict records an append rejected by a compatibility check.
func (c *Collectors) ObserveConflict(kind string) {
	if c == nil {
		return
	}
	c.AppendConflicts.WithLabelValues(kind).Inc()
}

// SetSubjects records the distinct-subject count after a re-index.
func (c *Collectors) SetSubjects(n int) {
	if c == nil {
		return
	}
	c.Subjects.Set(float64(n))
}
