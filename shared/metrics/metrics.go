// Package metrics exposes loader counters to Prometheus. A nil *Loader is
// valid and records nothing.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Loader struct {
	Records      *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	Files        *prometheus.CounterVec
	FileDuration prometheus.Histogram
}

// NewLoader registers the loader metrics with reg, or with the default
// registerer when reg is nil. Registering twice returns the existing
// collectors.
func NewLoader(reg prometheus.Registerer) (*Loader, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	records, err := registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cap_alerts_records_total",
		Help: "Archive records processed, by outcome.",
	}, []string{"outcome"}), "cap_alerts_records_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cap_alerts_record_failures_total",
		Help: "Records that failed to load, by pipeline stage.",
	}, []string{"stage"}), "cap_alerts_record_failures_total")
	if err != nil {
		return nil, err
	}

	files, err := registerVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cap_alerts_files_total",
		Help: "Archive segments that reached a terminal state.",
	}, []string{"state"}), "cap_alerts_files_total")
	if err != nil {
		return nil, err
	}

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cap_alerts_file_duration_seconds",
		Help:    "Wall time spent loading one archive segment.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	if err := reg.Register(hist); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Histogram)
		if !ok {
			return nil, fmt.Errorf("collector cap_alerts_file_duration_seconds already registered with incompatible type")
		}
		hist = existing
	}

	return &Loader{
		Records:      records,
		Failures:     failures,
		Files:        files,
		FileDuration: hist,
	}, nil
}

func registerVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func (l *Loader) RecordLoaded() {
	if l == nil {
		return
	}
	l.Records.WithLabelValues("loaded").Inc()
}

func (l *Loader) RecordFailed(stage string) {
	if l == nil {
		return
	}
	l.Records.WithLabelValues("failed").Inc()
	l.Failures.WithLabelValues(stage).Inc()
}

func (l *Loader) FileDone(state string, d time.Duration) {
	if l == nil {
		return
	}
	l.Files.WithLabelValues(state).Inc()
	l.FileDuration.Observe(d.Seconds())
}
