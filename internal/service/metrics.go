package service

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "daily_calendar"

// Metrics exports scheduler and chat counters. A nil *Metrics records nothing.
type Metrics struct {
	remindersFired *prometheus.CounterVec
	summariesSent  prometheus.Counter
	unitFailures   *prometheus.CounterVec
	tickDuration   prometheus.Histogram
	extractions    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		remindersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reminders_fired_total",
			Help:      "Reminders dispatched and marked sent.",
		}, []string{"kind"}),
		summariesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "summaries_sent_total",
			Help:      "Daily summaries dispatched.",
		}),
		unitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scan_unit_failures_total",
			Help:      "Reminders or users whose processing failed during a scan.",
		}, []string{"scan"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "scan_tick_duration_seconds",
			Help:      "Duration of one scheduler tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "extractions_total",
			Help:      "Extraction provider calls by result.",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{m.remindersFired, m.summariesSent, m.unitFailures, m.tickDuration, m.extractions}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// MustNewMetrics panics when registration fails.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	m, err := NewMetrics(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) ReminderFired(kind string) {
	if m == nil {
		return
	}
	m.remindersFired.WithLabelValues(kind).Inc()
}

func (m *Metrics) SummarySent() {
	if m == nil {
		return
	}
	m.summariesSent.Inc()
}

func (m *Metrics) UnitFailed(scan string) {
	if m == nil {
		return
	}
	m.unitFailures.WithLabelValues(scan).Inc()
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveExtraction(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.extractions.WithLabelValues(result).Inc()
}
