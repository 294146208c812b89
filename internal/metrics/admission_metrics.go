package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AdmissionMetrics содержит метрики контура приёма заказов.
type AdmissionMetrics struct {
	// Счётчики решений
	admissionsAllowed  prometheus.Counter
	admissionsRejected prometheus.Counter

	// Гистограмма времени принятия решения
	admissionDuration prometheus.Histogram

	// Счётчики недельного цикла и админ-операций
	weeksCreated prometheus.Counter
	adminOps     *prometheus.CounterVec

	// Gauge остатка вместимости активной недели
	weekRemaining prometheus.Gauge
}

// NewAdmissionMetrics создаёт новый экземпляр метрик приёма.
func NewAdmissionMetrics() *AdmissionMetrics {
	return newAdmissionMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newAdmissionMetricsWithRegisterer(registerer prometheus.Registerer) *AdmissionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &AdmissionMetrics{
		admissionsAllowed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "capacity_admissions_allowed_total",
			Help: "Total number of order admissions that were allowed",
		}),
		admissionsRejected: registerCounter(registerer, prometheus.CounterOpts{
			Name: "capacity_admissions_rejected_total",
			Help: "Total number of order admissions rejected due to exhausted capacity",
		}),
		admissionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "capacity_admission_duration_seconds",
			Help:    "Duration of a single admission decision",
			Buckets: prometheus.DefBuckets,
		}),
		weeksCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "capacity_weeks_created_total",
			Help: "Total number of week records created (lazy and admin-forced)",
		}),
		adminOps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "capacity_admin_operations_total",
			Help: "Total number of admin capacity operations grouped by operation",
		}, []string{"operation"}),
		weekRemaining: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "capacity_week_remaining",
			Help: "Remaining capacity of the active week after the last observed decision",
		}),
	}
}

// RecordAdmission фиксирует решение о приёме и его длительность.
func (m *AdmissionMetrics) RecordAdmission(allowed bool, duration time.Duration) {
	if allowed {
		m.admissionsAllowed.Inc()
	} else {
		m.admissionsRejected.Inc()
	}
	m.admissionDuration.Observe(duration.Seconds())
}

// RecordWeekCreated увеличивает счётчик созданных недельных записей.
func (m *AdmissionMetrics) RecordWeekCreated() {
	m.weeksCreated.Inc()
}

// RecordAdminOperation увеличивает счётчик админ-операций.
func (m *AdmissionMetrics) RecordAdminOperation(operation string) {
	m.adminOps.WithLabelValues(operation).Inc()
}

// SetWeekRemaining обновляет gauge остатка активной недели.
func (m *AdmissionMetrics) SetWeekRemaining(remaining int) {
	m.weekRemaining.Set(float64(remaining))
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}
