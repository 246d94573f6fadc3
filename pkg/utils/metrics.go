package utils

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MetricScansTotal       = "secretlynx_scans_total"
	MetricScansActive      = "secretlynx_scans_active"
	MetricFindingsTotal    = "secretlynx_findings_total"
	MetricProbeResults     = "secretlynx_probe_results_total"
	MetricFetchDuration    = "secretlynx_fetch_duration_seconds"
	MetricScanDuration     = "secretlynx_scan_duration_seconds"
	MetricResourcesSkipped = "secretlynx_resources_skipped_total"
)

type MetricsCollector struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.RWMutex
}

func NewMetricsCollector(enableRuntimeMetrics bool) *MetricsCollector {
	reg := prometheus.NewRegistry()

	if enableRuntimeMetrics {
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		_ = reg.Register(collectors.NewGoCollector())
	}

	return &MetricsCollector{
		registry:   reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// register adds c to the registry under name, reusing an equivalent
// collector when one is already registered.
func register[T prometheus.Collector](reg *prometheus.Registry, set map[string]T, name string, c T) error {
	if _, ok := set[name]; ok {
		return nil
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return fmt.Errorf("register %s: %w", name, err)
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return fmt.Errorf("register %s: conflicting collector type", name)
		}
		c = existing
	}
	set[name] = c
	return nil
}

func (m *MetricsCollector) RegisterCounter(name, help string, labelNames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return register(m.registry, m.counters, name,
		prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labelNames))
}

func (m *MetricsCollector) RegisterGauge(name, help string, labelNames ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return register(m.registry, m.gauges, name,
		prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labelNames))
}

func (m *MetricsCollector) RegisterHistogram(name, help string, buckets []float64, labelNames ...string) error {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return register(m.registry, m.histograms, name,
		prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labelNames))
}

func (m *MetricsCollector) IncCounter(name string, delta float64, labels prometheus.Labels) {
	m.mu.RLock()
	cv, ok := m.counters[name]
	m.mu.RUnlock()
	if ok {
		cv.With(labels).Add(delta)
	}
}

func (m *MetricsCollector) AddGauge(name string, delta float64, labels prometheus.Labels) {
	m.mu.RLock()
	gv, ok := m.gauges[name]
	m.mu.RUnlock()
	if ok {
		gv.With(labels).Add(delta)
	}
}

func (m *MetricsCollector) ObserveHistogram(name string, value float64, labels prometheus.Labels) {
	m.mu.RLock()
	hv, ok := m.histograms[name]
	m.mu.RUnlock()
	if ok {
		hv.With(labels).Observe(value)
	}
}

// RegisterScanMetrics registers every series the scanner and API emit.
func (m *MetricsCollector) RegisterScanMetrics() error {
	if err := m.RegisterCounter(MetricScansTotal, "Scans by terminal status", "status"); err != nil {
		return err
	}
	if err := m.RegisterGauge(MetricScansActive, "Scans currently running"); err != nil {
		return err
	}
	if err := m.RegisterCounter(MetricFindingsTotal, "Credential findings by severity", "severity"); err != nil {
		return err
	}
	if err := m.RegisterCounter(MetricProbeResults, "Active probe results", "test", "status"); err != nil {
		return err
	}
	if err := m.RegisterCounter(MetricResourcesSkipped, "Secondary resources skipped after fetch errors", "kind"); err != nil {
		return err
	}
	if err := m.RegisterHistogram(MetricFetchDuration, "Outbound fetch latency", nil, "kind"); err != nil {
		return err
	}
	return m.RegisterHistogram(MetricScanDuration, "End to end scan duration",
		[]float64{1, 2.5, 5, 10, 30, 60, 120, 300}, "status")
}

func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

