// Package metrics provides custom Prometheus metrics for the production line
// simulator and its outbound integrations.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/line"
)

// LineMetrics tracks item flow through the simulated line. It satisfies
// line.Observer so the engine can report into it directly.
type LineMetrics struct {
	ItemsSpawned    *prometheus.CounterVec
	ItemsClassified *prometheus.CounterVec
	ItemsCompleted  *prometheus.CounterVec
	ItemsDropped    *prometheus.CounterVec
	AlarmsRaised    *prometheus.CounterVec
	TransitSeconds  *prometheus.HistogramVec

	ActiveItems   *prometheus.GaugeVec
	BinCount      *prometheus.GaugeVec
	YieldPercent  prometheus.Gauge
	SimClock      prometheus.Gauge
	Paused        prometheus.Gauge
	EmergencyStop prometheus.Gauge
	TickDuration  prometheus.Histogram
	registry      *prometheus.Registry
}

var _ line.Observer = (*LineMetrics)(nil)

// NewLineMetrics creates and registers line metrics.
func NewLineMetrics(registry *prometheus.Registry) (*LineMetrics, error) {
	m := &LineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register line metrics: %w", err)
	}
	return m, nil
}

func (m *LineMetrics) initMetrics() {
	m.ItemsSpawned = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qcline_items_spawned_total",
		Help: "Total number of items spawned per lane",
	}, []string{"lane"})

	m.ItemsClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qcline_items_classified_total",
		Help: "Total number of classified items per lane and verdict",
	}, []string{"lane", "verdict"})

	m.ItemsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qcline_items_completed_total",
		Help: "Total number of items that reached a bin",
	}, []string{"lane", "bin"})

	m.ItemsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qcline_items_dropped_total",
		Help: "Total number of items removed without classification",
	}, []string{"lane"})

	m.AlarmsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qcline_alarms_total",
		Help: "Total number of alarms raised per lane and severity",
	}, []string{"lane", "severity"})

	m.TransitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qcline_item_transit_seconds",
		Help:    "Simulated seconds from spawn to bin",
		Buckets: prometheus.LinearBuckets(2, 2, 10),
	}, []string{"lane"})

	m.ActiveItems = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qcline_active_items",
		Help: "Items currently on the belt per lane",
	}, []string{"lane"})

	m.BinCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "qcline_bin_items",
		Help: "Items collected per bin since the last reset",
	}, []string{"bin"})

	m.YieldPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qcline_yield_percent",
		Help: "Share of classified items with an OK verdict",
	})

	m.SimClock = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qcline_sim_clock_seconds",
		Help: "Current simulation clock",
	})

	m.Paused = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qcline_paused",
		Help: "1 while the simulation is paused",
	})

	m.EmergencyStop = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "qcline_emergency_stop",
		Help: "1 while the emergency stop is engaged",
	})

	m.TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "qcline_tick_duration_seconds",
		Help:    "Wall time spent advancing the engine per frame",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
	})
}

// ItemSpawned implements line.Observer.
func (m *LineMetrics) ItemSpawned(lane string) {
	m.ItemsSpawned.WithLabelValues(lane).Inc()
}

// ItemClassified implements line.Observer.
func (m *LineMetrics) ItemClassified(lane string, verdict classifier.Verdict) {
	m.ItemsClassified.WithLabelValues(lane, string(verdict)).Inc()
}

// ItemCompleted implements line.Observer.
func (m *LineMetrics) ItemCompleted(lane string, bin classifier.Bin, transitSeconds float64) {
	m.ItemsCompleted.WithLabelValues(lane, string(bin)).Inc()
	m.TransitSeconds.WithLabelValues(lane).Observe(transitSeconds)
}

// ItemDropped implements line.Observer.
func (m *LineMetrics) ItemDropped(lane string) {
	m.ItemsDropped.WithLabelValues(lane).Inc()
}

// AlarmRaised implements line.Observer.
func (m *LineMetrics) AlarmRaised(lane, severity string) {
	m.AlarmsRaised.WithLabelValues(lane, severity).Inc()
}

// ObserveSnapshot refreshes the gauges from a published snapshot.
func (m *LineMetrics) ObserveSnapshot(s *line.Snapshot) {
	if s == nil {
		return
	}
	m.SimClock.Set(s.Clock)
	m.Paused.Set(boolToFloat(s.Paused))
	m.EmergencyStop.Set(boolToFloat(s.EmergencyStop))
	m.YieldPercent.Set(s.Stats.Global.YieldPercent())
	for _, l := range s.Lanes {
		m.ActiveItems.WithLabelValues(l.ID).Set(float64(len(l.Items)))
	}
	for _, b := range s.Bins {
		m.BinCount.WithLabelValues(string(b.ID)).Set(float64(b.Count))
	}
}

// ObserveTick records how long one frame of engine work took.
func (m *LineMetrics) ObserveTick(seconds float64) {
	m.TickDuration.Observe(seconds)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Collect implements the prometheus.Collector interface.
func (m *LineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ItemsSpawned.Collect(ch)
	m.ItemsClassified.Collect(ch)
	m.ItemsCompleted.Collect(ch)
	m.ItemsDropped.Collect(ch)
	m.AlarmsRaised.Collect(ch)
	m.TransitSeconds.Collect(ch)
	m.ActiveItems.Collect(ch)
	m.BinCount.Collect(ch)
	ch <- m.YieldPercent
	ch <- m.SimClock
	ch <- m.Paused
	ch <- m.EmergencyStop
	ch <- m.TickDuration
}

// Describe implements the prometheus.Collector interface.
func (m *LineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ItemsSpawned.Describe(ch)
	m.ItemsClassified.Describe(ch)
	m.ItemsCompleted.Describe(ch)
	m.ItemsDropped.Describe(ch)
	m.AlarmsRaised.Describe(ch)
	m.TransitSeconds.Describe(ch)
	m.ActiveItems.Describe(ch)
	m.BinCount.Describe(ch)
	ch <- m.YieldPercent.Desc()
	ch <- m.SimClock.Desc()
	ch <- m.Paused.Desc()
	ch <- m.EmergencyStop.Desc()
	ch <- m.TickDuration.Desc()
}
