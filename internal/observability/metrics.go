package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GridCollector bundles Prometheus metrics for grid builds, fault
// injection and sensor localisation. It satisfies the metrics recorder
// interfaces of the core services.
type GridCollector struct {
	gatherer prometheus.Gatherer

	Buses         prometheus.Gauge
	Lines         prometheus.Gauge
	EnergizedBus  prometheus.Gauge
	DeadBus       prometheus.Gauge
	BuildDuration prometheus.Histogram

	Faults *prometheus.CounterVec

	sensorMetrics
}

// NewGridCollector registers grid metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewGridCollector(reg prometheus.Registerer) (*GridCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	buses, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grid_buses",
		Help: "Number of buses in the built grid.",
	}), "grid_buses")
	if err != nil {
		return nil, err
	}
	lines, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grid_lines",
		Help: "Number of lines in the built grid.",
	}), "grid_lines")
	if err != nil {
		return nil, err
	}
	energized, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grid_energized_buses",
		Help: "Buses reachable from the source at the last energization check.",
	}), "grid_energized_buses")
	if err != nil {
		return nil, err
	}
	dead, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grid_dead_buses",
		Help: "Buses unreachable from the source at the last energization check.",
	}), "grid_dead_buses")
	if err != nil {
		return nil, err
	}

	build := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grid_build_duration_seconds",
		Help:    "Time spent building a grid from classified features.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	build, err = registerHistogram(reg, build, "grid_build_duration_seconds")
	if err != nil {
		return nil, err
	}

	faults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_faults_total",
		Help: "Lines taken out of service, labeled by how the line was chosen.",
	}, []string{"kind"})
	faults, err = registerCounterVec(reg, faults, "grid_faults_total")
	if err != nil {
		return nil, err
	}

	sm, err := newSensorMetrics(reg)
	if err != nil {
		return nil, err
	}

	return &GridCollector{
		gatherer:      gatherer,
		Buses:         buses,
		Lines:         lines,
		EnergizedBus:  energized,
		DeadBus:       dead,
		BuildDuration: build,
		Faults:        faults,
		sensorMetrics: sm,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *GridCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *GridCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetGridCounts updates the topology gauges after a build.
func (c *GridCollector) SetGridCounts(buses, lines int) {
	if c == nil {
		return
	}
	if c.Buses != nil {
		c.Buses.Set(float64(buses))
	}
	if c.Lines != nil {
		c.Lines.Set(float64(lines))
	}
}

// ObserveBuild records a build duration.
func (c *GridCollector) ObserveBuild(d time.Duration) {
	if c == nil || c.BuildDuration == nil {
		return
	}
	c.BuildDuration.Observe(d.Seconds())
}

// RecordFault counts a fault of the given kind.
func (c *GridCollector) RecordFault(kind string) {
	if c == nil || c.Faults == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	c.Faults.WithLabelValues(kind).Inc()
}

// SetEnergizedCounts updates the live/dead bus gauges.
func (c *GridCollector) SetEnergizedCounts(live, dead int) {
	if c == nil {
		return
	}
	if c.EnergizedBus != nil {
		c.EnergizedBus.Set(float64(live))
	}
	if c.DeadBus != nil {
		c.DeadBus.Set(float64(dead))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
