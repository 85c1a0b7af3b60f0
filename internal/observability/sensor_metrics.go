package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// sensorMetrics holds the sensor placement and localisation series of a
// GridCollector.
type sensorMetrics struct {
	Sensors            prometheus.Gauge
	FaultyBlock        prometheus.Gauge
	LocalizationProbes prometheus.Histogram
	Localizations      *prometheus.CounterVec
}

func newSensorMetrics(reg prometheus.Registerer) (sensorMetrics, error) {
	sensors, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grid_sensors",
		Help: "Number of sensors in the current placement.",
	}), "grid_sensors")
	if err != nil {
		return sensorMetrics{}, err
	}

	block, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grid_faulty_block",
		Help: "Index of the last reported faulty block, -1 when every sensor is live.",
	}), "grid_faulty_block")
	if err != nil {
		return sensorMetrics{}, err
	}
	block.Set(-1)

	probes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "grid_localization_probes",
		Help:    "Sensors inspected before a localisation stopped.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	probes, err = registerHistogram(reg, probes, "grid_localization_probes")
	if err != nil {
		return sensorMetrics{}, err
	}

	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_localizations_total",
		Help: "Localisation runs, labeled by outcome (found or clear).",
	}, []string{"outcome"})
	outcomes, err = registerCounterVec(reg, outcomes, "grid_localizations_total")
	if err != nil {
		return sensorMetrics{}, err
	}

	return sensorMetrics{
		Sensors:            sensors,
		FaultyBlock:        block,
		LocalizationProbes: probes,
		Localizations:      outcomes,
	}, nil
}

// SetSensorCount updates the sensor gauge.
func (c *GridCollector) SetSensorCount(n int) {
	if c == nil || c.Sensors == nil {
		return
	}
	c.Sensors.Set(float64(n))
}

// ObserveLocalization records the outcome of reading every sensor once.
func (c *GridCollector) ObserveLocalization(faultyBlock int, found bool, probes int) {
	if c == nil {
		return
	}
	if c.FaultyBlock != nil {
		if !found {
			faultyBlock = -1
		}
		c.FaultyBlock.Set(float64(faultyBlock))
	}
	if c.LocalizationProbes != nil {
		c.LocalizationProbes.Observe(float64(probes))
	}
	if c.Localizations != nil {
		outcome := "clear"
		if found {
			outcome = "found"
		}
		c.Localizations.WithLabelValues(outcome).Inc()
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}
