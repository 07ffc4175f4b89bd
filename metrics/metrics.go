package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	logger "github.com/sirupsen/logrus"
)

// Metrics holds the station gauges on a registry of their own.
type Metrics struct {
	reg *prometheus.Registry

	Temperature     prometheus.Gauge
	Humidity        prometheus.Gauge
	HeatIndex       prometheus.Gauge
	MoistureRaw     prometheus.Gauge
	MoistureSmooth  prometheus.Gauge
	BootCount       prometheus.Gauge
	PublishFailures prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "temperature",
			Help: "Temperature C",
		}),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relative_humidity",
			Help: "Relative Humidity",
		}),
		HeatIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heat_index",
			Help: "Heat index C",
		}),
		MoistureRaw: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soil_moisture_raw",
			Help: "Last raw ADC reading from the moisture probe",
		}),
		MoistureSmooth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soil_moisture",
			Help: "Smoothed soil moisture estimate",
		}),
		BootCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boot_count",
			Help: "Boots since power on",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_publish_failures_total",
			Help: "Telemetry values that could not be published",
		}),
	}
	m.reg.MustRegister(
		m.Temperature,
		m.Humidity,
		m.HeatIndex,
		m.MoistureRaw,
		m.MoistureSmooth,
		m.BootCount,
		m.PublishFailures)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Push sends the current values to a Pushgateway. A station that suspends
// between boots cannot be scraped.
func (m *Metrics) Push(url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.reg).Push(); err != nil {
		return fmt.Errorf("push to %v: %w", url, err)
	}
	logger.Debugf("Pushed metrics to [%v]", url)
	return nil
}
