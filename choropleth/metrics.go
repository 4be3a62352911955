package choropleth

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts widget events and HTTP requests on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Events          *prometheus.CounterVec
	ColumnsShown    *prometheus.CounterVec
	LoadFailures    prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Regions         prometheus.Gauge
}

// NewMetrics creates and registers the widget collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choromap_widget_events_total",
			Help: "Widget state changes by kind",
		}, []string{"kind"}),
		ColumnsShown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choromap_columns_shown_total",
			Help: "Times each column was displayed",
		}, []string{"column"}),
		LoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "choromap_load_failures_total",
			Help: "Dataset loads that left the widget not ready",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "choromap_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "choromap_http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
		}, []string{"route"}),
		Regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "choromap_regions",
			Help: "Regions in the loaded dataset",
		}),
	}
	m.registry.MustRegister(m.Events, m.ColumnsShown, m.LoadFailures,
		m.RequestsTotal, m.RequestDuration, m.Regions)
	return m
}

// Listener returns a widget listener that counts events.
func (m *Metrics) Listener() Listener {
	return func(w *Widget, e Event) {
		m.Events.WithLabelValues(string(e.Kind)).Inc()
		switch e.Kind {
		case EventColumnShown:
			m.ColumnsShown.WithLabelValues(e.Column).Inc()
		case EventLoadFailed:
			m.LoadFailures.Inc()
		case EventLoaded:
			m.Regions.Set(float64(w.Store().Len()))
		}
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(route, http.StatusText(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(float64(d.Microseconds()) / 1000)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
