package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	interventionsTotal *prometheus.CounterVec
	ruleLoadFailures   prometheus.Counter
	rulesLoaded        prometheus.Gauge
	requestDuration    *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "wafgate_requests_total", Help: "Total requests"},
			[]string{"action", "code"},
		),
		interventionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "wafgate_interventions_total", Help: "Total disruptive interventions"},
			[]string{"phase", "kind"},
		),
		ruleLoadFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "wafgate_rule_load_failures_total", Help: "Rule sources rejected at startup"},
		),
		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "wafgate_rules_loaded", Help: "Rules loaded at startup"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wafgate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.requestsTotal,
		m.interventionsTotal,
		m.ruleLoadFailures,
		m.rulesLoaded,
		m.requestDuration,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(action string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(action, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(action).Observe(duration.Seconds())
}

func (m *Metrics) ObserveIntervention(phase, kind string) {
	if m == nil {
		return
	}
	m.interventionsTotal.WithLabelValues(phase, kind).Inc()
}

// ObserveRuleLoad records the startup load result: the absolute rule total
// and how many sources were rejected.
func (m *Metrics) ObserveRuleLoad(total, failures int) {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(float64(total))
	m.ruleLoadFailures.Add(float64(failures))
}
