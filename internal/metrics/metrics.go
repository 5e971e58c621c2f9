package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registration, check-in, export and HTTP outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registrations   *prometheus.CounterVec
	CheckIns        *prometheus.CounterVec
	Exports         *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	VerifyDuration  prometheus.Histogram
	RequestDuration *prometheus.HistogramVec
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campusevents_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		CheckIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campusevents_checkins_total",
			Help: "Verification attempts by outcome",
		}, []string{"outcome"}),
		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campusevents_exports_total",
			Help: "Exports by requested format and delivered format",
		}, []string{"requested", "delivered"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "campusevents_notifications_total",
			Help: "Notification messages by type and outcome",
		}, []string{"type", "outcome"}),
		VerifyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "campusevents_verify_duration_seconds",
			Help:    "Duration of credential verification",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusevents_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CheckIn(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.CheckIns.WithLabelValues(outcome).Inc()
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) Export(requested, delivered string) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(requested, delivered).Inc()
}

func (m *Metrics) Notification(typ, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(typ, outcome).Inc()
}

// ObserveRequest records one HTTP request. Call with time.Now() taken at the start.
func (m *Metrics) ObserveRequest(method, route, status string, start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
}
