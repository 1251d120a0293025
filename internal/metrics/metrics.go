// Package metrics exposes this core's Prometheus instrumentation,
// replacing the teacher's hand-rolled text-exposition /metrics handler
// with the standard client_golang registry and collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every counter/histogram this core records.
type Registry struct {
	reg *prometheus.Registry

	BookingsCreated   prometheus.Counter
	BookingsAccepted  prometheus.Counter
	BookingsRejected  prometheus.Counter
	BookingsCancelled prometheus.Counter
	AcceptTimeouts    prometheus.Counter

	RequestDuration *prometheus.HistogramVec
	MatchDuration   prometheus.Histogram
	AcceptDuration  prometheus.Histogram

	LockAcquireFailures prometheus.Counter
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		BookingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatchcore_bookings_created_total",
			Help: "Total bookings created.",
		}),
		BookingsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatchcore_bookings_accepted_total",
			Help: "Total bookings accepted by a driver.",
		}),
		BookingsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatchcore_bookings_rejected_total",
			Help: "Total booking rejections recorded.",
		}),
		BookingsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatchcore_bookings_cancelled_total",
			Help: "Total bookings cancelled.",
		}),
		AcceptTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatchcore_accept_timeouts_total",
			Help: "Total bookings that timed out awaiting driver acceptance.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatchcore_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		MatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatchcore_dispatch_match_duration_seconds",
			Help:    "Time to find a ranked candidate list for a booking.",
			Buckets: prometheus.DefBuckets,
		}),
		AcceptDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatchcore_booking_accept_duration_seconds",
			Help:    "Time spent inside the atomic accept barrier.",
			Buckets: prometheus.DefBuckets,
		}),
		LockAcquireFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dispatchcore_lock_acquire_failures_total",
			Help: "Total booking-lock acquisition failures.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request's latency.
func (r *Registry) ObserveRequest(route string, status int, start time.Time) {
	r.RequestDuration.WithLabelValues(route, statusBucket(status)).Observe(time.Since(start).Seconds())
}

func statusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
