package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"dispatchcore/internal/logging"
)

// AttachRoutes wires the full external API surface (C9) onto r. h must
// already carry every collaborator the handlers need.
func AttachRoutes(r chi.Router, h *Handler, env string, rateLimitPerMinute int) {
	limiter := newRateLimiter(rateLimitPerMinute)

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if h.Log != nil {
		r.Use(logging.RequestLogger(h.Log))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if h.Metrics != nil {
		r.Use(metricsMiddleware(h.Metrics))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}

	r.Post("/api/auth/register", h.RegisterIdentity)

	r.Group(func(pr chi.Router) {
		pr.Use(authMiddleware(h.Auth))
		pr.Use(limiter.middleware("booking"))

		pr.Post("/api/bookings", h.CreateBooking)
		pr.Get("/api/bookings/{bookingId}", h.GetBooking)
		pr.Post("/api/bookings/{bookingId}/accept", h.AcceptBooking)
		pr.Post("/api/bookings/{bookingId}/reject", h.RejectBooking)
		pr.Post("/api/bookings/{bookingId}/status", h.UpdateBookingStatus)
		pr.Post("/api/bookings/{bookingId}/cancel", h.CancelBooking)
		pr.Post("/api/bookings/{bookingId}/rating", h.RateBooking)

		pr.Get("/api/customers/{customerId}/bookings", h.ListCustomerBookings)
		pr.Get("/api/customers/{customerId}/summary", h.CustomerSummary)
		pr.Get("/api/drivers/{driverId}/bookings", h.ListDriverBookings)
		pr.Get("/api/drivers/{driverId}/summary", h.DriverSummary)

		pr.Post("/api/drivers/{driverId}/location", h.UpdateDriverLocation)
		pr.Post("/api/drivers/{driverId}/status", h.SetDriverOnline)
		pr.Post("/api/drivers/{driverId}/documents/{kind}", h.UploadDriverDocument)
		pr.Post("/api/admin/drivers/{driverId}/documents/{kind}/review", h.ReviewDriverDocument)

		pr.Post("/api/drivers/{driverId}/slots/generate", h.GenerateSlots)
		pr.Get("/api/drivers/{driverId}/slots", h.ListSlots)
		pr.Post("/api/slots/{slotId}/select", h.SetSlotSelected)
		pr.Post("/api/slots/{slotId}/book", h.BookSlot)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(authMiddleware(h.Auth))
		pr.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			h.Plane.ServeWS(w, r, h.Auth)
		})
	})
}

func metricsMiddleware(reg interface {
	ObserveRequest(route string, status int, start time.Time)
}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: 200}
			next.ServeHTTP(rec, r)
			reg.ObserveRequest(routePattern(r), rec.status, start)
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
