package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the producer endpoints. requestsPerMinute <= 0 disables
// per-IP limiting. trustProxy takes the client address from forwarding
// headers and must only be set behind a proxy that overwrites them. The
// returned stop func releases the limiter.
func NewRouter(h *Handler, requestsPerMinute int, trustProxy bool) (http.Handler, func()) {
	r := chi.NewRouter()
	if trustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.Health)

	stop := func() {}
	r.Route("/v1", func(r chi.Router) {
		if requestsPerMinute > 0 {
			limiters := newClientLimiters(requestsPerMinute)
			stop = limiters.Stop
			r.Use(limiters.middleware)
		}

		r.Post("/emails", h.SendEmails)
		r.Post("/emails/csv", h.SendEmailsCSV)
		r.Post("/broadcasts", h.Broadcast)
		r.Post("/broadcasts/csv", h.BroadcastCSV)
	})

	return r, stop
}
