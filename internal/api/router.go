// Package api exposes the monitor to the dashboard over HTTP and websockets.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.NotFound(notFound)

	r.Get("/healthz", h.Health)
	if h.hub != nil {
		r.Get("/ws", h.hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", h.GetView)
		r.Post("/alert/dismiss", h.DismissAlert)
		r.Get("/helmets", h.ListHelmets)
		r.Route("/helmets/{id}", func(r chi.Router) {
			r.Post("/reset", h.ResetEmergency)
			r.Post("/sync", h.SyncHistory)
			r.Get("/history", h.GetHistory)
			r.Get("/summary", h.GetSummary)
		})
	})
	return r
}

// notFound answers unknown routes with the JSON error body used everywhere else.
func notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}
