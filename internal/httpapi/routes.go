package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/live-poll/internal/ws"
)

// SetupRoutes builds the router. wsOrigins extends the same-host origin check
// on /ws.
func SetupRoutes(s *Server, staticDir string, wsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(s.poll, s.log.Named("ws"), wsOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.GetState)
		r.Post("/vote", s.Vote)
		r.Get("/archive", s.ListArchive)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", s.Login)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/topic", s.SelectTopic)
				r.Post("/start", s.Start)
				r.Post("/stop", s.Stop)
				r.Post("/reset", s.Reset)
				r.Post("/visibility", s.SetVisibility)
			})
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusNotFound, "not_found", "route not found")
		})
	})

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}
	return r
}
