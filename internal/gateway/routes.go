package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/af-corp/llmcache/internal/httputil"
)

// Routes returns the service router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httputil.RequestID)

	r.Get("/", h.Health)
	r.Get("/ready", h.Ready)

	r.Route("/llm", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/completion", h.Completion)
		r.Post("/vision", h.Vision)
	})
	return r
}
