package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterConfig carries the access settings for NewRouter.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	DefaultUser string
}

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events behind the same auth and
// user resolution.
func NewRouter(h *Handler, cfg RouterConfig, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))
	r.Use(UserMiddleware(cfg.DefaultUser))

	// Planning.
	r.Post("/ai/plan", h.Plan)
	r.Post("/ai/apply", h.Apply)

	// Collection.
	r.Get("/entities", h.ListEntities)
	r.Put("/entities", h.ReplaceEntities)
	r.Get("/free", h.FreeSlot)
	r.Get("/calendar.ics", h.Calendar)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
