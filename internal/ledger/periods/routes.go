package periods

import "github.com/go-chi/chi/v5"

// MountRoutes attaches read endpoints; state transitions mount separately so
// the router can wrap them with the admin guard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/years/{year}", h.ListYear)
	r.Get("/can-post", h.CanPost)
}

// MountAdminRoutes attaches calendar mutations.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/years", h.CreateYear)
	r.Post("/{id}/close", h.Close)
	r.Post("/{id}/reopen", h.Reopen)
	r.Post("/{id}/lock", h.Lock)
}
