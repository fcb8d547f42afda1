package accounts

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}/balance", h.Balance)
	r.Post("/{id}/deactivate", h.Deactivate)
}
