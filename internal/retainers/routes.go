package retainers

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{clientID}", h.Get)
	r.Post("/{clientID}/close", h.Close)
	r.Post("/deposits", h.Deposit)
	r.Post("/consumptions", h.Consume)
}
