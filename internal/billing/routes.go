package billing

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", h.CreateInvoice)
		r.Get("/{id}", h.GetInvoice)
		r.Post("/{id}/send", h.SendInvoice)
		r.Post("/{id}/payments", h.RecordPayment)
	})
	r.Route("/bills", func(r chi.Router) {
		r.Post("/", h.CreateBill)
		r.Get("/{id}", h.GetBill)
		r.Post("/{id}/approve", h.ApproveBill)
		r.Post("/{id}/pay", h.PayBill)
	})
	r.Route("/expenses", func(r chi.Router) {
		r.Post("/", h.CreateExpense)
		r.Post("/{id}/approve", h.ApproveExpense)
	})
}
