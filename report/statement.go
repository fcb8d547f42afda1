package report

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gavelworks/gavelworks/internal/billing"
	"github.com/gavelworks/gavelworks/internal/platform/httpx"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

// InvoiceSource provides the invoice data rendered into statements.
type InvoiceSource interface {
	GetInvoice(ctx context.Context, firmID, id int64) (billing.Invoice, error)
}

// Handler serves rendered PDF statements.
type Handler struct {
	client   *Client
	invoices InvoiceSource
	format   func(int64) string
	logger   *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, invoices InvoiceSource, format func(int64) string, logger *slog.Logger) *Handler {
	return &Handler{client: client, invoices: invoices, format: format, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Get("/invoices/{id}/pdf", h.invoicePDF)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) invoicePDF(w http.ResponseWriter, r *http.Request) {
	actor, ok := internalShared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	invoice, err := h.invoices.GetInvoice(r.Context(), actor.FirmID, id)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "invoice not found")
			return
		}
		h.logger.Error("load invoice for statement", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", "could not load invoice")
		return
	}

	pdf, err := h.client.RenderHTML(r.Context(), h.statementHTML(invoice))
	if err != nil {
		h.logger.Error("render invoice statement", slog.Int64("invoice_id", invoice.ID), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=invoice-%s.pdf", html.EscapeString(invoice.Number)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) statementHTML(invoice billing.Invoice) string {
	outstanding := invoice.Total - invoice.AmountPaid
	return "" +
		"<html><head><title>Invoice " + html.EscapeString(invoice.Number) + "</title></head><body>" +
		"<h1>Invoice " + html.EscapeString(invoice.Number) + "</h1>" +
		"<p>Issued " + invoice.IssuedAt.Format("January 2, 2006") + "</p>" +
		"<table>" +
		"<tr><td>Total</td><td>" + h.format(invoice.Total) + "</td></tr>" +
		"<tr><td>Paid</td><td>" + h.format(invoice.AmountPaid) + "</td></tr>" +
		"<tr><td>Outstanding</td><td>" + h.format(outstanding) + "</td></tr>" +
		"<tr><td>Status</td><td>" + string(invoice.Status) + "</td></tr>" +
		"</table>" +
		"<p>Generated at " + time.Now().UTC().Format(time.RFC1123) + "</p>" +
		"</body></html>"
}
