package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gavelworks/gavelworks/internal/billing"
	"github.com/gavelworks/gavelworks/internal/ledger/accounts"
	"github.com/gavelworks/gavelworks/internal/ledger/closing"
	"github.com/gavelworks/gavelworks/internal/ledger/journals"
	"github.com/gavelworks/gavelworks/internal/ledger/mappings"
	"github.com/gavelworks/gavelworks/internal/ledger/periods"
	"github.com/gavelworks/gavelworks/internal/observability"
	"github.com/gavelworks/gavelworks/internal/recurring"
	"github.com/gavelworks/gavelworks/internal/retainers"
	"github.com/gavelworks/gavelworks/jobs"
	"github.com/gavelworks/gavelworks/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AccountsHandler  *accounts.Handler
	PeriodsHandler   *periods.Handler
	JournalsHandler  *journals.Handler
	MappingsHandler  *mappings.Handler
	ClosingHandler   *closing.Handler
	BillingHandler   *billing.Handler
	RetainersHandler *retainers.Handler
	RecurringHandler *recurring.Handler
	JobHandler       *jobs.Handler
	ReportHandler    *report.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/accounts", params.AccountsHandler.MountRoutes)
	r.Route("/periods", params.PeriodsHandler.MountRoutes)
	r.Route("/journal-entries", params.JournalsHandler.MountRoutes)
	r.Route("/billing", params.BillingHandler.MountRoutes)
	r.Route("/retainers", params.RetainersHandler.MountRoutes)
	r.Route("/recurring-transactions", params.RecurringHandler.MountRoutes)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.ReportHandler != nil {
		r.Route("/reports", params.ReportHandler.MountRoutes)
	}

	// Period lifecycle and the year-end close are destructive and sit
	// behind the admin token.
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminGuard(params.Logger, params.Config.AdminTokenHash))
		r.Route("/periods", params.PeriodsHandler.MountAdminRoutes)
		r.Route("/mappings", params.MappingsHandler.MountRoutes)
		params.ClosingHandler.MountAdminRoutes(r)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
