package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/ingestion"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/logging"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/processing"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/reconciliation"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
)

// Deps are the services and repositories the HTTP layer serves.
type Deps struct {
	Ingestion    *ingestion.Service
	Recon        *reconciliation.Service
	Processing   *processing.Service
	Settlements  *repository.SettlementRepo
	Installments *repository.InstallmentRepo
	Validations  *repository.ValidationRepo
	Accounts     *repository.AccountRepo
	Logger       *zap.Logger
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(d Deps) http.Handler {
	h := &Handlers{
		ingestion:    d.Ingestion,
		recon:        d.Recon,
		processing:   d.Processing,
		settlements:  d.Settlements,
		installments: d.Installments,
		validations:  d.Validations,
		accounts:     d.Accounts,
		log:          logging.OrNop(d.Logger).Named("api"),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Ingestion.
		r.Post("/imports", h.IngestStatement)
		r.Get("/imports", h.ListImports)
		r.Get("/imports/{id}/transactions", h.ListImportTransactions)
		r.Get("/templates", h.ListTemplates)

		// Ledger.
		r.Get("/installments", h.ListInstallments)
		r.Put("/installments/{saleID}/{number}/nsu", h.LinkNSU)

		// Validations.
		r.Post("/validations", h.CreateValidation)
		r.Get("/validations", h.ListValidations)
		r.Get("/validations/{id}", h.GetValidation)
		r.Post("/validations/{id}/approve", h.ApproveValidation)
		r.Post("/validations/{id}/reject", h.RejectValidation)
		r.Post("/validations/{id}/process", h.ProcessValidation)
		r.Post("/validations/{id}/revert", h.RevertValidation)
		r.Get("/validations/{id}/export.xlsx", h.ExportValidationXLSX)
		r.Get("/validations/{id}/export.pdf", h.ExportValidationPDF)

		// Bank accounts.
		r.Get("/bank-accounts", h.ListBankAccounts)
	})

	return r
}
