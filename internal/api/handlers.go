package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/ingestion"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/observability/metrics"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/processing"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/reconciliation"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/report"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	ingestion    *ingestion.Service
	recon        *reconciliation.Service
	processing   *processing.Service
	settlements  *repository.SettlementRepo
	installments *repository.InstallmentRepo
	validations  *repository.ValidationRepo
	accounts     *repository.AccountRepo
	log          *zap.Logger
}

// --- helpers ---

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("encode response", zap.Error(err))
	}
}

// writeError renders domain errors with their kind and affected ids; anything
// else is an internal error.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		h.writeJSON(w, statusFor(de.Kind), map[string]any{
			"error": de.Message,
			"kind":  de.Kind,
			"ids":   nonNil(de.IDs),
		})
		return
	}
	h.log.Error("request failed", zap.Error(err))
	h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "kind": "internal"})
}

func (h *Handlers) badRequest(w http.ResponseWriter, msg string) {
	h.writeError(w, domain.NewError(domain.KindInvalidInput, msg))
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindTemplateMismatch:
		return http.StatusUnprocessableEntity
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConfirmationRequired, domain.KindJustificationRequired, domain.KindReasonRequired:
		return http.StatusPreconditionFailed
	case domain.KindAlreadyProcessed, domain.KindAlreadyReversed, domain.KindNotProcessed,
		domain.KindRecordClosed, domain.KindStaleValidation:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// --- Imports ---

func (h *Handlers) IngestStatement(w http.ResponseWriter, r *http.Request) {
	// Accept multipart form.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.badRequest(w, "invalid multipart form: "+err.Error())
		return
	}

	templateID := r.FormValue("template")
	if templateID == "" {
		h.badRequest(w, "template is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.badRequest(w, "file field is required: "+err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.ingestion.Ingest(r.Context(), data, templateID, header.Filename)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	h.writeJSON(w, status, result)
}

func (h *Handlers) ListImports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ImportFilter{
		AcquirerID: q.Get("acquirer_id"),
		Page:       parseIntDefault(q.Get("page"), 1),
		Limit:      parseIntDefault(q.Get("limit"), 50),
	}

	imports, total, err := h.settlements.ListImports(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"imports": nonNilSlice(imports),
		"total":   total,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}

func (h *Handlers) ListImportTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	imp, err := h.settlements.GetImport(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	lines, err := h.settlements.ListByImport(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"import":       imp,
		"transactions": nonNilSlice(lines),
	})
}

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"templates": h.ingestion.Templates().List()})
}

// --- Installments ---

func (h *Handlers) ListInstallments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		h.badRequest(w, "from: "+err.Error())
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		h.badRequest(w, "to: "+err.Error())
		return
	}
	filter := repository.InstallmentFilter{
		AcquirerID: q.Get("acquirer_id"),
		Status:     q.Get("status"),
		NSU:        q.Get("nsu"),
		SaleID:     q.Get("sale_id"),
		From:       from,
		To:         to,
		Page:       parseIntDefault(q.Get("page"), 1),
		Limit:      parseIntDefault(q.Get("limit"), 50),
	}

	items, total, err := h.installments.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"installments": nonNilSlice(items),
		"total":        total,
		"page":         filter.Page,
		"limit":        filter.Limit,
	})
}

func (h *Handlers) LinkNSU(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		h.badRequest(w, "installment number must be an integer")
		return
	}
	var body struct {
		NSU string `json:"nsu"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}

	inst, err := h.installments.LinkNSU(r.Context(), chi.URLParam(r, "saleID"), number, body.NSU)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, inst)
}

// --- Validations ---

func (h *Handlers) CreateValidation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AcquirerID string `json:"acquirer_id"`
		From       string `json:"from"`
		To         string `json:"to"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if body.AcquirerID == "" || body.From == "" || body.To == "" {
		h.badRequest(w, "acquirer_id, from and to are required")
		return
	}
	from, err := parseDate(body.From)
	if err != nil {
		h.badRequest(w, "from: "+err.Error())
		return
	}
	to, err := parseDate(body.To)
	if err != nil {
		h.badRequest(w, "to: "+err.Error())
		return
	}

	out, err := h.recon.Validate(r.Context(), body.AcquirerID, domain.NewWindow(*from, *to))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) ListValidations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ValidationFilter{
		AcquirerID: q.Get("acquirer_id"),
		Status:     q.Get("status"),
		Tier:       q.Get("tier"),
		Page:       parseIntDefault(q.Get("page"), 1),
		Limit:      parseIntDefault(q.Get("limit"), 50),
	}

	records, total, err := h.validations.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"validations": nonNilSlice(records),
		"total":       total,
		"page":        filter.Page,
		"limit":       filter.Limit,
	})
}

func (h *Handlers) GetValidation(w http.ResponseWriter, r *http.Request) {
	detail, err := h.recon.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

func (h *Handlers) ApproveValidation(w http.ResponseWriter, r *http.Request) {
	var d domain.Decision
	if err := decodeBody(r, &d); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	rec, err := h.processing.Approve(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) RejectValidation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	rec, err := h.processing.Reject(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) ProcessValidation(w http.ResponseWriter, r *http.Request) {
	var d domain.Decision
	if err := decodeBody(r, &d); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	res, err := h.processing.Process(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) RevertValidation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.badRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	res, err := h.processing.Revert(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// --- Exports ---

func (h *Handlers) ExportValidationXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", report.BuildValidationXLSX)
}

func (h *Handlers) ExportValidationPDF(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "pdf", "application/pdf", report.BuildValidationPDF)
}

func (h *Handlers) export(
	w http.ResponseWriter,
	r *http.Request,
	format, contentType string,
	build func(*domain.ValidationRecord, []domain.MatchedPair) ([]byte, error),
) {
	detail, err := h.recon.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		h.writeError(w, err)
		return
	}
	data, err := build(detail.Record, detail.Matched)
	if err != nil {
		metrics.IncExport(format, metrics.ResultError)
		h.writeError(w, err)
		return
	}
	metrics.IncExport(format, metrics.ResultSuccess)

	name := "validation-" + strings.ReplaceAll(detail.Record.ID, "/", "_") + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Warn("write export", zap.Error(err))
	}
}

// --- Bank accounts ---

func (h *Handlers) ListBankAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListBankAccounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"bank_accounts": nonNilSlice(accounts)})
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
