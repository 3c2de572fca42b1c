package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/ingestion"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/processing"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/reconciliation"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/scoring"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/seed"
)

const statement = "NSU;Valor Bruto;Parcela;Bandeira;Data Prevista\n" +
	"1001;100,00;1/1;VISA;10/03/2024\n" +
	"1002;100,00;1/1;MASTER;11/03/2024\n"

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accounts := repository.NewAccountRepo(db)
	installments := repository.NewInstallmentRepo(db)
	settlements := repository.NewSettlementRepo(db)
	validations := repository.NewValidationRepo(db)

	_, err = seed.Apply(context.Background(), accounts, installments, &seed.Dataset{
		BankAccounts: []domain.BankAccount{{ID: "acc-1", Name: "Main", Balance: decimal.Zero}},
		Acquirers:    []domain.Acquirer{{ID: "cielo", Name: "Cielo", BankAccountID: "acc-1"}},
		Installments: []seed.Installment{
			{SaleID: "S-1", InstallmentNumber: 1, InstallmentTotal: 1, ExpectedAmount: decimal.NewFromInt(100),
				ExpectedDate: "2024-03-10", NSU: "1001", AcquirerID: "cielo"},
			{SaleID: "S-2", InstallmentNumber: 1, InstallmentTotal: 1, ExpectedAmount: decimal.NewFromInt(100),
				ExpectedDate: "2024-03-11", AcquirerID: "cielo"},
		},
	})
	require.NoError(t, err)

	reg := ingestion.NewRegistry()
	require.NoError(t, reg.Register(ingestion.Template{
		ID: "cielo-csv-v1", AcquirerID: "cielo", Format: ingestion.FormatCSV, Delimiter: ";",
		DecimalComma: true, DateLayout: "02/01/2006",
		Columns: ingestion.Columns{NSU: "NSU", Amount: "Valor Bruto", Installment: "Parcela",
			Brand: "Bandeira", Date: "Data Prevista"},
	}))

	scorer, err := scoring.NewScorer(scoring.DefaultThresholds())
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Deps{
		Ingestion:    ingestion.NewService(settlements, accounts, reg, nil),
		Recon:        reconciliation.NewService(accounts, settlements, installments, validations, scorer, nil),
		Processing:   processing.NewService(db, validations, installments, accounts, nil),
		Settlements:  settlements,
		Installments: installments,
		Validations:  validations,
		Accounts:     accounts,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, srv *httptest.Server, template, body string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("template", template))
	fw, err := mw.CreateFormFile("file", "march.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/imports", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type errorBody struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind"`
	IDs   []string `json:"ids"`
}

func TestIngestStatement(t *testing.T) {
	srv := newServer(t)

	resp := upload(t, srv, "cielo-csv-v1", statement)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var res ingestion.IngestResult
	decode(t, resp, &res)
	assert.Equal(t, 2, res.Import.TransactionCount)

	resp = upload(t, srv, "cielo-csv-v1", statement)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &res)
	assert.True(t, res.Duplicate)

	resp, err := http.Get(srv.URL + "/api/v1/imports/" + res.Import.ID + "/transactions")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var lines struct {
		Transactions []domain.SettlementTransaction `json:"transactions"`
	}
	decode(t, resp, &lines)
	assert.Len(t, lines.Transactions, 2)
}

func TestIngestStatement_TemplateMismatch(t *testing.T) {
	srv := newServer(t)

	resp := upload(t, srv, "cielo-csv-v1", "NSU;Valor Bruto\n1001;100,00\n")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body errorBody
	decode(t, resp, &body)
	assert.Equal(t, string(domain.KindTemplateMismatch), body.Kind)
	assert.NotEmpty(t, body.IDs)

	resp = upload(t, srv, "nope", statement)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestValidationLifecycle(t *testing.T) {
	srv := newServer(t)
	upload(t, srv, "cielo-csv-v1", statement).Body.Close()

	resp := postJSON(t, srv, "/api/v1/validations", map[string]string{
		"acquirer_id": "cielo", "from": "2024-03-01", "to": "2024-03-31",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out reconciliation.Outcome
	decode(t, resp, &out)
	id := out.Record.ID
	// NSU 1002 has no ledger counterpart yet.
	assert.Equal(t, 1, out.Record.UnmatchedNSUs)
	assert.NotEqual(t, domain.TierHigh, out.Record.Tier)

	resp = postJSON(t, srv, "/api/v1/validations/"+id+"/process", map[string]any{})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/v1/validations/"+id+"/process", domain.Decision{
		Confirmed: true, Justification: "orphan NSU reviewed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var processed domain.ProcessingResult
	decode(t, resp, &processed)
	assert.Equal(t, 1, processed.ProcessedCount)
	assert.True(t, processed.TotalAmount.Equal(decimal.NewFromInt(100)))

	resp = postJSON(t, srv, "/api/v1/validations/"+id+"/process", domain.Decision{Confirmed: true, Justification: "x"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var body errorBody
	decode(t, resp, &body)
	assert.Equal(t, string(domain.KindAlreadyProcessed), body.Kind)
	assert.Equal(t, []string{id}, body.IDs)

	resp = postJSON(t, srv, "/api/v1/validations/"+id+"/revert", map[string]string{})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/v1/validations/"+id+"/revert", map[string]string{"reason": "chargeback"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var reversed domain.ReversalResult
	decode(t, resp, &reversed)
	assert.Equal(t, 1, reversed.RevertedCount)

	resp, err := http.Get(srv.URL + "/api/v1/bank-accounts")
	require.NoError(t, err)
	var accounts struct {
		BankAccounts []domain.BankAccount `json:"bank_accounts"`
	}
	decode(t, resp, &accounts)
	require.Len(t, accounts.BankAccounts, 1)
	assert.True(t, accounts.BankAccounts[0].Balance.IsZero())
}

func TestCreateValidation_BadInput(t *testing.T) {
	srv := newServer(t)

	resp := postJSON(t, srv, "/api/v1/validations", map[string]string{"acquirer_id": "cielo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/v1/validations", map[string]string{
		"acquirer_id": "cielo", "from": "2024-03-31", "to": "2024-03-01",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/v1/validations", map[string]string{
		"acquirer_id": "rede", "from": "2024-03-01", "to": "2024-03-31",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestLinkNSUAndListInstallments(t *testing.T) {
	srv := newServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/installments/S-2/1/nsu", strings.NewReader(`{"nsu":"1002"}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var inst domain.LedgerInstallment
	decode(t, resp, &inst)
	assert.Equal(t, "1002", inst.NSU)
	assert.Equal(t, domain.InstallmentAwaitingSettlement, inst.Status)

	resp, err = http.Get(srv.URL + "/api/v1/installments?status=awaiting_nsu")
	require.NoError(t, err)
	var page struct {
		Installments []domain.LedgerInstallment `json:"installments"`
		Total        int                        `json:"total"`
	}
	decode(t, resp, &page)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Installments)
}

func TestExportAndMetrics(t *testing.T) {
	srv := newServer(t)
	upload(t, srv, "cielo-csv-v1", statement).Body.Close()
	resp := postJSON(t, srv, "/api/v1/validations", map[string]string{
		"acquirer_id": "cielo", "from": "2024-03-01", "to": "2024-03-31",
	})
	var out reconciliation.Outcome
	decode(t, resp, &out)

	resp, err := http.Get(srv.URL + "/api/v1/validations/" + out.Record.ID + "/export.pdf")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))

	resp, err = http.Get(srv.URL + "/api/v1/validations/missing/export.xlsx")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(domain.KindStaleValidation))
	assert.Equal(t, http.StatusPreconditionFailed, statusFor(domain.KindJustificationRequired))
	assert.Equal(t, http.StatusInternalServerError, statusFor("other"))
}
