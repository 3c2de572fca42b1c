package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/matching"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "recon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func date(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestInitDB_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.db")
	db, err := InitDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = InitDB(path)
	require.NoError(t, err)
	defer db.Close()
}

func TestSettlementRepo_InsertAndWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewSettlementRepo(newTestDB(t))

	older := &domain.StatementImport{
		ID: "imp-1", AcquirerID: "cielo", TemplateID: "cielo-csv-v1", TemplateVersion: "1",
		FileHash: "h1", TransactionCount: 2, ImportedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	newer := &domain.StatementImport{
		ID: "imp-2", AcquirerID: "cielo", TemplateID: "cielo-csv-v1", TemplateVersion: "1",
		FileHash: "h2", TransactionCount: 1, ImportedAt: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.InsertImport(ctx, newer, []domain.SettlementTransaction{
		{ID: "s3", ImportID: "imp-2", AcquirerID: "cielo", NSU: "100", GrossAmount: decimal.RequireFromString("50.00"),
			InstallmentNumber: 1, InstallmentTotal: 1, Brand: "VISA", ExpectedDate: date("2024-03-10"), Line: 1},
	}))
	require.NoError(t, repo.InsertImport(ctx, older, []domain.SettlementTransaction{
		{ID: "s1", ImportID: "imp-1", AcquirerID: "cielo", NSU: "100", GrossAmount: decimal.RequireFromString("49.90"),
			InstallmentNumber: 1, InstallmentTotal: 1, Brand: "VISA", ExpectedDate: date("2024-03-10"), Line: 1},
		{ID: "s2", ImportID: "imp-1", AcquirerID: "cielo", NSU: "200", GrossAmount: decimal.RequireFromString("10.00"),
			InstallmentNumber: 1, InstallmentTotal: 1, Brand: "MASTER", ExpectedDate: date("2024-04-01"), Line: 2},
	}))

	lines, err := repo.ListForWindow(ctx, "cielo", domain.NewWindow(date("2024-03-01"), date("2024-03-31")))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "s1", lines[0].ID, "oldest import first")
	assert.Equal(t, "s3", lines[1].ID)
	assert.True(t, lines[0].GrossAmount.Equal(decimal.RequireFromString("49.90")))
	assert.Equal(t, date("2024-03-10"), lines[0].ExpectedDate)

	found, err := repo.FindImportByHash(ctx, "cielo", "h1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "imp-1", found.ID)

	missing, err := repo.FindImportByHash(ctx, "cielo", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	imports, total, err := repo.ListImports(ctx, ImportFilter{AcquirerID: "cielo"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "imp-2", imports[0].ID)

	byImport, err := repo.ListByImport(ctx, "imp-1")
	require.NoError(t, err)
	assert.Len(t, byImport, 2)
}

func TestSettlementRepo_WindowOrdersImportsWithinOneSecond(t *testing.T) {
	ctx := context.Background()
	repo := NewSettlementRepo(newTestDB(t))
	at := func(nanos int) time.Time { return time.Date(2024, 3, 5, 9, 0, 5, nanos, time.UTC) }

	// Inserted newest first, with ids sorting against time order.
	imports := []struct {
		id     string
		at     time.Time
		amount string
	}{
		{"imp-a", at(120_000_000), "100.00"},
		{"imp-b", at(100_000_000), "90.00"},
		{"imp-c", at(0), "80.00"},
	}
	for _, imp := range imports {
		require.NoError(t, repo.InsertImport(ctx, &domain.StatementImport{
			ID: imp.id, AcquirerID: "cielo", TemplateID: "t", TemplateVersion: "1",
			FileHash: imp.id, TransactionCount: 1, ImportedAt: imp.at,
		}, []domain.SettlementTransaction{{
			ID: imp.id + "-1", ImportID: imp.id, AcquirerID: "cielo", NSU: "100",
			GrossAmount: decimal.RequireFromString(imp.amount), InstallmentNumber: 1, InstallmentTotal: 1,
			Brand: "VISA", ExpectedDate: date("2024-03-10"), Line: 2,
		}}))
	}

	lines, err := repo.ListForWindow(ctx, "cielo", domain.NewWindow(date("2024-03-01"), date("2024-03-31")))
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"imp-c", "imp-b", "imp-a"},
		[]string{lines[0].ImportID, lines[1].ImportID, lines[2].ImportID})

	res := matching.Match(lines, []domain.LedgerInstallment{{
		SaleID: "S1", InstallmentNumber: 1, InstallmentTotal: 1, ExpectedAmount: decimal.RequireFromString("100.00"),
		ExpectedDate: date("2024-03-10"), NSU: "100", AcquirerID: "cielo", Status: domain.InstallmentAwaitingSettlement,
	}})
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "imp-a-1", res.Pairs[0].SettlementID, "latest import supersedes")

	listed, _, err := repo.ListImports(ctx, ImportFilter{AcquirerID: "cielo"})
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "imp-a", listed[0].ID)
	assert.Equal(t, at(100_000_000), listed[1].ImportedAt)
}

func TestScan_MalformedTimestampsAreErrors(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSettlementRepo(db)

	require.NoError(t, repo.InsertImport(ctx, &domain.StatementImport{
		ID: "imp-1", AcquirerID: "cielo", TemplateID: "t", TemplateVersion: "1",
		FileHash: "h", TransactionCount: 0, ImportedAt: time.Now(),
	}, nil))
	_, err := db.ExecContext(ctx, "UPDATE statement_imports SET imported_at = 'yesterday' WHERE id = 'imp-1'")
	require.NoError(t, err)

	_, err = repo.GetImport(ctx, "imp-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "yesterday")
}

func TestParseTime_AcceptsLegacyLayout(t *testing.T) {
	want := time.Date(2024, 3, 5, 9, 0, 5, 100_000_000, time.UTC)
	got, err := parseTime(want.Format(time.RFC3339Nano))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = parseTime(formatTime(want))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
	assert.Equal(t, "2024-03-05T09:00:05.100000000Z", formatTime(want))
}

func TestSettlementRepo_InsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewSettlementRepo(newTestDB(t))

	imp := &domain.StatementImport{ID: "imp-1", AcquirerID: "cielo", TemplateID: "t", TemplateVersion: "1",
		FileHash: "h", TransactionCount: 2, ImportedAt: time.Now()}
	line := domain.SettlementTransaction{ID: "dup", ImportID: "imp-1", AcquirerID: "cielo", NSU: "1",
		GrossAmount: decimal.NewFromInt(1), InstallmentNumber: 1, InstallmentTotal: 1, ExpectedDate: date("2024-01-01"), Line: 1}

	err := repo.InsertImport(ctx, imp, []domain.SettlementTransaction{line, line})
	require.Error(t, err)

	_, err = repo.GetImport(ctx, "imp-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInstallmentRepo_UpsertKeepsClosedStatus(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewInstallmentRepo(db)

	items := []domain.LedgerInstallment{
		{SaleID: "S1", InstallmentNumber: 1, InstallmentTotal: 2, ExpectedAmount: decimal.NewFromInt(50),
			ExpectedDate: date("2024-03-10"), NSU: "100", AcquirerID: "cielo"},
		{SaleID: "S1", InstallmentNumber: 2, InstallmentTotal: 2, ExpectedAmount: decimal.NewFromInt(50),
			ExpectedDate: date("2024-04-10"), NSU: "100", AcquirerID: "cielo"},
		{SaleID: "S2", InstallmentNumber: 1, InstallmentTotal: 1, ExpectedAmount: decimal.NewFromInt(80),
			ExpectedDate: date("2024-03-12"), AcquirerID: "cielo"},
	}
	n, err := repo.BulkUpsert(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	s2, err := repo.Get(ctx, nil, "S2", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentAwaitingNSU, s2.Status)

	ok, err := repo.MarkReceived(ctx, db, "S1", 1, "val-1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkReceived(ctx, db, "S1", 1, "val-2", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "already received")

	_, err = repo.BulkUpsert(ctx, items[:1])
	require.NoError(t, err)
	s1, err := repo.Get(ctx, nil, "S1", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentReceived, s1.Status)
	assert.Equal(t, "val-1", s1.ProcessedBy)
	require.NotNil(t, s1.ReceivedAt)

	window, err := repo.ListForWindow(ctx, "cielo", domain.NewWindow(date("2024-03-01"), date("2024-03-31")))
	require.NoError(t, err)
	assert.Len(t, window, 2)

	reverted, err := repo.RevertReceived(ctx, db, "val-1")
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)
	s1, err = repo.Get(ctx, nil, "S1", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.InstallmentAwaitingSettlement, s1.Status)
	assert.Empty(t, s1.ProcessedBy)
	assert.Nil(t, s1.ReceivedAt)
}

func TestInstallmentRepo_LinkNSUAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewInstallmentRepo(newTestDB(t))

	_, err := repo.BulkUpsert(ctx, []domain.LedgerInstallment{
		{SaleID: "S1", InstallmentNumber: 1, InstallmentTotal: 1, ExpectedAmount: decimal.NewFromInt(10),
			ExpectedDate: date("2024-03-10"), AcquirerID: "cielo"},
	})
	require.NoError(t, err)

	inst, err := repo.LinkNSU(ctx, "S1", 1, " 999 ")
	require.NoError(t, err)
	assert.Equal(t, "999", inst.NSU)
	assert.Equal(t, domain.InstallmentAwaitingSettlement, inst.Status)

	_, err = repo.LinkNSU(ctx, "S1", 7, "999")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.LinkNSU(ctx, "S1", 1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	items, total, err := repo.List(ctx, InstallmentFilter{NSU: "999"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "S1", items[0].SaleID)
}

func TestValidationRepo_Transitions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewValidationRepo(db)

	amount := decimal.RequireFromString("12.50")
	rec := &domain.ValidationRecord{
		ID: "val-1", AcquirerID: "cielo", BankAccountID: "acc-1",
		Window:          domain.NewWindow(date("2024-03-01"), date("2024-03-31")),
		TotalSettlement: decimal.RequireFromString("112.50"), TotalLedger: decimal.NewFromInt(100),
		DivergenceAbs: amount, DivergencePct: decimal.RequireFromString("12.5"),
		Tier: domain.TierLow, MatchedCount: 1, UnmatchedNSUs: 1, Status: domain.ValidationPendingReview,
		Alerts:    []domain.Alert{{Kind: domain.AlertOrphanSettlement, NSU: "9", Amount: &amount, Message: "orphan"}},
		CreatedAt: time.Now(),
	}
	pairs := []domain.MatchedPair{{SettlementID: "s1", NSU: "100", SaleID: "S1", InstallmentNumber: 1,
		SettlementAmount: decimal.NewFromInt(100), ExpectedAmount: decimal.NewFromInt(100)}}
	require.NoError(t, repo.Insert(ctx, rec, pairs))

	got, err := repo.Get(ctx, nil, "val-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierLow, got.Tier)
	assert.True(t, got.DivergenceAbs.Equal(amount))
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, domain.AlertOrphanSettlement, got.Alerts[0].Kind)
	assert.Equal(t, rec.Window, got.Window)

	matches, err := repo.ListMatches(ctx, nil, "val-1")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "val-1", matches[0].ValidationID)

	ok, err := repo.MarkReversed(ctx, db, "val-1", "oops", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "not processed yet")

	d := domain.Decision{Justification: "bank statement checked"}
	ok, err = repo.MarkProcessed(ctx, db, "val-1", domain.ValidationPendingReview, d, decimal.NewFromInt(100), time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkProcessed(ctx, db, "val-1", domain.ValidationPendingReview, d, decimal.NewFromInt(100), time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "stale status")

	ok, err = repo.MarkDivergent(ctx, db, "val-1", "late", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.MarkReversed(ctx, db, "val-1", "wrong window", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = repo.Get(ctx, nil, "val-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationProcessed, got.Status)
	assert.True(t, got.Reversed())
	assert.Equal(t, "wrong window", got.ReversalReason)
	assert.Equal(t, "bank statement checked", got.Justification)

	list, total, err := repo.List(ctx, ValidationFilter{Tier: "low"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, list, 1)

	_, err = repo.Get(ctx, nil, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountRepo_Apply(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewAccountRepo(db)

	require.NoError(t, repo.UpsertBankAccount(ctx, domain.BankAccount{ID: "acc-1", Name: "Main", Balance: decimal.NewFromInt(10)}))
	require.NoError(t, repo.UpsertAcquirer(ctx, domain.Acquirer{ID: "cielo", Name: "Cielo", BankAccountID: "acc-1"}))

	acq, err := repo.GetAcquirer(ctx, "cielo")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", acq.BankAccountID)

	balance, err := repo.Apply(ctx, db, domain.BankMovement{ID: "m1", BankAccountID: "acc-1", ValidationID: "v",
		Kind: domain.MovementCredit, Amount: decimal.RequireFromString("100.10"), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "110.1", balance.String())

	balance, err = repo.Apply(ctx, db, domain.BankMovement{ID: "m2", BankAccountID: "acc-1", ValidationID: "v",
		Kind: domain.MovementDebit, Amount: decimal.RequireFromString("100.10"), CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(10)))

	moves, err := repo.ListMovements(ctx, "acc-1", "v")
	require.NoError(t, err)
	assert.Len(t, moves, 2)

	_, err = repo.GetAcquirer(ctx, "rede")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
