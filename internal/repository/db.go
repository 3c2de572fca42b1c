package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	// timeLayout is fixed width so TEXT ordering is time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so the same query code runs inside
// and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
//
// Transactions are opened with BEGIN IMMEDIATE, so a transaction holds the
// database write lock from its first statement until commit or rollback.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func dsn(path string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(10000)",
		"_txlock=immediate",
	}
	if path != ":memory:" {
		// WAL for concurrent readers next to the single writer.
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

// WithTx runs fn inside a write transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bank_accounts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			balance TEXT NOT NULL DEFAULT '0'
		)`,

		`CREATE TABLE IF NOT EXISTS acquirers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			bank_account_id TEXT NOT NULL,
			FOREIGN KEY (bank_account_id) REFERENCES bank_accounts(id)
		)`,

		`CREATE TABLE IF NOT EXISTS statement_imports (
			id TEXT PRIMARY KEY,
			acquirer_id TEXT NOT NULL,
			template_id TEXT NOT NULL,
			template_version TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			file_hash TEXT NOT NULL,
			transaction_count INTEGER NOT NULL,
			imported_at TEXT NOT NULL,
			UNIQUE (acquirer_id, file_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_statement_imports_acquirer ON statement_imports(acquirer_id)`,

		`CREATE TABLE IF NOT EXISTS settlement_transactions (
			id TEXT PRIMARY KEY,
			import_id TEXT NOT NULL,
			acquirer_id TEXT NOT NULL,
			nsu TEXT NOT NULL,
			gross_amount TEXT NOT NULL,
			installment_number INTEGER NOT NULL,
			installment_total INTEGER NOT NULL,
			brand TEXT NOT NULL,
			expected_date TEXT NOT NULL,
			line INTEGER NOT NULL,
			FOREIGN KEY (import_id) REFERENCES statement_imports(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_transactions_import ON settlement_transactions(import_id)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_transactions_window ON settlement_transactions(acquirer_id, expected_date)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_transactions_nsu ON settlement_transactions(nsu)`,

		`CREATE TABLE IF NOT EXISTS ledger_installments (
			sale_id TEXT NOT NULL,
			installment_number INTEGER NOT NULL,
			installment_total INTEGER NOT NULL,
			expected_amount TEXT NOT NULL,
			expected_date TEXT NOT NULL,
			nsu TEXT,
			acquirer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			received_at TEXT,
			processed_by TEXT,
			PRIMARY KEY (sale_id, installment_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_installments_window ON ledger_installments(acquirer_id, expected_date)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_installments_nsu ON ledger_installments(nsu)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_installments_processed_by ON ledger_installments(processed_by)`,

		`CREATE TABLE IF NOT EXISTS validation_records (
			id TEXT PRIMARY KEY,
			acquirer_id TEXT NOT NULL,
			bank_account_id TEXT NOT NULL,
			window_from TEXT NOT NULL,
			window_to TEXT NOT NULL,
			total_settlement TEXT NOT NULL,
			total_ledger TEXT NOT NULL,
			divergence_abs TEXT NOT NULL,
			divergence_pct TEXT NOT NULL,
			tier TEXT NOT NULL,
			matched_count INTEGER NOT NULL,
			unmatched_nsu_count INTEGER NOT NULL,
			awaiting_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			alerts TEXT NOT NULL,
			created_at TEXT NOT NULL,
			confirmed INTEGER NOT NULL DEFAULT 0,
			justification TEXT NOT NULL DEFAULT '',
			decided_at TEXT,
			rejection_reason TEXT NOT NULL DEFAULT '',
			processed_at TEXT,
			processed_amount TEXT NOT NULL DEFAULT '0',
			reversed_at TEXT,
			reversal_reason TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_validation_records_acquirer ON validation_records(acquirer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_validation_records_status ON validation_records(status)`,

		`CREATE TABLE IF NOT EXISTS validation_matches (
			validation_id TEXT NOT NULL,
			settlement_id TEXT NOT NULL,
			nsu TEXT NOT NULL,
			sale_id TEXT NOT NULL,
			installment_number INTEGER NOT NULL,
			settlement_amount TEXT NOT NULL,
			expected_amount TEXT NOT NULL,
			PRIMARY KEY (validation_id, sale_id, installment_number),
			FOREIGN KEY (validation_id) REFERENCES validation_records(id)
		)`,

		`CREATE TABLE IF NOT EXISTS bank_movements (
			id TEXT PRIMARY KEY,
			bank_account_id TEXT NOT NULL,
			validation_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			amount TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (bank_account_id) REFERENCES bank_accounts(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bank_movements_validation ON bank_movements(validation_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}

// --- helpers ---

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written before the fixed-width layout.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pageBounds(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
