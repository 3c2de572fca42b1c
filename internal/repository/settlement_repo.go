package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// SettlementRepo stores statement imports and their settlement lines. Both are
// append-only.
type SettlementRepo struct {
	db *sql.DB
}

func NewSettlementRepo(db *sql.DB) *SettlementRepo {
	return &SettlementRepo{db: db}
}

// FindImportByHash returns the import of the acquirer with the given file hash,
// or nil when the file was never ingested.
func (r *SettlementRepo) FindImportByHash(ctx context.Context, acquirerID, hash string) (*domain.StatementImport, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+importColumns+" FROM statement_imports WHERE acquirer_id = ? AND file_hash = ?",
		acquirerID, hash,
	)
	imp, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return imp, err
}

// InsertImport persists the import and all of its lines in one transaction.
func (r *SettlementRepo) InsertImport(ctx context.Context, imp *domain.StatementImport, lines []domain.SettlementTransaction) error {
	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO statement_imports
			(id, acquirer_id, template_id, template_version, file_name, file_hash, transaction_count, imported_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			imp.ID, imp.AcquirerID, imp.TemplateID, imp.TemplateVersion, imp.FileName,
			imp.FileHash, imp.TransactionCount, formatTime(imp.ImportedAt),
		)
		if err != nil {
			return fmt.Errorf("insert import: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO settlement_transactions
			(id, import_id, acquirer_id, nsu, gross_amount, installment_number,
			 installment_total, brand, expected_date, line)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
		)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for i := range lines {
			l := &lines[i]
			if _, err := stmt.ExecContext(ctx,
				l.ID, l.ImportID, l.AcquirerID, l.NSU, l.GrossAmount.String(),
				l.InstallmentNumber, l.InstallmentTotal, l.Brand, formatDate(l.ExpectedDate), l.Line,
			); err != nil {
				return fmt.Errorf("insert line %d: %w", l.Line, err)
			}
		}
		return nil
	})
}

func (r *SettlementRepo) GetImport(ctx context.Context, id string) (*domain.StatementImport, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+importColumns+" FROM statement_imports WHERE id = ?", id)
	imp, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "statement import not found", id)
	}
	return imp, err
}

type ImportFilter struct {
	AcquirerID string
	Page       int
	Limit      int
}

func (r *SettlementRepo) ListImports(ctx context.Context, f ImportFilter) ([]domain.StatementImport, int, error) {
	where, args := "", []any{}
	if f.AcquirerID != "" {
		where = " WHERE acquirer_id = ?"
		args = append(args, f.AcquirerID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM statement_imports"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	q := "SELECT " + importColumns + " FROM statement_imports" + where + " ORDER BY imported_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var imports []domain.StatementImport
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		imports = append(imports, *imp)
	}
	return imports, total, rows.Err()
}

// ListByImport returns the lines of one import in file order.
func (r *SettlementRepo) ListByImport(ctx context.Context, importID string) ([]domain.SettlementTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+settlementColumns+" FROM settlement_transactions st WHERE st.import_id = ? ORDER BY st.line",
		importID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSettlements(rows)
}

// ListForWindow returns the acquirer's settlement lines expected within the
// window, ordered by import (oldest first) and then by file line.
func (r *SettlementRepo) ListForWindow(ctx context.Context, acquirerID string, w domain.Window) ([]domain.SettlementTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+settlementColumns+`
		FROM settlement_transactions st
		JOIN statement_imports si ON si.id = st.import_id
		WHERE st.acquirer_id = ?
		  AND st.expected_date >= ?
		  AND st.expected_date <= ?
		ORDER BY si.imported_at, si.rowid, st.line`,
		acquirerID, formatDate(w.From), formatDate(w.To),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanSettlements(rows)
}

// --- helpers ---

const importColumns = `id, acquirer_id, template_id, template_version, file_name, file_hash,
	transaction_count, imported_at`

const settlementColumns = `st.id, st.import_id, st.acquirer_id, st.nsu, st.gross_amount,
	st.installment_number, st.installment_total, st.brand, st.expected_date, st.line`

type scanner interface {
	Scan(dest ...any) error
}

func scanImport(row scanner) (*domain.StatementImport, error) {
	var imp domain.StatementImport
	var importedAt string
	err := row.Scan(
		&imp.ID, &imp.AcquirerID, &imp.TemplateID, &imp.TemplateVersion, &imp.FileName,
		&imp.FileHash, &imp.TransactionCount, &importedAt,
	)
	if err != nil {
		return nil, err
	}
	if imp.ImportedAt, err = parseTime(importedAt); err != nil {
		return nil, err
	}
	return &imp, nil
}

func scanSettlements(rows *sql.Rows) ([]domain.SettlementTransaction, error) {
	var lines []domain.SettlementTransaction
	for rows.Next() {
		var l domain.SettlementTransaction
		var expected string
		err := rows.Scan(
			&l.ID, &l.ImportID, &l.AcquirerID, &l.NSU, &l.GrossAmount,
			&l.InstallmentNumber, &l.InstallmentTotal, &l.Brand, &expected, &l.Line,
		)
		if err != nil {
			return nil, err
		}
		if l.ExpectedDate, err = parseDate(expected); err != nil {
			return nil, fmt.Errorf("settlement %s: %w", l.ID, err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
