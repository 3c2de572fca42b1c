package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// InstallmentRepo is the ledger view: expected receivables of internal card
// sales, keyed by (sale_id, installment_number).
type InstallmentRepo struct {
	db *sql.DB
}

func NewInstallmentRepo(db *sql.DB) *InstallmentRepo {
	return &InstallmentRepo{db: db}
}

// BulkUpsert inserts or refreshes installments. The lifecycle status of an
// installment that is already received or reversed is never overwritten.
func (r *InstallmentRepo) BulkUpsert(ctx context.Context, items []domain.LedgerInstallment) (int, error) {
	written := 0
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO ledger_installments
			(sale_id, installment_number, installment_total, expected_amount, expected_date,
			 nsu, acquirer_id, status)
			VALUES (?,?,?,?,?,?,?,?)
			ON CONFLICT (sale_id, installment_number) DO UPDATE SET
				installment_total = excluded.installment_total,
				expected_amount   = excluded.expected_amount,
				expected_date     = excluded.expected_date,
				nsu               = excluded.nsu,
				acquirer_id       = excluded.acquirer_id,
				status = CASE
					WHEN ledger_installments.status IN ('received', 'reversed') THEN ledger_installments.status
					ELSE excluded.status
				END`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for i := range items {
			it := &items[i]
			if it.SaleID == "" || it.InstallmentNumber <= 0 {
				return domain.Errorf(domain.KindInvalidInput, "installment %d: sale id and number are required", i)
			}
			status := it.Status
			if status == "" {
				status = initialStatus(it.NSU)
			}
			if !status.IsValid() {
				return domain.Errorf(domain.KindInvalidInput, "installment %s: unknown status %q", it.ID(), status)
			}
			if _, err := stmt.ExecContext(ctx,
				it.SaleID, it.InstallmentNumber, it.InstallmentTotal, it.ExpectedAmount.String(),
				formatDate(it.ExpectedDate), nullableString(it.NSU), it.AcquirerID, string(status),
			); err != nil {
				return fmt.Errorf("upsert %s: %w", it.ID(), err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func (r *InstallmentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_installments").Scan(&count)
	return count, err
}

// Get loads one installment through q, which may be a transaction.
func (r *InstallmentRepo) Get(ctx context.Context, q DBTX, saleID string, number int) (*domain.LedgerInstallment, error) {
	if q == nil {
		q = r.db
	}
	row := q.QueryRowContext(ctx,
		"SELECT "+installmentColumns+" FROM ledger_installments WHERE sale_id = ? AND installment_number = ?",
		saleID, number,
	)
	inst, err := scanInstallment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "installment not found", domain.InstallmentID(saleID, number))
	}
	return inst, err
}

type InstallmentFilter struct {
	AcquirerID string
	Status     string
	NSU        string
	SaleID     string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

func (r *InstallmentRepo) List(ctx context.Context, f InstallmentFilter) ([]domain.LedgerInstallment, int, error) {
	where, args := buildInstallmentWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_installments"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	q := "SELECT " + installmentColumns + " FROM ledger_installments" + where +
		" ORDER BY expected_date, sale_id, installment_number LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	items, err := scanInstallments(rows)
	return items, total, err
}

// ListForWindow returns every installment of the acquirer expected within the
// window, whatever its NSU linkage or status.
func (r *InstallmentRepo) ListForWindow(ctx context.Context, acquirerID string, w domain.Window) ([]domain.LedgerInstallment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+installmentColumns+`
		FROM ledger_installments
		WHERE acquirer_id = ? AND expected_date >= ? AND expected_date <= ?
		ORDER BY sale_id, installment_number`,
		acquirerID, formatDate(w.From), formatDate(w.To),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanInstallments(rows)
}

// LinkNSU attaches the acquirer's NSU to an open installment, moving it from
// awaiting_nsu to awaiting_settlement.
func (r *InstallmentRepo) LinkNSU(ctx context.Context, saleID string, number int, nsu string) (*domain.LedgerInstallment, error) {
	nsu = strings.TrimSpace(nsu)
	if nsu == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "nsu is required")
	}
	var out *domain.LedgerInstallment
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		inst, err := r.Get(ctx, tx, saleID, number)
		if err != nil {
			return err
		}
		if !inst.Status.IsOpen() {
			return domain.NewError(domain.KindInvalidInput,
				fmt.Sprintf("installment is %s", inst.Status), inst.ID())
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE ledger_installments SET nsu = ?, status = ? WHERE sale_id = ? AND installment_number = ?",
			nsu, string(domain.InstallmentAwaitingSettlement), saleID, number,
		); err != nil {
			return fmt.Errorf("link nsu: %w", err)
		}
		inst.NSU = nsu
		inst.Status = domain.InstallmentAwaitingSettlement
		out = inst
		return nil
	})
	return out, err
}

// MarkReceived closes an open installment on behalf of a validation record.
// It reports false when the installment was no longer open.
func (r *InstallmentRepo) MarkReceived(ctx context.Context, q DBTX, saleID string, number int, validationID string, at time.Time) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE ledger_installments
		SET status = ?, received_at = ?, processed_by = ?
		WHERE sale_id = ? AND installment_number = ?
		  AND status IN ('awaiting_nsu', 'awaiting_settlement')`,
		string(domain.InstallmentReceived), formatTime(at), validationID, saleID, number,
	)
	if err != nil {
		return false, fmt.Errorf("mark received %s: %w", domain.InstallmentID(saleID, number), err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// RevertReceived reopens every installment received by the validation record
// and returns how many rows changed.
func (r *InstallmentRepo) RevertReceived(ctx context.Context, q DBTX, validationID string) (int, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE ledger_installments
		SET status = ?, received_at = NULL, processed_by = NULL
		WHERE processed_by = ? AND status = ?`,
		string(domain.InstallmentAwaitingSettlement), validationID, string(domain.InstallmentReceived),
	)
	if err != nil {
		return 0, fmt.Errorf("revert received: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// --- helpers ---

const installmentColumns = `sale_id, installment_number, installment_total, expected_amount,
	expected_date, nsu, acquirer_id, status, received_at, processed_by`

func initialStatus(nsu string) domain.InstallmentStatus {
	if nsu == "" {
		return domain.InstallmentAwaitingNSU
	}
	return domain.InstallmentAwaitingSettlement
}

func buildInstallmentWhere(f InstallmentFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.AcquirerID != "" {
		clauses = append(clauses, "acquirer_id = ?")
		args = append(args, f.AcquirerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.NSU != "" {
		clauses = append(clauses, "nsu = ?")
		args = append(args, f.NSU)
	}
	if f.SaleID != "" {
		clauses = append(clauses, "sale_id = ?")
		args = append(args, f.SaleID)
	}
	if f.From != nil {
		clauses = append(clauses, "expected_date >= ?")
		args = append(args, formatDate(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "expected_date <= ?")
		args = append(args, formatDate(*f.To))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanInstallment(row scanner) (*domain.LedgerInstallment, error) {
	var inst domain.LedgerInstallment
	var expected, status string
	var nsu, receivedAt, processedBy sql.NullString
	err := row.Scan(
		&inst.SaleID, &inst.InstallmentNumber, &inst.InstallmentTotal, &inst.ExpectedAmount,
		&expected, &nsu, &inst.AcquirerID, &status, &receivedAt, &processedBy,
	)
	if err != nil {
		return nil, err
	}
	if inst.ExpectedDate, err = parseDate(expected); err != nil {
		return nil, err
	}
	if inst.ReceivedAt, err = parseNullableTime(receivedAt); err != nil {
		return nil, err
	}
	inst.NSU = nsu.String
	inst.Status = domain.InstallmentStatus(status)
	inst.ProcessedBy = processedBy.String
	return &inst, nil
}

func scanInstallments(rows *sql.Rows) ([]domain.LedgerInstallment, error) {
	var items []domain.LedgerInstallment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, *inst)
	}
	return items, rows.Err()
}
