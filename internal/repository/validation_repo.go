package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// ValidationRepo stores validation records and their matched pairs. Records
// are never deleted; every transition is an UPDATE guarded by the expected
// current status.
type ValidationRepo struct {
	db *sql.DB
}

func NewValidationRepo(db *sql.DB) *ValidationRepo {
	return &ValidationRepo{db: db}
}

// Insert persists a record together with its matched pairs.
func (r *ValidationRepo) Insert(ctx context.Context, v *domain.ValidationRecord, pairs []domain.MatchedPair) error {
	alerts, err := json.Marshal(v.Alerts)
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	return WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO validation_records
			(id, acquirer_id, bank_account_id, window_from, window_to, total_settlement,
			 total_ledger, divergence_abs, divergence_pct, tier, matched_count,
			 unmatched_nsu_count, awaiting_count, status, alerts, created_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			v.ID, v.AcquirerID, v.BankAccountID, formatDate(v.Window.From), formatDate(v.Window.To),
			v.TotalSettlement.String(), v.TotalLedger.String(), v.DivergenceAbs.String(),
			v.DivergencePct.String(), string(v.Tier), v.MatchedCount, v.UnmatchedNSUs,
			v.AwaitingCount, string(v.Status), string(alerts), formatTime(v.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert validation: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO validation_matches
			(validation_id, settlement_id, nsu, sale_id, installment_number,
			 settlement_amount, expected_amount)
			VALUES (?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, p := range pairs {
			if _, err := stmt.ExecContext(ctx,
				v.ID, p.SettlementID, p.NSU, p.SaleID, p.InstallmentNumber,
				p.SettlementAmount.String(), p.ExpectedAmount.String(),
			); err != nil {
				return fmt.Errorf("insert match %s: %w", p.InstallmentID(), err)
			}
		}
		return nil
	})
}

// Get loads a record through q; pass a transaction to read under its lock.
func (r *ValidationRepo) Get(ctx context.Context, q DBTX, id string) (*domain.ValidationRecord, error) {
	if q == nil {
		q = r.db
	}
	row := q.QueryRowContext(ctx, "SELECT "+validationColumns+" FROM validation_records WHERE id = ?", id)
	v, err := scanValidation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "validation record not found", id)
	}
	return v, err
}

// ListMatches returns the matched pairs of a record ordered by NSU and
// installment number.
func (r *ValidationRepo) ListMatches(ctx context.Context, q DBTX, id string) ([]domain.MatchedPair, error) {
	if q == nil {
		q = r.db
	}
	rows, err := q.QueryContext(ctx, `
		SELECT validation_id, settlement_id, nsu, sale_id, installment_number,
		       settlement_amount, expected_amount
		FROM validation_matches
		WHERE validation_id = ?
		ORDER BY nsu, installment_number, sale_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var pairs []domain.MatchedPair
	for rows.Next() {
		var p domain.MatchedPair
		if err := rows.Scan(
			&p.ValidationID, &p.SettlementID, &p.NSU, &p.SaleID, &p.InstallmentNumber,
			&p.SettlementAmount, &p.ExpectedAmount,
		); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

type ValidationFilter struct {
	AcquirerID string
	Status     string
	Tier       string
	Page       int
	Limit      int
}

func (r *ValidationRepo) List(ctx context.Context, f ValidationFilter) ([]domain.ValidationRecord, int, error) {
	where, args := buildValidationWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM validation_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	limit, offset := pageBounds(f.Page, f.Limit)
	q := "SELECT " + validationColumns + " FROM validation_records" + where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var records []domain.ValidationRecord
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		records = append(records, *v)
	}
	return records, total, rows.Err()
}

// MarkApproved moves a pending_review record to approved and stores the
// authorizing decision.
func (r *ValidationRepo) MarkApproved(ctx context.Context, q DBTX, id string, d domain.Decision, at time.Time) (bool, error) {
	return execOne(ctx, q, `
		UPDATE validation_records
		SET status = ?, confirmed = ?, justification = ?, decided_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.ValidationApproved), d.Confirmed, strings.TrimSpace(d.Justification), formatTime(at),
		id, string(domain.ValidationPendingReview),
	)
}

// MarkDivergent closes a record that has not been processed.
func (r *ValidationRepo) MarkDivergent(ctx context.Context, q DBTX, id, reason string, at time.Time) (bool, error) {
	return execOne(ctx, q, `
		UPDATE validation_records
		SET status = ?, rejection_reason = ?, decided_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		string(domain.ValidationDivergent), reason, formatTime(at),
		id, string(domain.ValidationPendingReview), string(domain.ValidationApproved),
	)
}

// MarkProcessed moves a record from the given status to processed.
func (r *ValidationRepo) MarkProcessed(ctx context.Context, q DBTX, id string, from domain.ValidationStatus, d domain.Decision, amount decimal.Decimal, at time.Time) (bool, error) {
	return execOne(ctx, q, `
		UPDATE validation_records
		SET status = ?, confirmed = ?, justification = ?, processed_at = ?, processed_amount = ?,
		    decided_at = COALESCE(decided_at, ?)
		WHERE id = ? AND status = ?`,
		string(domain.ValidationProcessed), d.Confirmed, strings.TrimSpace(d.Justification),
		formatTime(at), amount.String(), formatTime(at),
		id, string(from),
	)
}

// MarkReversed stamps the reversal on a processed record. The record keeps
// its processed status.
func (r *ValidationRepo) MarkReversed(ctx context.Context, q DBTX, id, reason string, at time.Time) (bool, error) {
	return execOne(ctx, q, `
		UPDATE validation_records
		SET reversed_at = ?, reversal_reason = ?
		WHERE id = ? AND status = ? AND reversed_at IS NULL`,
		formatTime(at), reason, id, string(domain.ValidationProcessed),
	)
}

// --- helpers ---

const validationColumns = `id, acquirer_id, bank_account_id, window_from, window_to,
	total_settlement, total_ledger, divergence_abs, divergence_pct, tier, matched_count,
	unmatched_nsu_count, awaiting_count, status, alerts, created_at, confirmed,
	justification, decided_at, rejection_reason, processed_at, processed_amount,
	reversed_at, reversal_reason`

func execOne(ctx context.Context, q DBTX, query string, args ...any) (bool, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update validation: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func buildValidationWhere(f ValidationFilter) (string, []any) {
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
	if f.Tier != "" {
		clauses = append(clauses, "tier = ?")
		args = append(args, strings.ToUpper(f.Tier))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanValidation(row scanner) (*domain.ValidationRecord, error) {
	var v domain.ValidationRecord
	var from, to, tier, status, alerts, createdAt string
	var decidedAt, processedAt, reversedAt sql.NullString
	err := row.Scan(
		&v.ID, &v.AcquirerID, &v.BankAccountID, &from, &to,
		&v.TotalSettlement, &v.TotalLedger, &v.DivergenceAbs, &v.DivergencePct, &tier, &v.MatchedCount,
		&v.UnmatchedNSUs, &v.AwaitingCount, &status, &alerts, &createdAt, &v.Confirmed,
		&v.Justification, &decidedAt, &v.RejectionReason, &processedAt, &v.ProcessedAmount,
		&reversedAt, &v.ReversalReason,
	)
	if err != nil {
		return nil, err
	}

	v.Tier = domain.Tier(tier)
	v.Status = domain.ValidationStatus(status)
	if v.Window.From, err = parseDate(from); err != nil {
		return nil, err
	}
	if v.Window.To, err = parseDate(to); err != nil {
		return nil, err
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if v.DecidedAt, err = parseNullableTime(decidedAt); err != nil {
		return nil, err
	}
	if v.ProcessedAt, err = parseNullableTime(processedAt); err != nil {
		return nil, err
	}
	if v.ReversedAt, err = parseNullableTime(reversedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(alerts), &v.Alerts); err != nil {
		return nil, fmt.Errorf("unmarshal alerts: %w", err)
	}
	if v.Alerts == nil {
		v.Alerts = []domain.Alert{}
	}
	return &v, nil
}
