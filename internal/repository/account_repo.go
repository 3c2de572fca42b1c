package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
)

// AccountRepo holds acquirers, the bank accounts they settle into and the
// movement journal of those accounts.
type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

func (r *AccountRepo) UpsertBankAccount(ctx context.Context, a domain.BankAccount) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, name, balance) VALUES (?,?,?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		a.ID, a.Name, a.Balance.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert bank account %s: %w", a.ID, err)
	}
	return nil
}

func (r *AccountRepo) UpsertAcquirer(ctx context.Context, a domain.Acquirer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO acquirers (id, name, bank_account_id) VALUES (?,?,?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, bank_account_id = excluded.bank_account_id`,
		a.ID, a.Name, a.BankAccountID,
	)
	if err != nil {
		return fmt.Errorf("upsert acquirer %s: %w", a.ID, err)
	}
	return nil
}

func (r *AccountRepo) GetAcquirer(ctx context.Context, id string) (*domain.Acquirer, error) {
	var a domain.Acquirer
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, bank_account_id FROM acquirers WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &a.BankAccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "acquirer not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) ListAcquirers(ctx context.Context) ([]domain.Acquirer, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, bank_account_id FROM acquirers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Acquirer
	for rows.Next() {
		var a domain.Acquirer
		if err := rows.Scan(&a.ID, &a.Name, &a.BankAccountID); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetBankAccount reads an account through q, which may be a transaction.
func (r *AccountRepo) GetBankAccount(ctx context.Context, q DBTX, id string) (*domain.BankAccount, error) {
	if q == nil {
		q = r.db
	}
	var a domain.BankAccount
	err := q.QueryRowContext(ctx, "SELECT id, name, balance FROM bank_accounts WHERE id = ?", id).
		Scan(&a.ID, &a.Name, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "bank account not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, balance FROM bank_accounts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.BankAccount
	for rows.Next() {
		var a domain.BankAccount
		if err := rows.Scan(&a.ID, &a.Name, &a.Balance); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Apply changes the account balance by the movement amount (credit adds,
// debit subtracts) and journals the movement. Must run inside the caller's
// transaction so the balance and the journal never drift.
func (r *AccountRepo) Apply(ctx context.Context, q DBTX, m domain.BankMovement) (decimal.Decimal, error) {
	acct, err := r.GetBankAccount(ctx, q, m.BankAccountID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := acct.Balance
	switch m.Kind {
	case domain.MovementCredit:
		balance = balance.Add(m.Amount)
	case domain.MovementDebit:
		balance = balance.Sub(m.Amount)
	default:
		return decimal.Zero, domain.Errorf(domain.KindInvalidInput, "unknown movement kind %q", m.Kind)
	}
	balance = domain.Cents(balance)

	if _, err := q.ExecContext(ctx,
		"UPDATE bank_accounts SET balance = ? WHERE id = ?", balance.String(), m.BankAccountID,
	); err != nil {
		return decimal.Zero, fmt.Errorf("update balance: %w", err)
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO bank_movements (id, bank_account_id, validation_id, kind, amount, created_at)
		VALUES (?,?,?,?,?,?)`,
		m.ID, m.BankAccountID, m.ValidationID, string(m.Kind), m.Amount.String(), formatTime(m.CreatedAt),
	); err != nil {
		return decimal.Zero, fmt.Errorf("insert movement: %w", err)
	}
	return balance, nil
}

// ListMovements returns the movements of an account, newest first. An empty
// validationID lists all of them.
func (r *AccountRepo) ListMovements(ctx context.Context, accountID, validationID string) ([]domain.BankMovement, error) {
	q := "SELECT id, bank_account_id, validation_id, kind, amount, created_at FROM bank_movements WHERE bank_account_id = ?"
	args := []any{accountID}
	if validationID != "" {
		q += " AND validation_id = ?"
		args = append(args, validationID)
	}
	q += " ORDER BY created_at DESC, id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.BankMovement
	for rows.Next() {
		var m domain.BankMovement
		var kind, createdAt string
		if err := rows.Scan(&m.ID, &m.BankAccountID, &m.ValidationID, &kind, &m.Amount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.Kind = domain.MovementKind(kind)
		var err error
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("movement %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
