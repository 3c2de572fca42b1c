// Package processing applies and undoes validated reconciliations: it moves
// ledger installments to received, credits the acquirer's bank account and
// closes the validation record, or compensates all of that on revert.
package processing

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/logging"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/observability/metrics"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
)

// Service is the single writer of validation records, ledger installment
// statuses and bank balances. Every operation on one record runs under a
// per-record lock and inside one write transaction.
type Service struct {
	db           *sql.DB
	validations  *repository.ValidationRepo
	installments *repository.InstallmentRepo
	accounts     *repository.AccountRepo
	locks        *keyedMutex
	log          *zap.Logger
	now          func() time.Time
}

func NewService(
	db *sql.DB,
	validations *repository.ValidationRepo,
	installments *repository.InstallmentRepo,
	accounts *repository.AccountRepo,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:           db,
		validations:  validations,
		installments: installments,
		accounts:     accounts,
		locks:        newKeyedMutex(),
		log:          logging.OrNop(logger).Named("processing"),
		now:          time.Now,
	}
}

// Process applies a validation record. HIGH records need no input, MEDIUM
// records need decision.Confirmed, LOW records need a justification, and an
// approved record carries its earlier authorization.
func (s *Service) Process(ctx context.Context, validationID string, decision domain.Decision) (*domain.ProcessingResult, error) {
	start := s.now()
	res, err := s.process(ctx, validationID, decision)
	metrics.ObserveProcess(resultLabel(err), s.now().Sub(start))
	if err != nil {
		s.log.Warn("process refused", zap.String("validation_id", validationID), zap.Error(err))
		return nil, err
	}
	s.log.Info("validation processed",
		zap.String("validation_id", res.ValidationID),
		zap.Int("installments", res.ProcessedCount),
		zap.String("amount", res.TotalAmount.StringFixed(2)),
		zap.Bool("confirmed", res.Confirmed),
		zap.String("justification", res.Justification))
	return res, nil
}

func (s *Service) process(ctx context.Context, validationID string, decision domain.Decision) (*domain.ProcessingResult, error) {
	unlock := s.locks.Lock(validationID)
	defer unlock()

	var result *domain.ProcessingResult
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rec, err := s.validations.Get(ctx, tx, validationID)
		if err != nil {
			return err
		}
		if err := checkOpen(rec); err != nil {
			return err
		}
		if err := Authorize(rec.Tier, rec.Status, decision); err != nil {
			return withID(err, rec.ID)
		}
		if rec.Status == domain.ValidationApproved {
			decision = domain.Decision{Confirmed: rec.Confirmed, Justification: rec.Justification}
		}

		pairs, err := s.validations.ListMatches(ctx, tx, rec.ID)
		if err != nil {
			return err
		}
		if err := s.checkFresh(ctx, tx, pairs); err != nil {
			return err
		}

		now := s.now().UTC()
		amounts := make([]decimal.Decimal, 0, len(pairs))
		for _, p := range pairs {
			ok, err := s.installments.MarkReceived(ctx, tx, p.SaleID, p.InstallmentNumber, rec.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				return domain.NewError(domain.KindStaleValidation, domain.ErrStaleValidation.Message, p.InstallmentID())
			}
			amounts = append(amounts, p.ExpectedAmount)
		}
		amount := domain.Sum(amounts...)

		if amount.IsPositive() {
			if _, err := s.accounts.Apply(ctx, tx, domain.BankMovement{
				ID:            uuid.NewString(),
				BankAccountID: rec.BankAccountID,
				ValidationID:  rec.ID,
				Kind:          domain.MovementCredit,
				Amount:        amount,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}

		ok, err := s.validations.MarkProcessed(ctx, tx, rec.ID, rec.Status, decision, amount, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.KindAlreadyProcessed, domain.ErrAlreadyProcessed.Message, rec.ID)
		}

		result = &domain.ProcessingResult{
			ValidationID:   rec.ID,
			ProcessedCount: len(pairs),
			TotalAmount:    amount,
			ProcessedAt:    now,
			Confirmed:      decision.Confirmed,
			Justification:  strings.TrimSpace(decision.Justification),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkFresh fails with StaleValidation listing every matched installment
// that is no longer open or no longer carries the matched NSU.
func (s *Service) checkFresh(ctx context.Context, tx *sql.Tx, pairs []domain.MatchedPair) error {
	var stale []string
	for _, p := range pairs {
		inst, err := s.installments.Get(ctx, tx, p.SaleID, p.InstallmentNumber)
		if domain.KindOf(err) == domain.KindNotFound {
			stale = append(stale, p.InstallmentID())
			continue
		}
		if err != nil {
			return err
		}
		if !inst.Status.IsOpen() || inst.NSU != p.NSU {
			stale = append(stale, p.InstallmentID())
		}
	}
	if len(stale) > 0 {
		return domain.NewError(domain.KindStaleValidation, domain.ErrStaleValidation.Message, stale...)
	}
	return nil
}

// Approve authorizes a pending record through the same gate as Process
// without applying it. Approving an approved record is a no-op.
func (s *Service) Approve(ctx context.Context, validationID string, decision domain.Decision) (*domain.ValidationRecord, error) {
	unlock := s.locks.Lock(validationID)
	defer unlock()

	var out *domain.ValidationRecord
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rec, err := s.validations.Get(ctx, tx, validationID)
		if err != nil {
			return err
		}
		if err := checkOpen(rec); err != nil {
			return err
		}
		if rec.Status == domain.ValidationApproved {
			out = rec
			return nil
		}
		if err := Authorize(rec.Tier, rec.Status, decision); err != nil {
			return withID(err, rec.ID)
		}
		ok, err := s.validations.MarkApproved(ctx, tx, rec.ID, decision, s.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.KindRecordClosed, domain.ErrRecordClosed.Message, rec.ID)
		}
		out, err = s.validations.Get(ctx, tx, rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("validation approved", zap.String("validation_id", out.ID), zap.String("tier", string(out.Tier)))
	return out, nil
}

// Reject closes an unprocessed record as divergent. A new validation run is
// needed to reconcile the window again.
func (s *Service) Reject(ctx context.Context, validationID, reason string) (*domain.ValidationRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewError(domain.KindReasonRequired, "rejection reason required", validationID)
	}

	unlock := s.locks.Lock(validationID)
	defer unlock()

	var out *domain.ValidationRecord
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rec, err := s.validations.Get(ctx, tx, validationID)
		if err != nil {
			return err
		}
		if err := checkOpen(rec); err != nil {
			return err
		}
		ok, err := s.validations.MarkDivergent(ctx, tx, rec.ID, reason, s.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.KindRecordClosed, domain.ErrRecordClosed.Message, rec.ID)
		}
		out, err = s.validations.Get(ctx, tx, rec.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("validation rejected", zap.String("validation_id", out.ID), zap.String("reason", reason))
	return out, nil
}

// Revert undoes a processed record: its installments return to
// awaiting_settlement, the credited amount is debited and the record is
// stamped with the reversal. The record itself stays processed.
func (s *Service) Revert(ctx context.Context, validationID, reason string) (*domain.ReversalResult, error) {
	res, err := s.revert(ctx, validationID, reason)
	metrics.IncRevert(resultLabel(err))
	if err != nil {
		s.log.Warn("revert refused", zap.String("validation_id", validationID), zap.Error(err))
		return nil, err
	}
	s.log.Info("validation reverted",
		zap.String("validation_id", res.ValidationID),
		zap.Int("installments", res.RevertedCount),
		zap.String("amount", res.Amount.StringFixed(2)),
		zap.String("reason", res.Reason))
	return res, nil
}

func (s *Service) revert(ctx context.Context, validationID, reason string) (*domain.ReversalResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewError(domain.KindReasonRequired, domain.ErrReasonRequired.Message, validationID)
	}

	unlock := s.locks.Lock(validationID)
	defer unlock()

	var result *domain.ReversalResult
	err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rec, err := s.validations.Get(ctx, tx, validationID)
		if err != nil {
			return err
		}
		if rec.Status != domain.ValidationProcessed {
			return domain.NewError(domain.KindNotProcessed, domain.ErrNotProcessed.Message, rec.ID)
		}
		if rec.Reversed() {
			return domain.NewError(domain.KindAlreadyReversed, domain.ErrAlreadyReversed.Message, rec.ID)
		}

		n, err := s.installments.RevertReceived(ctx, tx, rec.ID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if rec.ProcessedAmount.IsPositive() {
			if _, err := s.accounts.Apply(ctx, tx, domain.BankMovement{
				ID:            uuid.NewString(),
				BankAccountID: rec.BankAccountID,
				ValidationID:  rec.ID,
				Kind:          domain.MovementDebit,
				Amount:        rec.ProcessedAmount,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}

		ok, err := s.validations.MarkReversed(ctx, tx, rec.ID, reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.KindAlreadyReversed, domain.ErrAlreadyReversed.Message, rec.ID)
		}

		result = &domain.ReversalResult{
			ValidationID:  rec.ID,
			RevertedCount: n,
			Amount:        rec.ProcessedAmount,
			Reason:        reason,
			ReversedAt:    now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkOpen rejects records that no longer accept a decision.
func checkOpen(rec *domain.ValidationRecord) error {
	switch rec.Status {
	case domain.ValidationProcessed:
		return domain.NewError(domain.KindAlreadyProcessed, domain.ErrAlreadyProcessed.Message, rec.ID)
	case domain.ValidationDivergent:
		return domain.NewError(domain.KindRecordClosed, domain.ErrRecordClosed.Message, rec.ID)
	}
	return nil
}

func withID(err error, id string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return domain.NewError(de.Kind, de.Message, id)
	}
	return err
}

func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultSuccess
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return metrics.ResultError
}
