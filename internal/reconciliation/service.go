package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/logging"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/matching"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/observability/metrics"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/repository"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/scoring"
)

// Outcome is a stored validation record together with the partition it was
// computed from.
type Outcome struct {
	Record     *domain.ValidationRecord       `json:"record"`
	Matched    []domain.MatchedPair           `json:"matched"`
	Orphans    []domain.SettlementTransaction `json:"orphans"`
	Awaiting   []domain.LedgerInstallment     `json:"awaiting"`
	Conflicted []domain.SettlementTransaction `json:"conflicted"`
	Closed     []domain.SettlementTransaction `json:"closed"`
}

// Service runs match-and-score over an acquirer and date window.
type Service struct {
	accounts     *repository.AccountRepo
	settlements  *repository.SettlementRepo
	installments *repository.InstallmentRepo
	validations  *repository.ValidationRepo
	scorer       *scoring.Scorer
	log          *zap.Logger
	now          func() time.Time
}

func NewService(
	accounts *repository.AccountRepo,
	settlements *repository.SettlementRepo,
	installments *repository.InstallmentRepo,
	validations *repository.ValidationRepo,
	scorer *scoring.Scorer,
	logger *zap.Logger,
) *Service {
	return &Service{
		accounts:     accounts,
		settlements:  settlements,
		installments: installments,
		validations:  validations,
		scorer:       scorer,
		log:          logging.OrNop(logger).Named("reconciliation"),
		now:          time.Now,
	}
}

// Validate matches the acquirer's settlements in the window against the
// ledger, scores the result and stores a new pending_review record. The ledger
// is only read.
func (s *Service) Validate(ctx context.Context, acquirerID string, window domain.Window) (*Outcome, error) {
	start := s.now()
	out, err := s.validate(ctx, acquirerID, window)
	tier := ""
	if err == nil {
		tier = string(out.Record.Tier)
	}
	metrics.ObserveValidation(tier, s.now().Sub(start))
	return out, err
}

func (s *Service) validate(ctx context.Context, acquirerID string, window domain.Window) (*Outcome, error) {
	if window.From.IsZero() || window.To.IsZero() {
		return nil, domain.Errorf(domain.KindInvalidInput, "window requires from and to dates")
	}
	if window.To.Before(window.From) {
		return nil, domain.Errorf(domain.KindInvalidInput, "window ends (%s) before it starts (%s)",
			window.To.Format("2006-01-02"), window.From.Format("2006-01-02"))
	}

	acq, err := s.accounts.GetAcquirer(ctx, acquirerID)
	if err != nil {
		return nil, err
	}

	settlements, err := s.settlements.ListForWindow(ctx, acq.ID, window)
	if err != nil {
		return nil, fmt.Errorf("load settlements: %w", err)
	}
	installments, err := s.installments.ListForWindow(ctx, acq.ID, window)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	res := matching.Match(settlements, installments)
	score := s.scorer.Score(res)

	rec := scoring.NewRecord(scoring.Header{
		ID:            uuid.NewString(),
		AcquirerID:    acq.ID,
		BankAccountID: acq.BankAccountID,
		Window:        window,
		CreatedAt:     s.now().UTC(),
	}, res, score)

	for i := range res.Pairs {
		res.Pairs[i].ValidationID = rec.ID
	}
	if err := s.validations.Insert(ctx, rec, res.Pairs); err != nil {
		return nil, fmt.Errorf("store validation: %w", err)
	}

	s.log.Info("validation recorded",
		zap.String("validation_id", rec.ID),
		zap.String("acquirer_id", acq.ID),
		zap.String("tier", string(rec.Tier)),
		zap.String("divergence_abs", rec.DivergenceAbs.StringFixed(2)),
		zap.String("divergence_pct", rec.DivergencePct.String()),
		zap.Int("matched", rec.MatchedCount),
		zap.Int("orphans", rec.UnmatchedNSUs),
		zap.Int("awaiting", rec.AwaitingCount),
		zap.Int("alerts", len(rec.Alerts)))

	return &Outcome{
		Record:     rec,
		Matched:    res.Pairs,
		Orphans:    res.Orphans,
		Awaiting:   res.Awaiting,
		Conflicted: res.Conflicted,
		Closed:     res.Closed,
	}, nil
}

// Detail is a stored record with its matched pairs.
type Detail struct {
	Record  *domain.ValidationRecord `json:"record"`
	Matched []domain.MatchedPair     `json:"matched"`
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	rec, err := s.validations.Get(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	pairs, err := s.validations.ListMatches(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	return &Detail{Record: rec, Matched: pairs}, nil
}
