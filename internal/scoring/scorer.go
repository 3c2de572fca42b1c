// Package scoring turns a matching result into a confidence tier.
package scoring

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"
	"github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/matching"
)

// Thresholds are divergence percentages. HighPct bounds the HIGH tier and
// MediumPct the MEDIUM tier; HighPct must not exceed MediumPct.
type Thresholds struct {
	HighPct   float64 `yaml:"high_pct"`
	MediumPct float64 `yaml:"medium_pct"`
}

// DefaultThresholds: up to 1% is HIGH, up to 5% is MEDIUM.
func DefaultThresholds() Thresholds {
	return Thresholds{HighPct: 1, MediumPct: 5}
}

var hundred = decimal.NewFromInt(100)

// Scorer assigns tiers with fixed, monotonic thresholds.
type Scorer struct {
	high   decimal.Decimal
	medium decimal.Decimal
}

func NewScorer(t Thresholds) (*Scorer, error) {
	if t.HighPct < 0 || t.MediumPct < 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "confidence thresholds must be non-negative (high=%v, medium=%v)", t.HighPct, t.MediumPct)
	}
	if t.HighPct > t.MediumPct {
		return nil, domain.Errorf(domain.KindInvalidInput, "confidence thresholds must be monotonic: high %v > medium %v", t.HighPct, t.MediumPct)
	}
	return &Scorer{
		high:   decimal.NewFromFloat(t.HighPct),
		medium: decimal.NewFromFloat(t.MediumPct),
	}, nil
}

// Score is the numeric outcome of a run.
type Score struct {
	TotalSettlement decimal.Decimal
	TotalLedger     decimal.Decimal
	DivergenceAbs   decimal.Decimal
	// DivergencePct is unrounded; round it for display only.
	DivergencePct decimal.Decimal
	Tier          domain.Tier
}

// Score computes totals, divergence and tier.
func (s *Scorer) Score(r matching.Result) Score {
	settlement := r.SettlementTotal()
	ledger := r.LedgerTotal()
	abs := settlement.Sub(ledger).Abs()
	pct := DivergencePct(abs, ledger)
	return Score{
		TotalSettlement: settlement,
		TotalLedger:     ledger,
		DivergenceAbs:   abs,
		DivergencePct:   pct,
		Tier:            s.Tier(pct, len(r.Orphans)+len(r.Closed), r.DuplicateNSUCount()),
	}
}

// DivergencePct is abs/ledger*100. With nothing expected, no divergence is 0%
// and any divergence is treated as 100%.
func DivergencePct(abs, ledger decimal.Decimal) decimal.Decimal {
	if ledger.IsZero() {
		if abs.IsZero() {
			return decimal.Zero
		}
		return hundred
	}
	return domain.Percent(abs, ledger)
}

// Tier applies the thresholds. A duplicate NSU always forces LOW. Unexplained
// settlement lines (orphans, and repeat payments for installments already
// received or reversed) cap the run at MEDIUM, so none of them can be hidden
// by automatic processing.
func (s *Scorer) Tier(pct decimal.Decimal, unexplained, duplicateNSUs int) domain.Tier {
	switch {
	case duplicateNSUs > 0:
		return domain.TierLow
	case pct.GreaterThan(s.medium):
		return domain.TierLow
	case pct.LessThanOrEqual(s.high) && unexplained == 0:
		return domain.TierHigh
	default:
		return domain.TierMedium
	}
}

// Header identifies the run a record belongs to.
type Header struct {
	ID            string
	AcquirerID    string
	BankAccountID string
	Window        domain.Window
	CreatedAt     time.Time
}

// NewRecord packages a scored run as a pending_review ValidationRecord.
func NewRecord(h Header, r matching.Result, sc Score) *domain.ValidationRecord {
	alerts := r.Alerts
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	return &domain.ValidationRecord{
		ID:              h.ID,
		AcquirerID:      h.AcquirerID,
		BankAccountID:   h.BankAccountID,
		Window:          h.Window,
		TotalSettlement: sc.TotalSettlement,
		TotalLedger:     sc.TotalLedger,
		DivergenceAbs:   sc.DivergenceAbs,
		DivergencePct:   sc.DivergencePct.Round(4),
		Tier:            sc.Tier,
		MatchedCount:    len(r.Pairs),
		UnmatchedNSUs:   len(r.Orphans),
		AwaitingCount:   len(r.Awaiting),
		Status:          domain.ValidationPendingReview,
		Alerts:          alerts,
		CreatedAt:       h.CreatedAt,
		ProcessedAmount: decimal.Zero,
	}
}

func (s *Scorer) String() string {
	return fmt.Sprintf("HIGH<=%s%% MEDIUM<=%s%%", s.high, s.medium)
}
