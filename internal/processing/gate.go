package processing

import "github.com/lcsgmoraes-droid/Sistema-Pet-sub000/internal/domain"

// Authorize decides whether a record in the given tier and status may be
// processed with the supplied decision. An approved record was already
// authorized and passes without further input.
func Authorize(tier domain.Tier, status domain.ValidationStatus, d domain.Decision) error {
	if status == domain.ValidationApproved {
		return nil
	}
	switch tier {
	case domain.TierHigh:
		return nil
	case domain.TierMedium:
		if !d.Confirmed {
			return domain.ErrConfirmationRequired
		}
		return nil
	case domain.TierLow:
		if !d.HasJustification() {
			return domain.ErrJustificationRequired
		}
		return nil
	}
	return domain.Errorf(domain.KindInvalidInput, "unknown confidence tier %q", tier)
}
