package domain

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindTemplateMismatch      ErrorKind = "template_mismatch"
	KindInvalidInput          ErrorKind = "invalid_input"
	KindNotFound              ErrorKind = "not_found"
	KindConfirmationRequired  ErrorKind = "confirmation_required"
	KindJustificationRequired ErrorKind = "justification_required"
	KindReasonRequired        ErrorKind = "reason_required"
	KindAlreadyProcessed      ErrorKind = "already_processed"
	KindAlreadyReversed       ErrorKind = "already_reversed"
	KindNotProcessed          ErrorKind = "not_processed"
	KindRecordClosed          ErrorKind = "record_closed"
	KindStaleValidation       ErrorKind = "stale_validation"
)

// Error is a failure surfaced verbatim to the caller, with enough structure
// (kind and affected ids) to render a decision screen.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"error"`
	IDs     []string  `json:"ids,omitempty"`
}

func (e *Error) Error() string {
	if len(e.IDs) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s [%s]", e.Message, strings.Join(e.IDs, ", "))
}

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, domain.ErrAlreadyProcessed).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels, one per kind.
var (
	ErrTemplateMismatch      = &Error{Kind: KindTemplateMismatch, Message: "statement does not match template"}
	ErrInvalidInput          = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrNotFound              = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConfirmationRequired  = &Error{Kind: KindConfirmationRequired, Message: "medium confidence: explicit confirmation required"}
	ErrJustificationRequired = &Error{Kind: KindJustificationRequired, Message: "low confidence: justification required"}
	ErrReasonRequired        = &Error{Kind: KindReasonRequired, Message: "reversal reason required"}
	ErrAlreadyProcessed      = &Error{Kind: KindAlreadyProcessed, Message: "validation already processed"}
	ErrAlreadyReversed       = &Error{Kind: KindAlreadyReversed, Message: "validation already reversed"}
	ErrNotProcessed          = &Error{Kind: KindNotProcessed, Message: "validation has not been processed"}
	ErrRecordClosed          = &Error{Kind: KindRecordClosed, Message: "validation is closed"}
	ErrStaleValidation       = &Error{Kind: KindStaleValidation, Message: "installments changed since validation"}
)

// NewError builds an error of the given kind.
func NewError(kind ErrorKind, msg string, ids ...string) *Error {
	return &Error{Kind: kind, Message: msg, IDs: ids}
}

// Errorf builds an error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of a domain error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
