package models

import (
	"errors"
	"fmt"
)

// Error codes let clients pick the right remediation without parsing
// messages.
const (
	CodeValidation        = "validation_failed"
	CodeForbidden         = "forbidden"
	CodeKYCRequired       = "kyc_required"
	CodeNotFound          = "not_found"
	CodeInsufficientSeats = "insufficient_seats"
	CodeDuplicateBooking  = "duplicate_booking"
	CodeConflict          = "conflict"
	CodeInvalidTransition = "invalid_transition"
	CodeProviderError     = "payment_provider_error"
	CodeInvariant         = "invariant_violation"
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	return e.Msg
}

func (e ValidationError) Code() string { return CodeValidation }

type AuthorizationError struct {
	Reason string
	KYC    bool
}

func (e AuthorizationError) Error() string {
	if e.Reason == "" {
		return "not allowed"
	}
	return e.Reason
}

func (e AuthorizationError) Code() string {
	if e.KYC {
		return CodeKYCRequired
	}
	return CodeForbidden
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e NotFoundError) Code() string { return CodeNotFound }

// ConflictError is returned for seat oversubscription and duplicate active
// bookings. Callers re-query availability; it is never retried internally.
type ConflictError struct {
	Reason string
	Msg    string
}

func (e ConflictError) Error() string { return e.Msg }

func (e ConflictError) Code() string {
	if e.Reason == "" {
		return CodeConflict
	}
	return e.Reason
}

type StateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e StateTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Entity, e.From, e.To)
}

func (e StateTransitionError) Code() string { return CodeInvalidTransition }

type PaymentProviderError struct {
	Provider  PaymentProvider
	Transient bool
	Err       error
}

func (e PaymentProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s provider error (%s): %v", e.Provider, kind, e.Err)
}

func (e PaymentProviderError) Unwrap() error { return e.Err }

func (e PaymentProviderError) Code() string { return CodeProviderError }

// InvariantViolation signals a bookkeeping bug. It is never corrected
// silently.
type InvariantViolation struct {
	Msg string
}

func (e InvariantViolation) Error() string { return "invariant violation: " + e.Msg }

func (e InvariantViolation) Code() string { return CodeInvariant }

var (
	ErrInsufficientSeats = ConflictError{Reason: CodeInsufficientSeats, Msg: "insufficient seats"}
	ErrDuplicateBooking  = ConflictError{Reason: CodeDuplicateBooking, Msg: "an active booking already exists for this ride"}
	ErrKYCRequired       = AuthorizationError{Reason: "identity verification is not approved", KYC: true}
)

// ErrStaleWrite is returned by stores when a compare-and-set update finds the
// row no longer in the expected state.
var ErrStaleWrite = errors.New("stale write: row changed concurrently")

// ErrorCode returns the stable code of a taxonomy error, or "" for anything
// else.
func ErrorCode(err error) string {
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target AuthorizationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsStateTransition(err error) bool {
	var target StateTransitionError
	return errors.As(err, &target)
}

func IsPaymentProvider(err error) bool {
	var target PaymentProviderError
	return errors.As(err, &target)
}

func IsInvariantViolation(err error) bool {
	var target InvariantViolation
	return errors.As(err, &target)
}
