// Package agierr declares the stable error-kind taxonomy shared across every
// domain package (§7): each kind carries a fixed external tag so handlers can
// map internal failures to one of permission_denied, resource_unavailable,
// validation_failed, or internal without leaking provider internals.
package agierr

import (
	"errors"
	"fmt"
)

// Kind is a stable internal error classification.
type Kind string

const (
	KindPermissionDenied     Kind = "permission_denied"
	KindPoolExhausted        Kind = "pool_exhausted"
	KindProvidersExhausted   Kind = "providers_exhausted"
	KindConstitutionMismatch Kind = "constitution_mismatch"
	KindCriticRejection      Kind = "critic_rejection"
	KindEscalationRequired   Kind = "escalation_required"
	KindInvariantViolation   Kind = "invariant_violation"
	KindNotFound             Kind = "not_found"
	KindValidation           Kind = "validation_failed"
	KindConflict             Kind = "conflict"
)

// Error is the concrete error type every domain package returns for a
// classified failure.
type Error struct {
	Kind    Kind
	Message string
	// RequiredTier is set for KindPermissionDenied, carrying the name of the
	// minimum tier the caller needed (e.g. "LEAD").
	RequiredTier string
	// RetryAfterSeconds is set for KindProvidersExhausted.
	RetryAfterSeconds int
	Err               error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, &Error{Kind: KindX}) comparisons by kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// PermissionDenied builds a KindPermissionDenied error carrying the minimum
// tier hint required, per §4.1 check(agent, cap, raise=true).
func PermissionDenied(message, requiredTier string) *Error {
	return &Error{Kind: KindPermissionDenied, Message: message, RequiredTier: requiredTier}
}

// ProvidersExhausted builds a KindProvidersExhausted error with a
// retry-after hint (§4.3 step 5).
func ProvidersExhausted(message string, retryAfterSeconds int) *Error {
	return &Error{Kind: KindProvidersExhausted, Message: message, RetryAfterSeconds: retryAfterSeconds}
}

// KindOf extracts the Kind of err, defaulting to "internal" for anything not
// constructed through this package — the final user-visible failure mode
// named in §7.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return "internal"
}

// HTTPStatus maps a Kind to the HTTP status the API surfaces it as.
func HTTPStatus(k Kind) int {
	switch k {
	case KindPermissionDenied:
		return 403
	case KindNotFound:
		return 404
	case KindValidation:
		return 422
	case KindConflict:
		return 409
	case KindPoolExhausted, KindProvidersExhausted:
		return 503
	case KindCriticRejection, KindEscalationRequired:
		return 409
	case KindConstitutionMismatch:
		return 409
	case KindInvariantViolation:
		return 500
	default:
		return 500
	}
}
