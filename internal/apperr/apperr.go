// Package apperr defines the distinct error kinds named in the error
// handling design: sentinel values wrapped with context at each boundary
// rather than ad-hoc strings, so callers can branch with errors.Is.
package apperr

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrMalformedPayload = errors.New("malformed_payload")
	ErrProviderTimeout  = errors.New("provider_timeout")
	ErrProviderError    = errors.New("provider_error")
	ErrGatewayFailure   = errors.New("gateway_failure")
	ErrLimitExceeded    = errors.New("limit_exceeded")
	ErrBreakerBlocked   = errors.New("breaker_blocked_entry")
	ErrPriceStale       = errors.New("price_stale")
	ErrInvalidConfig    = errors.New("invalid_config")
	ErrNoDraft          = errors.New("no_draft")
	ErrInternal         = errors.New("internal_error")
	ErrNotFound          = errors.New("not_found")
)
