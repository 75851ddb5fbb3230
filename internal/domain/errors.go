package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when a trip document or key fails an invariant
// (duplicate id, negative amount, base rate not 1, unknown enum value).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrUpstream is returned by proxy services when a third-party API fails or
// answers with something unusable. Handlers map it to HTTP 502.
var ErrUpstream = errors.New("upstream error")

// ErrNotConfigured is returned when a proxy service has no API key.
var ErrNotConfigured = errors.New("not configured")

// ErrPlanRestricted is returned by the flight lookup when the primary
// provider refuses the request for plan reasons and no fallback key exists.
// Handlers map it to HTTP 402.
var ErrPlanRestricted = errors.New("plan restricted")
