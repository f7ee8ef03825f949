package errs

import "errors"

// Structural errors: surfaced synchronously, state untouched.
var (
	// ErrValidation marks a malformed input rejected before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrUnknownReference marks a quest/round/request id that is not registered.
	ErrUnknownReference = errors.New("unknown reference")

	// ErrCycle marks a quest definition whose prerequisites would create a cycle.
	ErrCycle = errors.New("prerequisite cycle")
)

// Idempotency-class conditions: absorbed internally and audit-logged,
// since upstream redelivery is an expected operating condition.
var (
	ErrDuplicateIssuance    = errors.New("duplicate issuance")
	ErrDuplicateFulfillment = errors.New("duplicate fulfillment")
)

// ErrIssuanceFailed marks a TokenIssuer boundary failure. No RewardRecord is
// written when it is returned, so a retry with the same source event id is safe.
var ErrIssuanceFailed = errors.New("issuance failed")
