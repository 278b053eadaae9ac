package engine

import (
	"errors"
)

// Engine errors are sentinels so handlers can map them to HTTP responses with
// errors.Is. Everything user-recoverable carries an actionable message.
var (
	// ErrInvalidTransition is returned when a requested status change does
	// not follow an edge of the lifecycle graph.
	ErrInvalidTransition = errors.New("invalid contract status transition")

	// ErrAllocationExhausted means a numbering scope is misconfigured (the
	// reserved set blocks every candidate value). Operator intervention is
	// required; retrying will not help.
	ErrAllocationExhausted = errors.New("contract number allocation exhausted")

	// ErrRateLimited is returned when a party exceeds the hourly budget of
	// verification code sends.
	ErrRateLimited = errors.New("too many code requests, try again later")

	// ErrTooManyAttempts means the current code was invalidated after
	// consecutive mismatches; the party must request a new code.
	ErrTooManyAttempts = errors.New("too many failed attempts, request a new code")

	// ErrCodeExpired is returned for any verification after the code TTL,
	// matching or not.
	ErrCodeExpired = errors.New("verification code expired, request a new code")

	// ErrCodeMismatch is a single failed comparison; the party may retry.
	ErrCodeMismatch = errors.New("verification code does not match")

	// ErrApprovalRejected blocks signing completion after a required
	// approval step was rejected.
	ErrApprovalRejected = errors.New("contract approval was rejected")

	// ErrAlreadySigned is returned when a party with a verified signature
	// attempts to sign again.
	ErrAlreadySigned = errors.New("party has already signed")

	// ErrNoSignableParty guards sending a contract with no reachable party.
	ErrNoSignableParty = errors.New("contract has no party with a contact method")

	// ErrNotFound covers missing contracts, parties and approval steps.
	ErrNotFound = errors.New("not found")

	// ErrDeliveryFailed surfaces an SMS gateway failure. The code remains
	// valid; the caller may retry the send.
	ErrDeliveryFailed = errors.New("failed to deliver verification code")
)
