// Package core holds the sentinel errors shared across the planning
// components. Callers classify failures with errors.Is rather than string
// matching.
package core

import "errors"

var (
	// ErrInvalidScore marks an importance, urgency, energy or stress value
	// outside the 1-10 scale.
	ErrInvalidScore = errors.New("score out of range")

	// ErrInvalidInput marks a request that fails its input contract before
	// any work is attempted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderTimeout marks an AI provider call that exhausted its
	// per-attempt deadline. Absorbed by the breakdown fallback, never
	// surfaced to callers.
	ErrProviderTimeout = errors.New("provider timed out")

	// ErrProviderParse marks a provider response that did not contain a
	// usable plan. Absorbed by the breakdown fallback.
	ErrProviderParse = errors.New("provider response not parseable")

	// ErrIncompleteSnapshot marks a workload snapshot missing signals the
	// detector needs. The detector reports unknown risk instead of
	// returning this to callers.
	ErrIncompleteSnapshot = errors.New("workload snapshot incomplete")

	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired marks a session that ended, was abandoned for
	// inactivity, or was closed. The caller should start a new one.
	ErrSessionExpired = errors.New("session expired")
)
