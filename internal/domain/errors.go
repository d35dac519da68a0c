package domain

import "errors"

var (
	// ErrValidation marks caller mistakes: missing fields, invalid state
	// transitions, malformed input. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a concurrent-writer race that exhausted its
	// internal retry/fallback policy. Safe to retry.
	ErrConflict = errors.New("conflict")

	// ErrDenied is the generic portal denial. Callers see only this;
	// the specific reason (bad token, expired link, exhausted passcode)
	// is logged server-side.
	ErrDenied = errors.New("access denied")

	// ErrExternal marks a render or notify collaborator failure.
	ErrExternal = errors.New("external dependency error")

	// ErrNotProvisioned is returned by store adapters when the backing
	// table does not exist yet (bootstrap condition). Decided by the
	// adapter, never by parsing error text upstream.
	ErrNotProvisioned = errors.New("store not provisioned")
)
