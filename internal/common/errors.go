// Package common defines shared constants and sentinel errors used across
// the agent, the page relay and the CLI. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound      = errors.New("not found")
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// Relay errors (backend a).
	ErrNoRelay = errors.New("no reachable page relay")
	ErrTimeout = errors.New("request timed out")

	// Value errors: present but not decodable as the expected shape.
	ErrParse = errors.New("parse error")

	// Isolation errors: a lookup would have substituted a non-active user.
	ErrIsolationViolation = errors.New("isolation violation")

	// Transport / auth errors.
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)
