// Package repository implements persistence over MySQL for users, sessions,
// anchors and content.  Sentinel errors defined here let handlers map
// storage outcomes onto the stable error codes of the API without inspecting
// driver errors.
package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist.  Handlers
// translate this into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness constraint would be violated,
// e.g. a duplicate email or username.  Handlers translate this into 409.
var ErrConflict = errors.New("conflict")

// ErrQuotaExhausted is returned by the atomic unlock step when the anchor's
// max_unlock budget is already spent.  An unlock attempt that loses the race
// at the conditional increment receives this rather than a stale success.
var ErrQuotaExhausted = errors.New("unlock quota exhausted")

// ErrInvalidResetToken is returned when a password-reset token is unknown,
// expired, or already consumed.
var ErrInvalidResetToken = errors.New("invalid or expired reset token")
