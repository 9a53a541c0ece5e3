// Package lifecycle derives an anchor's effective status from its stored
// timestamps and counters.  ACTIVE/EXPIRED are never trusted from storage:
// they are recomputed on every read so that no background sweep job is
// needed and no clock-skew window exists between a sweep and a real-time
// check.  Only LOCKED and FLAGGED — set administratively or by an external
// moderation collaborator — are honored as stored.
package lifecycle

import (
	"time"

	"github.com/anchorapp/anchor-server/internal/model"
)

// Status is the effective lifecycle state of an anchor at a point in time.
type Status int

const (
	// Active means the anchor is reachable and unlockable.
	Active Status = iota
	// Expired covers both a passed expiration_time and an exhausted unlock
	// quota; in either case the anchor can no longer be unlocked.
	Expired
	// NotYetActive means activation_time lies in the future.  Treated the
	// same as Expired for unlock purposes but reported distinctly so the
	// client can render a different message.
	NotYetActive
	// Locked is the stored administrative override.
	Locked
	// Flagged is the stored moderation override.
	Flagged
)

// String returns the wire representation of the status.
func (s Status) String() string {
	switch s {
	case Expired:
		return model.StatusExpired
	case NotYetActive:
		return "NOT_YET_ACTIVE"
	case Locked:
		return model.StatusLocked
	case Flagged:
		return model.StatusFlagged
	default:
		return model.StatusActive
	}
}

// EffectiveStatus is a pure function of (anchor, now).  Administrative
// overrides win over everything; then expiration, then pending activation,
// then quota exhaustion.
func EffectiveStatus(a *model.Anchor, now time.Time) Status {
	switch a.Status {
	case model.StatusLocked:
		return Locked
	case model.StatusFlagged:
		return Flagged
	}
	if a.ExpirationTime != nil && !now.Before(*a.ExpirationTime) {
		return Expired
	}
	if a.ActivationTime != nil && now.Before(*a.ActivationTime) {
		return NotYetActive
	}
	if a.MaxUnlock != nil && a.CurrentUnlock >= *a.MaxUnlock {
		return Expired
	}
	return Active
}
