package model

import "time"

// Anchor status values.  LOCKED and FLAGGED are administrative overrides
// stored verbatim in the anchors.status column.  ACTIVE and EXPIRED are
// derived from timestamps and counters at read time by the lifecycle
// package; the stored column is not authoritative for them.
const (
	StatusActive  = "ACTIVE"
	StatusExpired = "EXPIRED"
	StatusLocked  = "LOCKED"
	StatusFlagged = "FLAGGED"
)

// Anchor visibility scopes.
const (
	VisibilityPublic     = "PUBLIC"
	VisibilityPrivate    = "PRIVATE"
	VisibilityCircleOnly = "CIRCLE_ONLY"
)

// Unlock radius bounds in meters.  The default applies when a creator does
// not specify one; requested values outside the bounds are clamped.
const (
	DefaultUnlockRadius = 50
	MinUnlockRadius     = 10
	MaxUnlockRadius     = 100
)

// ClampUnlockRadius forces a requested radius into the supported range.
func ClampUnlockRadius(r int) int {
	if r < MinUnlockRadius {
		return MinUnlockRadius
	}
	if r > MaxUnlockRadius {
		return MaxUnlockRadius
	}
	return r
}

// Anchor represents a row in the `anchors` table: a piece of geofenced,
// lifecycle-bounded content binding owned by its creator.
//
// CurrentUnlock is monotonically non-decreasing and must never exceed
// MaxUnlock when MaxUnlock is non-nil.  That invariant is enforced by the
// storage layer with a conditional increment, never by application-level
// read-then-write.
type Anchor struct {
	ID             string     // anchors.anchor_id (UUID)
	CreatorID      string     // anchors.creator_id
	Title          string     // anchors.title
	Description    *string    // anchors.description
	Latitude       float64    // anchors.latitude
	Longitude      float64    // anchors.longitude
	Altitude       *float64   // anchors.altitude (meters, optional)
	Status         string     // anchors.status (authoritative for LOCKED/FLAGGED only)
	Visibility     string     // anchors.visibility
	UnlockRadius   int        // anchors.unlock_radius (meters)
	MaxUnlock      *int       // anchors.max_unlock (nil = unbounded)
	CurrentUnlock  int        // anchors.current_unlock
	ActivationTime *time.Time // anchors.activation_time
	ExpirationTime *time.Time // anchors.expiration_time
	Tags           []string   // anchors.tags (JSON column)
	CreatedAt      time.Time  // anchors.created_at
	UpdatedAt      time.Time  // anchors.updated_at
}

// ValidVisibility reports whether v is one of the supported scopes.
func ValidVisibility(v string) bool {
	return v == VisibilityPublic || v == VisibilityPrivate || v == VisibilityCircleOnly
}
