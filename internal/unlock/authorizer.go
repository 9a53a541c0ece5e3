// Package unlock implements the anchor access authorization flow: lifecycle
// gate, visibility gate, geofence gate, then atomic quota consumption and
// content retrieval.  The gates run in a fixed order with visibility strictly
// before geofence, so a user who may not see an anchor at all never learns
// whether they were standing in range of it.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anchorapp/anchor-server/internal/geo"
	"github.com/anchorapp/anchor-server/internal/lifecycle"
	"github.com/anchorapp/anchor-server/internal/model"
)

// Denial errors, one per distinct client-facing code.  ErrNotFound and
// ErrQuotaExhausted come from the store (repository sentinels pass through
// unchanged).
var (
	ErrForbidden          = errors.New("anchor not visible to this user")
	ErrOutOfRange         = errors.New("outside the anchor's unlock radius")
	ErrAnchorExpired      = errors.New("anchor has expired")
	ErrAnchorLocked       = errors.New("anchor is locked")
	ErrAnchorFlagged      = errors.New("anchor is flagged")
	ErrAnchorNotYetActive = errors.New("anchor is not yet active")
)

// AnchorStore is the storage contract the authorizer needs.  GetByID returns
// repository.ErrNotFound for unknown anchors.  ConsumeAndFetch must perform
// the quota check, the increment, and the content read as one atomic unit,
// returning repository.ErrQuotaExhausted when the budget is spent and
// repository.ErrNotFound when the anchor vanished or holds no content (an
// empty anchor spends no quota); it is the per-anchor serialization boundary
// required by the current_unlock invariant.
type AnchorStore interface {
	GetByID(ctx context.Context, id string) (*model.Anchor, error)
	ConsumeAndFetch(ctx context.Context, anchorID string) ([]model.ContentItem, error)
}

// MembershipChecker answers CIRCLE_ONLY visibility questions.  Circle and
// group management live outside this core; implementations typically call an
// external membership service.
type MembershipChecker interface {
	IsMember(ctx context.Context, anchorID, userID string) (bool, error)
}

// Authorizer gates unlock attempts and consumes quota.  It holds no state of
// its own and is safe for concurrent use.
type Authorizer struct {
	Store      AnchorStore
	Membership MembershipChecker
}

// NewAuthorizer wires an authorizer; both dependencies must be non-nil.
func NewAuthorizer(store AnchorStore, membership MembershipChecker) *Authorizer {
	if store == nil || membership == nil {
		panic("nil dependency passed to NewAuthorizer")
	}
	return &Authorizer{Store: store, Membership: membership}
}

// AttemptUnlock runs the full authorization pipeline for one unlock attempt
// and, when every gate passes, durably spends one unit of quota and returns
// the anchor's content items.  The reported coordinate is used only for this
// single proximity check and is never persisted, which is what makes ghost
// mode safe to honor at outer layers.
func (a *Authorizer) AttemptUnlock(ctx context.Context, anchorID, userID string, reported geo.Coordinate, now time.Time) ([]model.ContentItem, error) {
	anchor, err := a.Store.GetByID(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	// Lifecycle gate.  The quota-derived EXPIRED here may be stale under
	// concurrency; the atomic step below re-checks authoritatively.
	switch lifecycle.EffectiveStatus(anchor, now) {
	case lifecycle.Expired:
		return nil, ErrAnchorExpired
	case lifecycle.NotYetActive:
		return nil, ErrAnchorNotYetActive
	case lifecycle.Locked:
		return nil, ErrAnchorLocked
	case lifecycle.Flagged:
		return nil, ErrAnchorFlagged
	}

	// Visibility gate.  Must run before the geofence check.
	switch anchor.Visibility {
	case model.VisibilityPublic:
		// any authenticated user passes
	case model.VisibilityPrivate:
		if userID != anchor.CreatorID {
			return nil, ErrForbidden
		}
	case model.VisibilityCircleOnly:
		if userID != anchor.CreatorID {
			member, err := a.Membership.IsMember(ctx, anchorID, userID)
			if err != nil {
				return nil, fmt.Errorf("membership lookup: %w", err)
			}
			if !member {
				return nil, ErrForbidden
			}
		}
	default:
		return nil, ErrForbidden
	}

	// Geofence gate.  Boundary inclusive.
	center := geo.Coordinate{Latitude: anchor.Latitude, Longitude: anchor.Longitude}
	if !geo.WithinRadius(center, reported, float64(anchor.UnlockRadius)) {
		return nil, ErrOutOfRange
	}

	return a.Store.ConsumeAndFetch(ctx, anchorID)
}
