package unlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anchorapp/anchor-server/internal/geo"
	"github.com/anchorapp/anchor-server/internal/model"
	"github.com/anchorapp/anchor-server/internal/repository"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory AnchorStore.  ConsumeAndFetch mirrors the
// database contract: the quota check and increment happen under one lock so
// concurrent callers are linearized exactly like rows under the conditional
// UPDATE.
type memStore struct {
	mu      sync.Mutex
	anchors map[string]*model.Anchor
	content map[string][]model.ContentItem
}

func newMemStore(anchors ...*model.Anchor) *memStore {
	s := &memStore{
		anchors: make(map[string]*model.Anchor),
		content: make(map[string][]model.ContentItem),
	}
	for _, a := range anchors {
		s.anchors[a.ID] = a
		s.content[a.ID] = []model.ContentItem{{ID: a.ID + "-c1", AnchorID: a.ID, ContentType: model.ContentText}}
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id string) (*model.Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.anchors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) ConsumeAndFetch(_ context.Context, anchorID string) ([]model.ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.anchors[anchorID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.MaxUnlock != nil && a.CurrentUnlock >= *a.MaxUnlock {
		return nil, repository.ErrQuotaExhausted
	}
	items := s.content[anchorID]
	if len(items) == 0 {
		// Mirrors the repository: an empty anchor rolls back without
		// spending quota.
		return nil, repository.ErrNotFound
	}
	a.CurrentUnlock++
	return items, nil
}

type staticMembership bool

func (m staticMembership) IsMember(context.Context, string, string) (bool, error) {
	return bool(m), nil
}

func intPtr(n int) *int              { return &n }
func timePtr(t time.Time) *time.Time { return &t }

// testAnchor returns a public, unbounded, active anchor at a fixed location.
func testAnchor() *model.Anchor {
	return &model.Anchor{
		ID:           "anchor-1",
		CreatorID:    "creator",
		Title:        "test",
		Latitude:     40.4237,
		Longitude:    -86.9212,
		Status:       model.StatusActive,
		Visibility:   model.VisibilityPublic,
		UnlockRadius: 50,
	}
}

func atAnchor(a *model.Anchor) geo.Coordinate {
	return geo.Coordinate{Latitude: a.Latitude, Longitude: a.Longitude}
}

func TestUnlockSuccess(t *testing.T) {
	a := testAnchor()
	store := newMemStore(a)
	body := "hello"
	store.content[a.ID] = []model.ContentItem{{ID: "c1", AnchorID: a.ID, ContentType: model.ContentText, Body: &body}}

	auth := NewAuthorizer(store, staticMembership(false))
	items, err := auth.AttemptUnlock(context.Background(), a.ID, "visitor", atAnchor(a), testNow)
	if err != nil {
		t.Fatalf("AttemptUnlock: %v", err)
	}
	if len(items) != 1 || items[0].ID != "c1" {
		t.Errorf("unexpected content: %+v", items)
	}
	if store.anchors[a.ID].CurrentUnlock != 1 {
		t.Errorf("current_unlock = %d, want 1", store.anchors[a.ID].CurrentUnlock)
	}
}

// An anchor with zero content rows reports NotFound and spends no quota.
func TestUnlockEmptyAnchor(t *testing.T) {
	a := testAnchor()
	a.MaxUnlock = intPtr(5)
	store := newMemStore(a)
	store.content[a.ID] = nil

	auth := NewAuthorizer(store, staticMembership(false))
	_, err := auth.AttemptUnlock(context.Background(), a.ID, "visitor", atAnchor(a), testNow)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if got := store.anchors[a.ID].CurrentUnlock; got != 0 {
		t.Errorf("current_unlock = %d, want 0", got)
	}
}

func TestUnlockUnknownAnchor(t *testing.T) {
	auth := NewAuthorizer(newMemStore(), staticMembership(false))
	_, err := auth.AttemptUnlock(context.Background(), "nope", "visitor", geo.Coordinate{}, testNow)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUnlockLifecycleDenials(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.Anchor)
		want   error
	}{
		{"expired", func(a *model.Anchor) { a.ExpirationTime = timePtr(testNow.Add(-time.Hour)) }, ErrAnchorExpired},
		{"not yet active", func(a *model.Anchor) { a.ActivationTime = timePtr(testNow.Add(time.Hour)) }, ErrAnchorNotYetActive},
		{"locked", func(a *model.Anchor) { a.Status = model.StatusLocked }, ErrAnchorLocked},
		{"flagged", func(a *model.Anchor) { a.Status = model.StatusFlagged }, ErrAnchorFlagged},
		{"quota already spent", func(a *model.Anchor) { a.MaxUnlock = intPtr(2); a.CurrentUnlock = 2 }, ErrAnchorExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := testAnchor()
			tc.mutate(a)
			auth := NewAuthorizer(newMemStore(a), staticMembership(false))
			_, err := auth.AttemptUnlock(context.Background(), a.ID, "visitor", atAnchor(a), testNow)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

// A stranger at the exact anchor coordinate of a PRIVATE anchor must get
// Forbidden, not OutOfRange: visibility is checked before proximity.
func TestPrivateAnchorVisibilityBeforeGeofence(t *testing.T) {
	a := testAnchor()
	a.Visibility = model.VisibilityPrivate
	auth := NewAuthorizer(newMemStore(a), staticMembership(false))

	_, err := auth.AttemptUnlock(context.Background(), a.ID, "stranger", atAnchor(a), testNow)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}

	// The creator at the same spot passes.
	if _, err := auth.AttemptUnlock(context.Background(), a.ID, "creator", atAnchor(a), testNow); err != nil {
		t.Errorf("creator unlock failed: %v", err)
	}
}

func TestCircleOnlyVisibility(t *testing.T) {
	a := testAnchor()
	a.Visibility = model.VisibilityCircleOnly

	denied := NewAuthorizer(newMemStore(a), staticMembership(false))
	if _, err := denied.AttemptUnlock(context.Background(), a.ID, "outsider", atAnchor(a), testNow); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-member err = %v, want ErrForbidden", err)
	}

	b := testAnchor()
	b.Visibility = model.VisibilityCircleOnly
	allowed := NewAuthorizer(newMemStore(b), staticMembership(true))
	if _, err := allowed.AttemptUnlock(context.Background(), b.ID, "member", atAnchor(b), testNow); err != nil {
		t.Errorf("member unlock failed: %v", err)
	}
}

func TestOutOfRange(t *testing.T) {
	a := testAnchor() // radius 50m
	auth := NewAuthorizer(newMemStore(a), staticMembership(false))

	// ~111m north of the anchor.
	far := geo.Coordinate{Latitude: a.Latitude + 0.001, Longitude: a.Longitude}
	_, err := auth.AttemptUnlock(context.Background(), a.ID, "visitor", far, testNow)
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
}

// Two racers, one remaining unlock: exactly one succeeds and the other gets
// QuotaExhausted.
func TestConcurrentUnlockSingleQuota(t *testing.T) {
	a := testAnchor()
	a.MaxUnlock = intPtr(1)
	store := newMemStore(a)
	auth := NewAuthorizer(store, staticMembership(false))

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := auth.AttemptUnlock(context.Background(), a.ID, "visitor", atAnchor(a), testNow)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok, exhausted int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrQuotaExhausted):
			exhausted++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || exhausted != 1 {
		t.Errorf("got %d successes and %d quota denials, want 1 and 1", ok, exhausted)
	}
	if got := store.anchors[a.ID].CurrentUnlock; got != 1 {
		t.Errorf("current_unlock = %d, want 1", got)
	}
}

// Many racers against a bounded quota: successes equal the budget and the
// counter never overshoots.
func TestConcurrentUnlockInvariant(t *testing.T) {
	const attempts = 50
	const budget = 10

	a := testAnchor()
	a.MaxUnlock = intPtr(budget)
	store := newMemStore(a)
	auth := NewAuthorizer(store, staticMembership(false))

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := auth.AttemptUnlock(context.Background(), a.ID, "visitor", atAnchor(a), testNow)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
		} else if !errors.Is(err, repository.ErrQuotaExhausted) && !errors.Is(err, ErrAnchorExpired) {
			// Racers that read the counter after exhaustion are turned away
			// at the lifecycle gate instead; both denials are acceptable.
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != budget {
		t.Errorf("%d unlocks succeeded, want exactly %d", ok, budget)
	}
	if got := store.anchors[a.ID].CurrentUnlock; got > budget {
		t.Errorf("current_unlock = %d overshoots max_unlock = %d", got, budget)
	}
}
