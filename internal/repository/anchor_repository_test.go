package repository

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestAnchorUpdateAssignmentsClearsNullableColumns(t *testing.T) {
	upd := AnchorUpdate{
		ClearMaxUnlock:      true,
		ClearActivationTime: true,
		ClearExpirationTime: true,
	}
	sets, args, err := upd.assignments()
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	joined := strings.Join(sets, ", ")
	for _, col := range []string{"max_unlock=?", "activation_time=?", "expiration_time=?"} {
		if !strings.Contains(joined, col) {
			t.Errorf("SET clause %q missing %q", joined, col)
		}
	}
	if len(args) != 3 {
		t.Fatalf("got %d args, want 3", len(args))
	}
	for i, a := range args {
		if a != nil {
			t.Errorf("arg %d = %v, want NULL", i, a)
		}
	}
}

func TestAnchorUpdateClearWinsOverValue(t *testing.T) {
	n := 5
	when := time.Now().UTC()
	upd := AnchorUpdate{
		MaxUnlock:           &n,
		ActivationTime:      &when,
		ClearMaxUnlock:      true,
		ClearActivationTime: true,
	}
	sets, args, err := upd.assignments()
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("got %d assignments, want 2: %v", len(sets), sets)
	}
	for i, a := range args {
		if a != nil {
			t.Errorf("arg %d = %v, want NULL", i, a)
		}
	}
}

func TestAnchorUpdateAssignmentsValues(t *testing.T) {
	title := "bridge cache"
	n := 10
	upd := AnchorUpdate{Title: &title, MaxUnlock: &n, Tags: []string{"art", "hidden"}}
	sets, args, err := upd.assignments()
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	want := []string{"title=?", "max_unlock=?", "tags=?"}
	if len(sets) != len(want) {
		t.Fatalf("sets = %v, want %v", sets, want)
	}
	for i := range want {
		if sets[i] != want[i] {
			t.Errorf("sets[%d] = %q, want %q", i, sets[i], want[i])
		}
	}
	if args[0] != "bridge cache" || args[1] != 10 {
		t.Errorf("unexpected args %v", args)
	}
	if tags, ok := args[2].(string); !ok || tags != `["art","hidden"]` {
		t.Errorf("tags arg = %v, want JSON array", args[2])
	}
}

func TestBoundingBoxPlain(t *testing.T) {
	box := boundingBox(48.85, 2.35, 5)
	if box.wraps || box.allLon {
		t.Fatalf("unexpected wrap flags: %+v", box)
	}
	if box.latLo >= 48.85 || box.latHi <= 48.85 {
		t.Errorf("latitude band %v..%v does not bracket the center", box.latLo, box.latHi)
	}
	if box.lonLo >= 2.35 || box.lonHi <= 2.35 {
		t.Errorf("longitude range %v..%v does not bracket the center", box.lonLo, box.lonHi)
	}
}

// A search centered just west of the 180th meridian must cover points just
// east of it, which carry longitudes near -180.
func TestBoundingBoxWrapsEast(t *testing.T) {
	box := boundingBox(-16.5, 179.99, 5)
	if !box.wraps {
		t.Fatalf("expected wrap for box at the antimeridian: %+v", box)
	}
	// Taveuni side: a point at -179.98 is ~3 km away and must satisfy
	// (longitude >= lonLo OR longitude <= lonHi).
	p := -179.98
	if !(p >= box.lonLo || p <= box.lonHi) {
		t.Errorf("point %v outside wrapped range [%v, 180] U [-180, %v]", p, box.lonLo, box.lonHi)
	}
	if box.lonHi <= -180 || box.lonHi >= 0 {
		t.Errorf("wrapped lonHi = %v, want a value just above -180", box.lonHi)
	}
}

func TestBoundingBoxWrapsWest(t *testing.T) {
	box := boundingBox(-16.5, -179.99, 5)
	if !box.wraps {
		t.Fatalf("expected wrap for box at the antimeridian: %+v", box)
	}
	p := 179.98
	if !(p >= box.lonLo || p <= box.lonHi) {
		t.Errorf("point %v outside wrapped range [%v, 180] U [-180, %v]", p, box.lonLo, box.lonHi)
	}
}

// Near a pole the longitude delta blows up past 180 degrees; the filter is
// dropped rather than emitting a range wider than the domain.
func TestBoundingBoxPolarSpansAllLongitudes(t *testing.T) {
	box := boundingBox(89.9999, 0, 250)
	if !box.allLon {
		t.Fatalf("expected full longitude coverage near the pole: %+v", box)
	}
	if box.lonLo != -180 || box.lonHi != 180 {
		t.Errorf("full box longitude = [%v, %v], want [-180, 180]", box.lonLo, box.lonHi)
	}
	if math.IsNaN(box.latLo) || math.IsNaN(box.latHi) {
		t.Errorf("latitude band is NaN: %+v", box)
	}
}
