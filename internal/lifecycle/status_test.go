package lifecycle

import (
	"testing"
	"time"

	"github.com/anchorapp/anchor-server/internal/model"
)

var now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }
func intPtr(n int) *int              { return &n }

func TestEffectiveStatus(t *testing.T) {
	cases := []struct {
		name   string
		anchor model.Anchor
		want   Status
	}{
		{
			name:   "plain active",
			anchor: model.Anchor{Status: model.StatusActive},
			want:   Active,
		},
		{
			name: "expiration passed",
			anchor: model.Anchor{
				Status:         model.StatusActive,
				ExpirationTime: timePtr(now.Add(-time.Hour)),
			},
			want: Expired,
		},
		{
			name: "expiration exactly now",
			anchor: model.Anchor{
				Status:         model.StatusActive,
				ExpirationTime: timePtr(now),
			},
			want: Expired,
		},
		{
			name: "activation in future",
			anchor: model.Anchor{
				Status:         model.StatusActive,
				ActivationTime: timePtr(now.Add(time.Hour)),
			},
			want: NotYetActive,
		},
		{
			name: "activation reached",
			anchor: model.Anchor{
				Status:         model.StatusActive,
				ActivationTime: timePtr(now.Add(-time.Minute)),
			},
			want: Active,
		},
		{
			name: "quota exhausted",
			anchor: model.Anchor{
				Status:        model.StatusActive,
				MaxUnlock:     intPtr(3),
				CurrentUnlock: 3,
			},
			want: Expired,
		},
		{
			name: "quota remaining",
			anchor: model.Anchor{
				Status:        model.StatusActive,
				MaxUnlock:     intPtr(3),
				CurrentUnlock: 2,
			},
			want: Active,
		},
		{
			name: "unbounded quota",
			anchor: model.Anchor{
				Status:        model.StatusActive,
				CurrentUnlock: 100000,
			},
			want: Active,
		},
		{
			name: "locked overrides time and quota",
			anchor: model.Anchor{
				Status:         model.StatusLocked,
				ExpirationTime: timePtr(now.Add(-time.Hour)),
				MaxUnlock:      intPtr(1),
				CurrentUnlock:  1,
			},
			want: Locked,
		},
		{
			name: "flagged overrides pending activation",
			anchor: model.Anchor{
				Status:         model.StatusFlagged,
				ActivationTime: timePtr(now.Add(time.Hour)),
			},
			want: Flagged,
		},
		{
			name: "expiration wins over pending activation",
			anchor: model.Anchor{
				Status:         model.StatusActive,
				ActivationTime: timePtr(now.Add(time.Hour)),
				ExpirationTime: timePtr(now.Add(-time.Hour)),
			},
			want: Expired,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EffectiveStatus(&tc.anchor, now)
			if got != tc.want {
				t.Errorf("EffectiveStatus = %v, want %v", got, tc.want)
			}
			// Pure function: a second call with the same inputs agrees.
			if again := EffectiveStatus(&tc.anchor, now); again != got {
				t.Errorf("EffectiveStatus not deterministic: %v then %v", got, again)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	pairs := map[Status]string{
		Active:       "ACTIVE",
		Expired:      "EXPIRED",
		NotYetActive: "NOT_YET_ACTIVE",
		Locked:       "LOCKED",
		Flagged:      "FLAGGED",
	}
	for s, want := range pairs {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
