package queue

// AnchorUnlockedEvent is emitted after an unlock attempt passes every gate
// and the quota increment commits.  It carries no coordinates: the reported
// location is used for the proximity check only and never leaves the
// request.
type AnchorUnlockedEvent struct {
	AnchorID     string `json:"anchor_id"`
	AnchorTitle  string `json:"anchor_title"`
	CreatorID    string `json:"creator_id"`
	UserID       string `json:"user_id"`
	ContentItems int    `json:"content_items"`
	UnlockedAt   string `json:"unlocked_at"` // RFC3339 UTC
}
