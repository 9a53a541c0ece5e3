// Package circle talks to the external membership service that owns circle
// (group) data.  This core stores no membership rows of its own; CIRCLE_ONLY
// visibility is resolved by asking the collaborator per (anchor, user) pair.
package circle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client implements the membership lookup over HTTP.  The collaborator is
// expected to answer GET {base}/memberships?anchor_id=...&user_id=... with a
// JSON body {"member": bool}.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a membership client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// IsMember asks the membership service whether userID belongs to the circle
// the anchor is shared with.  Any transport or decode failure is returned as
// an error; callers treat it as a server-side failure, never as "not a
// member".
func (c *Client) IsMember(ctx context.Context, anchorID, userID string) (bool, error) {
	q := url.Values{}
	q.Set("anchor_id", anchorID)
	q.Set("user_id", userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/memberships?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("membership service returned %d", resp.StatusCode)
	}
	var body struct {
		Member bool `json:"member"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, err
	}
	return body.Member, nil
}

// DenyAll is the membership checker used when no membership service is
// configured: every CIRCLE_ONLY anchor is visible to its creator only.
type DenyAll struct{}

func (DenyAll) IsMember(context.Context, string, string) (bool, error) { return false, nil }
