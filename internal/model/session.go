package model

import "time"

// Session models an entry in the `user_sessions` table.  A session is
// created at login/registration/OAuth and carries a long-lived opaque
// refresh token.  The plain token is returned to the client once; only its
// SHA-256 hash is persisted.  A session is usable iff RevokedAt is nil and
// ExpiresAt is in the future.
//
// Fields:
//  ID        – UUID primary key (user_sessions.session_id).
//  UserID    – owner of the session.
//  TokenHash – SHA-256 hex digest of the refresh token value.
//  Device    – optional free-form client descriptor.
//  ExpiresAt – expiration timestamp of the refresh token.
//  RevokedAt – when the session was revoked (nil if still active).
//  CreatedAt – timestamp of creation.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	Device    *string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
