package model

import "time"

// User represents a row in the `users` table.  Accounts are created either
// through email/password registration or on first OAuth login; the invariant
// is that at least one authentication method is present (PasswordHash for
// local accounts, OAuthProvider/OAuthProviderID for OAuth accounts).  JSON
// tags are intentionally absent: handlers define their own response types.
//
// Fields:
//  ID                  – UUID primary key (users.user_id).
//  Email               – unique email address.
//  Username            – unique display name.
//  PasswordHash        – bcrypt hash; nil for OAuth-only accounts.
//  Bio                 – optional profile text.
//  AvatarURL           – optional avatar location (opaque blob URL).
//  IsGhostMode         – suppresses persistence of the user's location beyond
//                        the single proximity check during unlock.
//  IsAdmin             – administrative accounts may delete any anchor.
//  OAuthProvider       – e.g. "google"; nil for local accounts.
//  OAuthProviderID     – provider-scoped subject identifier.
//  ResetTokenHash      – SHA-256 of the active password-reset token, nil if none.
//  ResetTokenExpiresAt – expiry of the reset token.
//  LastLogin           – last successful authentication.
type User struct {
	ID                  string
	Email               string
	Username            string
	PasswordHash        *string
	Bio                 *string
	AvatarURL           *string
	IsGhostMode         bool
	IsAdmin             bool
	OAuthProvider       *string
	OAuthProviderID     *string
	ResetTokenHash      *string
	ResetTokenExpiresAt *time.Time
	LastLogin           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
