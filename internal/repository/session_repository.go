package repository

import (
	"context"
	"database/sql"
	"time"
)

// SessionRepo persists refresh-token sessions in the `user_sessions` table.
// Only the SHA-256 hash of the token value is stored.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Create inserts a new session row for userID.  Device is an optional
// client descriptor and may be nil.
func (r *SessionRepo) Create(ctx context.Context, sessionID, userID, tokenHash string, device *string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO user_sessions (session_id, user_id, token_hash, device, expires_at)
		 VALUES (?,?,?,?,?)`,
		sessionID, userID, tokenHash, device, exp)
	return err
}

// Validate returns the owning user ID if a non-revoked, non-expired session
// exists for the given token hash; ErrNotFound otherwise.  Revocation state
// is deliberately indistinguishable from an unknown token.
func (r *SessionRepo) Validate(ctx context.Context, tokenHash string) (string, error) {
	var (
		userID    string
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM user_sessions WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if revokedAt.Valid {
		return "", ErrNotFound
	}
	if time.Now().UTC().After(expiresAt) {
		return "", ErrNotFound
	}
	return userID, nil
}

// Revoke marks the session for the given token hash as revoked.  Idempotent:
// revoking an unknown or already-revoked token affects zero rows and
// succeeds.
func (r *SessionRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE user_sessions SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForUser revokes every active session of a user, logging them out
// across all devices.
func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE user_sessions SET revoked_at=UTC_TIMESTAMP() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}
