package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/anchorapp/anchor-server/internal/model"
)

// UserRepo is the credential store: it persists user identity and password
// hashes and backs every Session Manager operation.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = `user_id, email, username, password_hash, bio, avatar_url,
	is_ghost_mode, is_admin, oauth_provider, oauth_provider_id,
	reset_token_hash, reset_token_expires_at, last_login, created_at, updated_at`

// Create inserts a new user row.  The caller supplies the UUID and either a
// password hash or an OAuth identity; the database's unique indexes on email
// and username are the last line of defense against races, surfaced as
// ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (user_id, email, username, password_hash, oauth_provider, oauth_provider_id)
		 VALUES (?,?,?,?,?,?)`,
		u.ID, u.Email, u.Username, u.PasswordHash, u.OAuthProvider, u.OAuthProviderID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetByEmail fetches a user by normalized email.  Returns ErrNotFound when
// no account exists.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by UUID.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE user_id=? LIMIT 1", id)
}

// GetByOAuth fetches the user registered for a (provider, provider_id) pair.
func (r *UserRepo) GetByOAuth(ctx context.Context, provider, providerID string) (*model.User, error) {
	return r.getOne(ctx,
		"SELECT "+userColumns+" FROM users WHERE oauth_provider=? AND oauth_provider_id=? LIMIT 1",
		provider, providerID)
}

// UsernameExists reports whether any account holds the given username.  Used
// when generating a unique username for first-time OAuth logins.
func (r *UserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE username=? LIMIT 1", username).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateLastLogin stamps a successful authentication.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET last_login=UTC_TIMESTAMP() WHERE user_id=?", userID)
	return err
}

// ProfileUpdate carries the optional profile fields of a PATCH; nil means
// "leave unchanged".
type ProfileUpdate struct {
	Username    *string
	Email       *string
	Bio         *string
	AvatarURL   *string
	IsGhostMode *bool
}

// UpdateProfile applies only the provided fields.  Email and username
// uniqueness against *other* accounts must be checked by the caller first;
// the unique indexes still backstop races and surface as ErrConflict.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) error {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	if upd.Username != nil {
		sets = append(sets, "username=?")
		args = append(args, *upd.Username)
	}
	if upd.Email != nil {
		sets = append(sets, "email=?")
		args = append(args, strings.ToLower(strings.TrimSpace(*upd.Email)))
	}
	if upd.Bio != nil {
		sets = append(sets, "bio=?")
		args = append(args, *upd.Bio)
	}
	if upd.AvatarURL != nil {
		sets = append(sets, "avatar_url=?")
		args = append(args, *upd.AvatarURL)
	}
	if upd.IsGhostMode != nil {
		sets = append(sets, "is_ghost_mode=?")
		args = append(args, *upd.IsGhostMode)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, userID)
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE user_id=?", args...)
	if err != nil && isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// EmailTakenByOther reports whether a different account already uses email.
func (r *UserRepo) EmailTakenByOther(ctx context.Context, email, userID string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE email=? AND user_id<>? LIMIT 1", email, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UsernameTakenByOther reports whether a different account holds username.
func (r *UserRepo) UsernameTakenByOther(ctx context.Context, username, userID string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE username=? AND user_id<>? LIMIT 1", username, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetResetToken attaches a hashed single-use reset token to the account with
// the given email.  When no such account exists the statement affects zero
// rows and no error is returned: the caller must respond identically either
// way so the endpoint cannot be used for account enumeration.
func (r *UserRepo) SetResetToken(ctx context.Context, email, tokenHash string, exp time.Time) error {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash=?, reset_token_expires_at=? WHERE email=?",
		tokenHash, exp, email)
	return err
}

// ConsumeResetToken sets the new password hash and clears the reset token in
// one conditional statement.  The token match, expiry check, password write
// and token clear are a single atomic unit, so a reset token can never be
// replayed.  Returns ErrInvalidResetToken when the token is unknown, already
// consumed, or expired.
func (r *UserRepo) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash=?, reset_token_hash=NULL, reset_token_expires_at=NULL
		 WHERE reset_token_hash=? AND reset_token_expires_at > UTC_TIMESTAMP()`,
		newPasswordHash, tokenHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidResetToken
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...interface{}) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx, query, args...)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// scanUser converts one users row into a model.User, mapping NULL columns to
// nil pointers.
func scanUser(row *sql.Row) (*model.User, error) {
	var (
		u            model.User
		passwordHash sql.NullString
		bio          sql.NullString
		avatarURL    sql.NullString
		provider     sql.NullString
		providerID   sql.NullString
		resetHash    sql.NullString
		resetExp     sql.NullTime
		lastLogin    sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &passwordHash, &bio, &avatarURL,
		&u.IsGhostMode, &u.IsAdmin, &provider, &providerID,
		&resetHash, &resetExp, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = nullStr(passwordHash)
	u.Bio = nullStr(bio)
	u.AvatarURL = nullStr(avatarURL)
	u.OAuthProvider = nullStr(provider)
	u.OAuthProviderID = nullStr(providerID)
	u.ResetTokenHash = nullStr(resetHash)
	if resetExp.Valid {
		t := resetExp.Time
		u.ResetTokenExpiresAt = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

func nullStr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// isDuplicateKey detects MySQL error 1062 (duplicate entry for a unique key).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
