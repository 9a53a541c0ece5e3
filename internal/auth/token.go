// Package auth provides the stateless token codec used by the session layer:
// HS256 access tokens, opaque refresh tokens and single-use password-reset
// tokens.  The signing secret is injected at construction from configuration;
// there is no process-wide key.
package auth

import (
	"crypto/rand"   // secure random generation for opaque tokens
	"crypto/sha256" // SHA-256 hashing of refresh/reset tokens
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by VerifyAccessToken for any token that fails
// signature, expiry or claim-shape checks.  Callers do not learn which check
// failed.
var ErrInvalidToken = errors.New("invalid or expired token")

// AccessToken is a signed JWT along with its expiry.  Access tokens are
// short-lived and carried in the Authorization header on every authenticated
// request.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is a long-lived opaque token used to obtain new access
// tokens.  Raw is returned to the client exactly once; storage keeps only
// the SHA-256 hash, so a stolen sessions table cannot mint sessions.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// Identity is the result of verifying an access token.
type Identity struct {
	UserID  string
	IsAdmin bool
}

// TokenCodec signs and verifies access tokens.  It holds no mutable state
// and is safe for concurrent use.
type TokenCodec struct {
	secret    []byte
	accessTTL time.Duration
}

// NewTokenCodec builds a codec from the configured signing secret and the
// access token TTL in minutes.
func NewTokenCodec(secret string, accessTTLMin int) *TokenCodec {
	return &TokenCodec{
		secret:    []byte(secret),
		accessTTL: time.Duration(accessTTLMin) * time.Minute,
	}
}

// NewAccessToken builds and signs an HS256 JWT for a user.  Claims: subject
// (sub) holds the user ID, typ marks the token class so refresh-shaped JWTs
// can never pass an access check, adm carries the admin flag, exp and iat
// bound the lifetime.
func (c *TokenCodec) NewAccessToken(userID string, isAdmin bool) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(c.accessTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"typ": "access",
		"adm": isAdmin,
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(c.secret)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// VerifyAccessToken checks signature and expiry and extracts the caller's
// identity.  It is side-effect-free and never touches storage; session
// revocation is enforced on the refresh path, not here.
func (c *TokenCodec) VerifyAccessToken(raw string) (Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything other than HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	if typ, _ := claims["typ"].(string); typ != "access" {
		return Identity{}, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, ErrInvalidToken
	}
	adm, _ := claims["adm"].(bool)
	return Identity{UserID: sub, IsAdmin: adm}, nil
}

// NewRefreshToken returns a cryptographically random opaque token and its
// expiration.  The ttlDays parameter controls how long the session stays
// refreshable.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
	raw, err := randomHex(48) // 48 bytes -> 96 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}, nil
}

// NewResetToken returns a random single-use password-reset token and its
// expiry (ttlMin minutes from now).  Like refresh tokens, only the hash is
// stored.
func NewResetToken(ttlMin int) (raw string, exp time.Time, err error) {
	raw, err = randomHex(32)
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute), nil
}

// HashToken returns the SHA-256 hash of an opaque token as a hex string.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
