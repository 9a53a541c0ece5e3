package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/auth"
	"github.com/anchorapp/anchor-server/internal/config"
	"github.com/anchorapp/anchor-server/internal/model"
	"github.com/anchorapp/anchor-server/internal/oauth"
	"github.com/anchorapp/anchor-server/internal/repository"
)

// memCredentials is an in-memory CredentialStore mirroring the conditional
// UPDATE contracts of repository.UserRepo.
type memCredentials struct {
	mu    sync.Mutex
	users map[string]*model.User // keyed by user ID
}

func newMemCredentials() *memCredentials {
	return &memCredentials{users: make(map[string]*model.User)}
}

func (m *memCredentials) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.Email == u.Email || e.Username == u.Username {
			return repository.ErrConflict
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memCredentials) GetByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCredentials) GetByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memCredentials) GetByOAuth(_ context.Context, provider, providerID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.OAuthProvider != nil && *u.OAuthProvider == provider &&
			u.OAuthProviderID != nil && *u.OAuthProviderID == providerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memCredentials) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCredentials) UpdateLastLogin(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		now := time.Now().UTC()
		u.LastLogin = &now
	}
	return nil
}

// SetResetToken matches zero rows silently for unknown emails, like the
// UPDATE it stands in for.
func (m *memCredentials) SetResetToken(_ context.Context, email, tokenHash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			h := tokenHash
			e := exp
			u.ResetTokenHash = &h
			u.ResetTokenExpiresAt = &e
		}
	}
	return nil
}

// ConsumeResetToken sets the password and clears the token in one step iff
// the hash matches an unexpired token, exactly like the single conditional
// UPDATE in the SQL store.
func (m *memCredentials) ConsumeResetToken(_ context.Context, tokenHash, newPasswordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, u := range m.users {
		if u.ResetTokenHash != nil && *u.ResetTokenHash == tokenHash &&
			u.ResetTokenExpiresAt != nil && u.ResetTokenExpiresAt.After(now) {
			h := newPasswordHash
			u.PasswordHash = &h
			u.ResetTokenHash = nil
			u.ResetTokenExpiresAt = nil
			return nil
		}
	}
	return repository.ErrInvalidResetToken
}

type memSession struct {
	userID  string
	exp     time.Time
	revoked bool
}

// memSessions is an in-memory SessionStore keyed by refresh token hash.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*memSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*memSession)}
}

func (m *memSessions) Create(_ context.Context, sessionID, userID, tokenHash string, device *string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = &memSession{userID: userID, exp: exp}
	return nil
}

func (m *memSessions) Validate(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tokenHash]
	if !ok || s.revoked || !s.exp.After(time.Now().UTC()) {
		return "", repository.ErrNotFound
	}
	return s.userID, nil
}

func (m *memSessions) Revoke(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tokenHash]; ok {
		s.revoked = true
	}
	return nil
}

func (m *memSessions) RevokeAllForUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.userID == userID {
			s.revoked = true
		}
	}
	return nil
}

func newTestAuthHandler(t *testing.T) (*AuthHandler, *memCredentials, *memSessions) {
	t.Helper()
	cfg := config.Config{
		Env:            "dev",
		BcryptCost:     4,
		RefreshTTLDays: 7,
		ResetTTLMin:    30,
	}
	users := newMemCredentials()
	sessions := newMemSessions()
	h := NewAuthHandler(cfg, users, sessions, auth.NewTokenCodec("auth-test-secret", 5), oauth.NewGoogleVerifier())
	return h, users, sessions
}

func seedUser(t *testing.T, users *memCredentials, email, username, password string) {
	t.Helper()
	hash, err := auth.HashPassword(password, 4)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	err = users.Create(context.Background(), &model.User{
		ID:           "u-" + username,
		Email:        email,
		Username:     username,
		PasswordHash: &hash,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func callAuth(t *testing.T, h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return m
}

// A reset token must set the password exactly once; replaying it after the
// consuming update has cleared it is rejected.
func TestConfirmPasswordResetTokenSingleUse(t *testing.T) {
	h, users, _ := newTestAuthHandler(t)
	seedUser(t, users, "maya@example.com", "maya", "original-pass-1")

	rec := callAuth(t, h.RequestPasswordReset, `{"email":"maya@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("request reset: status %d, want 200", rec.Code)
	}
	token, _ := decodeBody(t, rec)["reset_token"].(string)
	if token == "" {
		t.Fatal("no reset_token echoed outside prod")
	}

	rec = callAuth(t, h.ConfirmPasswordReset, `{"token":"`+token+`","new_password":"brand-new-pass-2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("first confirm: status %d, body %s", rec.Code, rec.Body.String())
	}

	// New password works, old one does not.
	rec = callAuth(t, h.Login, `{"email":"maya@example.com","password":"brand-new-pass-2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password: status %d", rec.Code)
	}
	rec = callAuth(t, h.Login, `{"email":"maya@example.com","password":"original-pass-1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login with old password: status %d, want 401", rec.Code)
	}

	// Replaying the same token fails: consuming it cleared the hash.
	rec = callAuth(t, h.ConfirmPasswordReset, `{"token":"`+token+`","new_password":"another-pass-3"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("second confirm: status %d, want 401", rec.Code)
	}
	if code := decodeBody(t, rec)["code"]; code != "INVALID_OR_EXPIRED_TOKEN" {
		t.Fatalf("second confirm code = %v, want INVALID_OR_EXPIRED_TOKEN", code)
	}
}

// A refresh token whose session has been revoked by logout must stop minting
// access tokens, even though the opaque token itself has not expired.
func TestRefreshRejectsRevokedSession(t *testing.T) {
	h, users, _ := newTestAuthHandler(t)
	seedUser(t, users, "theo@example.com", "theo", "correct-horse-9")

	rec := callAuth(t, h.Login, `{"email":"theo@example.com","password":"correct-horse-9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", rec.Code, rec.Body.String())
	}
	refreshPart, _ := decodeBody(t, rec)["refresh"].(map[string]interface{})
	refreshToken, _ := refreshPart["token"].(string)
	if refreshToken == "" {
		t.Fatal("login response carried no refresh token")
	}

	rec = callAuth(t, h.Refresh, `{"refresh_token":"`+refreshToken+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh before logout: status %d", rec.Code)
	}

	rec = callAuth(t, h.Logout, `{"refresh_token":"`+refreshToken+`"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout: status %d, want 204", rec.Code)
	}

	rec = callAuth(t, h.Refresh, `{"refresh_token":"`+refreshToken+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status %d, want 401", rec.Code)
	}
	if code := decodeBody(t, rec)["code"]; code != "UNAUTHENTICATED" {
		t.Fatalf("refresh after logout code = %v, want UNAUTHENTICATED", code)
	}
}
