package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/auth"
	"github.com/anchorapp/anchor-server/internal/config"
	"github.com/anchorapp/anchor-server/internal/model"
	"github.com/anchorapp/anchor-server/internal/oauth"
	"github.com/anchorapp/anchor-server/internal/repository"
)

// CredentialStore is the slice of the user repository the session endpoints
// need.  *repository.UserRepo satisfies it; tests substitute an in-memory
// store mirroring the same conditional-update contracts.
type CredentialStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByOAuth(ctx context.Context, provider, providerID string) (*model.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdateLastLogin(ctx context.Context, userID string) error
	SetResetToken(ctx context.Context, email, tokenHash string, exp time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) error
}

// SessionStore persists refresh sessions; *repository.SessionRepo satisfies
// it.  Validate must reject revoked and expired sessions with
// repository.ErrNotFound.
type SessionStore interface {
	Create(ctx context.Context, sessionID, userID, tokenHash string, device *string, exp time.Time) error
	Validate(ctx context.Context, tokenHash string) (userID string, err error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Users    CredentialStore
	Sessions SessionStore
	Codec    *auth.TokenCodec
	OAuth    oauth.Verifier
}

func NewAuthHandler(cfg config.Config, u CredentialStore, s SessionStore, codec *auth.TokenCodec, verifier oauth.Verifier) *AuthHandler {
	if u == nil || s == nil || codec == nil || verifier == nil {
		panic("nil dependency passed to NewAuthHandler")
	}
	return &AuthHandler{Cfg: cfg, Users: u, Sessions: s, Codec: codec, OAuth: verifier}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
}
type oauthReq struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
	Device   string `json:"device"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type resetRequestReq struct {
	Email string `json:"email"`
}
type resetConfirmReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// issuePair mints an access token and a fresh refresh session for the user.
// The raw refresh value goes back to the client exactly once; only its hash
// is stored.
func (h *AuthHandler) issuePair(ctx context.Context, u *model.User, device string) (*authResp, error) {
	access, err := h.Codec.NewAccessToken(u.ID, u.IsAdmin)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return nil, err
	}
	var dev *string
	if d := strings.TrimSpace(device); d != "" {
		dev = &d
	}
	if err := h.Sessions.Create(ctx, uuid.NewString(), u.ID, auth.HashToken(refresh.Raw), dev, refresh.Exp); err != nil {
		return nil, err
	}
	return &authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Username: u.Username, IsAdmin: u.IsAdmin},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// Register creates an account and returns a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "email/username/password required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "password must be at least 8 characters"})
	}
	if len(req.Username) < 3 || len(req.Username) > 50 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "username must be 3-50 characters"})
	}

	hash, err := auth.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "hash password failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u := &model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: &hash,
	}
	if err := h.Users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"code": "CONFLICT", "error": "email or username already in use"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "create user failed"})
	}

	resp, err := h.issuePair(ctx, u, "")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "issue tokens failed"})
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.  Unknown email,
// wrong password and password-less OAuth accounts all produce the same
// answer.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": "INVALID_CREDENTIALS", "error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
	}
	if u.PasswordHash == nil || !auth.VerifyPassword(*u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "INVALID_CREDENTIALS", "error": "invalid credentials"})
	}

	_ = h.Users.UpdateLastLogin(ctx, u.ID)

	resp, err := h.issuePair(ctx, u, req.Device)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

// OAuthLogin verifies a provider id_token and logs the asserted identity in,
// creating the account on first sight.
func (h *AuthHandler) OAuthLogin(c echo.Context) error {
	var req oauthReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid body"})
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider != "google" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "unsupported provider"})
	}
	if strings.TrimSpace(req.IDToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "id_token required"})
	}

	ident, err := h.OAuth.Verify(c.Request().Context(), req.IDToken)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidProviderToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": "INVALID_CREDENTIALS", "error": "provider rejected the token"})
		}
		return c.JSON(http.StatusBadGateway, echo.Map{"code": "PROVIDER_UNAVAILABLE", "error": "identity provider unreachable"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	isNew := false
	u, err := h.Users.GetByOAuth(ctx, provider, ident.ProviderID)
	if errors.Is(err, repository.ErrNotFound) {
		u, err = h.createOAuthUser(ctx, provider, ident)
		isNew = err == nil
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "oauth login failed"})
	}

	_ = h.Users.UpdateLastLogin(ctx, u.ID)

	resp, err := h.issuePair(ctx, u, req.Device)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":        resp.User,
		"access":      resp.Access,
		"refresh":     resp.Refresh,
		"is_new_user": isNew,
	})
}

// createOAuthUser provisions a first-time OAuth account.  The username is
// derived from the email local part, suffixed until unique.
func (h *AuthHandler) createOAuthUser(ctx context.Context, provider string, ident oauth.Identity) (*model.User, error) {
	base := strings.ToLower(strings.SplitN(ident.Email, "@", 2)[0])
	if base == "" {
		base = "user"
	}
	username := base
	for i := 1; ; i++ {
		taken, err := h.Users.UsernameExists(ctx, username)
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		username = fmt.Sprintf("%s%d", base, i)
	}
	p, pid := provider, ident.ProviderID
	u := &model.User{
		ID:              uuid.NewString(),
		Email:           strings.ToLower(ident.Email),
		Username:        username,
		OAuthProvider:   &p,
		OAuthProviderID: &pid,
	}
	if err := h.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Refresh exchanges a valid refresh token for a new access token.  The
// refresh token itself is not rotated; it stays valid until expiry or
// logout.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "refresh_token required"})
	}
	hash := auth.HashToken(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	userID, err := h.Sessions.Validate(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "invalid refresh token"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "invalid refresh token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "load user failed"})
	}
	access, err := h.Codec.NewAccessToken(u.ID, u.IsAdmin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Verify reports the identity behind the presented access token.  Runs
// behind the JWT middleware, so reaching it means the token checked out.
// Purely stateless: no storage is touched, only the token claims are echoed.
func (h *AuthHandler) Verify(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"valid":    true,
		"user_id":  userID,
		"is_admin": adminFlag(c),
	})
}

// Logout revokes sessions.  A refresh_token in the body ends that single
// session; a bearer token with no body ends every session of the user.
// Revoking an unknown or already-revoked refresh token still succeeds, so
// logout is safe to retry.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if refreshToken != "" {
		if err := h.Sessions.Revoke(ctx, auth.HashToken(refreshToken)); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	// No refresh token: fall back to the bearer identity and revoke all
	// sessions across devices.
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		raw := strings.TrimPrefix(authHeader, "Bearer ")
		if id, err := h.Codec.VerifyAccessToken(raw); err == nil {
			if err := h.Sessions.RevokeAllForUser(ctx, id.UserID); err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "logout failed"})
			}
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "invalid access token"})
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "provide Authorization header or refresh_token"})
}

// RequestPasswordReset issues a single-use reset token for the account with
// the given email.  The answer is identical whether or not the account
// exists, so the endpoint cannot be used to enumerate registered emails.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req resetRequestReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "email required"})
	}

	raw, exp, err := auth.NewResetToken(h.Cfg.ResetTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "issue reset token failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	// Zero rows (unknown email) is not an error here.
	if err := h.Users.SetResetToken(ctx, req.Email, auth.HashToken(raw), exp); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "reset request failed"})
	}

	resp := echo.Map{"message": "If the email exists, a reset token has been issued"}
	// Outside production the raw token is echoed back so the flow can be
	// exercised without a mail relay.
	if h.Cfg.Env != "prod" {
		resp["reset_token"] = raw
	}
	return c.JSON(http.StatusOK, resp)
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "token and new_password required"})
	}
	if len(req.NewPassword) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "password must be at least 8 characters"})
	}

	hash, err := auth.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "hash password failed"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Users.ConsumeResetToken(ctx, auth.HashToken(strings.TrimSpace(req.Token)), hash); err != nil {
		if errors.Is(err, repository.ErrInvalidResetToken) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": "INVALID_OR_EXPIRED_TOKEN", "error": "invalid or expired reset token"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "password reset failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
