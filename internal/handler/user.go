package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/model"
	"github.com/anchorapp/anchor-server/internal/repository"
)

// UserHandler serves the profile endpoints.
type UserHandler struct {
	Users *repository.UserRepo
}

func NewUserHandler(u *repository.UserRepo) *UserHandler {
	if u == nil {
		panic("nil repository passed to NewUserHandler")
	}
	return &UserHandler{Users: u}
}

type profileUpdateReq struct {
	Username    *string `json:"username"`
	Email       *string `json:"email"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatar_url"`
	IsGhostMode *bool   `json:"is_ghost_mode"`
}

type profileResp struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Bio         *string    `json:"bio,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	IsGhostMode bool       `json:"is_ghost_mode"`
	IsAdmin     bool       `json:"is_admin"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toProfileResp(u *model.User) profileResp {
	return profileResp{
		ID:          u.ID,
		Email:       u.Email,
		Username:    u.Username,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		IsGhostMode: u.IsGhostMode,
		IsAdmin:     u.IsAdmin,
		LastLogin:   u.LastLogin,
		CreatedAt:   u.CreatedAt,
	}
}

// Me returns the caller's own profile.
func (h *UserHandler) Me(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"code": "NOT_FOUND", "error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
	}
	return c.JSON(http.StatusOK, toProfileResp(u))
}

// UpdateMe patches the caller's profile.  Email and username changes are
// checked against other accounts first; the unique indexes still backstop
// races.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}
	var req profileUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid body"})
	}
	if req.Username != nil {
		v := strings.TrimSpace(*req.Username)
		if v == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "username cannot be empty"})
		}
		req.Username = &v
	}
	if req.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*req.Email))
		if v == "" || !strings.Contains(v, "@") {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid email"})
		}
		req.Email = &v
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if req.Email != nil {
		taken, err := h.Users.EmailTakenByOther(ctx, *req.Email, userID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
		}
		if taken {
			return c.JSON(http.StatusConflict, echo.Map{"code": "CONFLICT", "error": "email already in use"})
		}
	}
	if req.Username != nil {
		taken, err := h.Users.UsernameTakenByOther(ctx, *req.Username, userID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
		}
		if taken {
			return c.JSON(http.StatusConflict, echo.Map{"code": "CONFLICT", "error": "username already in use"})
		}
	}

	upd := repository.ProfileUpdate{
		Username:    req.Username,
		Email:       req.Email,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		IsGhostMode: req.IsGhostMode,
	}
	if err := h.Users.UpdateProfile(ctx, userID, upd); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"code": "CONFLICT", "error": "email or username already in use"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "update failed"})
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
	}
	return c.JSON(http.StatusOK, toProfileResp(u))
}
