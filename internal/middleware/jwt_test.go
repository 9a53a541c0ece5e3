package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/auth"
)

func runProtected(t *testing.T, codec *auth.TokenCodec, authHeader string) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := JWTAuth(codec)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec, c
}

func TestJWTAuthValidToken(t *testing.T) {
	codec := auth.NewTokenCodec("test-secret", 5)
	tok, err := codec.NewAccessToken("user-42", true)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	rec, c := runProtected(t, codec, "Bearer "+tok.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if got, _ := c.Get("user_id").(string); got != "user-42" {
		t.Errorf("user_id in context = %q, want %q", got, "user-42")
	}
	if got, _ := c.Get("is_admin").(bool); !got {
		t.Errorf("is_admin in context = false, want true")
	}
}

func TestJWTAuthMissingHeader(t *testing.T) {
	codec := auth.NewTokenCodec("test-secret", 5)
	rec, _ := runProtected(t, codec, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "UNAUTHENTICATED") {
		t.Errorf("body %q does not carry UNAUTHENTICATED code", rec.Body.String())
	}
}

func TestJWTAuthBadToken(t *testing.T) {
	codec := auth.NewTokenCodec("test-secret", 5)
	rec, _ := runProtected(t, codec, "Bearer not-a-jwt")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJWTAuthWrongSecret(t *testing.T) {
	other := auth.NewTokenCodec("other-secret", 5)
	tok, err := other.NewAccessToken("user-1", false)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	codec := auth.NewTokenCodec("test-secret", 5)
	rec, _ := runProtected(t, codec, "Bearer "+tok.Token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	e := echo.New()
	h := RequireAdmin()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	cases := []struct {
		name    string
		isAdmin interface{}
		want    int
	}{
		{"admin", true, http.StatusOK},
		{"non-admin", false, http.StatusForbidden},
		{"missing", nil, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/v1/admin/anchors/a1/status", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tc.isAdmin != nil {
				c.Set("is_admin", tc.isAdmin)
			}
			if err := h(c); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
