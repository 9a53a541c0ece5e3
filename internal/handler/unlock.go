package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/geo"
	"github.com/anchorapp/anchor-server/internal/model"
	"github.com/anchorapp/anchor-server/internal/queue"
	"github.com/anchorapp/anchor-server/internal/repository"
	queuepublisher "github.com/anchorapp/anchor-server/internal/service"
	"github.com/anchorapp/anchor-server/internal/unlock"
)

// UnlockHandler runs the unlock pipeline for POST /anchors/:id/unlock and
// publishes an anchor.unlocked event on success.
type UnlockHandler struct {
	Authorizer *unlock.Authorizer
	Anchors    *repository.AnchorRepo
}

func NewUnlockHandler(a *unlock.Authorizer, anchors *repository.AnchorRepo) *UnlockHandler {
	if a == nil || anchors == nil {
		panic("nil dependency passed to NewUnlockHandler")
	}
	return &UnlockHandler{Authorizer: a, Anchors: anchors}
}

type unlockReq struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type contentItemResp struct {
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Body        *string   `json:"body,omitempty"`
	Language    *string   `json:"language,omitempty"`
	FileURL     *string   `json:"file_url,omitempty"`
	MimeType    *string   `json:"mime_type,omitempty"`
	URL         *string   `json:"url,omitempty"`
	PreviewURL  *string   `json:"preview_url,omitempty"`
	PageTitle   *string   `json:"page_title,omitempty"`
}

func toContentResp(items []model.ContentItem) []contentItemResp {
	out := make([]contentItemResp, 0, len(items))
	for _, it := range items {
		out = append(out, contentItemResp{
			ID:          it.ID,
			ContentType: it.ContentType,
			SizeBytes:   it.SizeBytes,
			UploadedAt:  it.UploadedAt,
			Body:        it.Body,
			Language:    it.Language,
			FileURL:     it.FileURL,
			MimeType:    it.MimeType,
			URL:         it.URL,
			PreviewURL:  it.PreviewURL,
			PageTitle:   it.PageTitle,
		})
	}
	return out
}

// Unlock attempts to unlock an anchor from the caller's reported position.
// The coordinate is used for this one proximity check and is not stored.
func (h *UnlockHandler) Unlock(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}
	anchorID := c.Param("id")

	var req unlockReq
	if err := c.Bind(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "latitude and longitude required"})
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "coordinates out of range"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	now := time.Now().UTC()
	reported := geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	items, err := h.Authorizer.AttemptUnlock(ctx, anchorID, userID, reported, now)
	if err != nil {
		return unlockError(c, err)
	}

	// Best effort: a broker outage must not fail an unlock that already
	// committed.
	go h.publishUnlocked(anchorID, userID, len(items), now)

	return c.JSON(http.StatusOK, echo.Map{
		"anchor_id":   anchorID,
		"unlocked_at": now,
		"content":     toContentResp(items),
	})
}

// publishUnlocked loads the anchor for event enrichment and emits the
// anchor.unlocked event.
func (h *UnlockHandler) publishUnlocked(anchorID, userID string, itemCount int, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ev := queue.AnchorUnlockedEvent{
		AnchorID:     anchorID,
		UserID:       userID,
		ContentItems: itemCount,
		UnlockedAt:   at.Format(time.RFC3339),
	}
	if a, err := h.Anchors.GetByID(ctx, anchorID); err == nil {
		ev.AnchorTitle = a.Title
		ev.CreatorID = a.CreatorID
	}
	if err := queuepublisher.PublishAnchorUnlocked(ctx, ev); err != nil {
		log.Printf("unlock: publish event failed for anchor %s: %v", anchorID, err)
	}
}

// unlockError maps pipeline denials onto stable client-facing codes.
func unlockError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"code": "NOT_FOUND", "error": "anchor not found"})
	case errors.Is(err, unlock.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"code": "FORBIDDEN", "error": "anchor not accessible"})
	case errors.Is(err, unlock.ErrOutOfRange):
		return c.JSON(http.StatusForbidden, echo.Map{"code": "OUT_OF_RANGE", "error": "outside the anchor's unlock radius"})
	case errors.Is(err, unlock.ErrAnchorExpired):
		return c.JSON(http.StatusGone, echo.Map{"code": "ANCHOR_EXPIRED", "error": "anchor has expired"})
	case errors.Is(err, unlock.ErrAnchorNotYetActive):
		return c.JSON(http.StatusForbidden, echo.Map{"code": "ANCHOR_NOT_YET_ACTIVE", "error": "anchor is not yet active"})
	case errors.Is(err, unlock.ErrAnchorLocked):
		return c.JSON(http.StatusLocked, echo.Map{"code": "ANCHOR_LOCKED", "error": "anchor is locked"})
	case errors.Is(err, unlock.ErrAnchorFlagged):
		return c.JSON(http.StatusLocked, echo.Map{"code": "ANCHOR_FLAGGED", "error": "anchor is flagged"})
	case errors.Is(err, repository.ErrQuotaExhausted):
		return c.JSON(http.StatusGone, echo.Map{"code": "QUOTA_EXHAUSTED", "error": "anchor unlock quota exhausted"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "unlock failed"})
	}
}
