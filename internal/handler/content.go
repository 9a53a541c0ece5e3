package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/model"
	"github.com/anchorapp/anchor-server/internal/repository"
)

// ContentHandler manages the payload behind an anchor.  Attaching and
// listing are creator operations; everyone else only ever sees content
// through a successful unlock.
type ContentHandler struct {
	Anchors  *repository.AnchorRepo
	Contents *repository.ContentRepo
}

func NewContentHandler(a *repository.AnchorRepo, c *repository.ContentRepo) *ContentHandler {
	if a == nil || c == nil {
		panic("nil dependency passed to NewContentHandler")
	}
	return &ContentHandler{Anchors: a, Contents: c}
}

type contentCreateReq struct {
	ContentType string  `json:"content_type"`
	SizeBytes   int64   `json:"size_bytes"`
	Body        *string `json:"body"`
	Language    *string `json:"language"`
	FileURL     *string `json:"file_url"`
	MimeType    *string `json:"mime_type"`
	URL         *string `json:"url"`
	PreviewURL  *string `json:"preview_url"`
	PageTitle   *string `json:"page_title"`
}

// Attach adds a content item to an anchor the caller owns.
func (h *ContentHandler) Attach(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}
	anchorID := c.Param("id")

	var req contentCreateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid body"})
	}
	ctype := strings.ToUpper(strings.TrimSpace(req.ContentType))
	if !model.ValidContentType(ctype) {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "content_type must be TEXT, FILE or LINK"})
	}
	// Validate that the fields of the selected type are present.
	switch ctype {
	case model.ContentText:
		if req.Body == nil || strings.TrimSpace(*req.Body) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "body required for TEXT content"})
		}
	case model.ContentFile:
		if req.FileURL == nil || strings.TrimSpace(*req.FileURL) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "file_url required for FILE content"})
		}
	case model.ContentLink:
		if req.URL == nil || strings.TrimSpace(*req.URL) == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "url required for LINK content"})
		}
	}
	if req.SizeBytes < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "size_bytes must be non-negative"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	a, err := h.Anchors.GetByID(ctx, anchorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"code": "NOT_FOUND", "error": "anchor not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
	}
	if a.CreatorID != userID {
		return c.JSON(http.StatusForbidden, echo.Map{"code": "FORBIDDEN", "error": "only the creator may attach content"})
	}

	sizeBytes := req.SizeBytes
	if ctype == model.ContentText && sizeBytes == 0 && req.Body != nil {
		sizeBytes = int64(len(*req.Body))
	}
	item := &model.ContentItem{
		ID:          uuid.NewString(),
		AnchorID:    anchorID,
		ContentType: ctype,
		SizeBytes:   sizeBytes,
		Body:        req.Body,
		Language:    req.Language,
		FileURL:     req.FileURL,
		MimeType:    req.MimeType,
		URL:         req.URL,
		PreviewURL:  req.PreviewURL,
		PageTitle:   req.PageTitle,
	}
	if err := h.Contents.Create(ctx, item); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "attach content failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": item.ID, "anchor_id": anchorID, "content_type": ctype})
}

// List returns the content items of an anchor to its creator, without
// spending quota.  Everyone else goes through the unlock flow.
func (h *ContentHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}
	anchorID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	a, err := h.Anchors.GetByID(ctx, anchorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"code": "NOT_FOUND", "error": "anchor not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
	}
	if a.CreatorID != userID && !adminFlag(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"code": "FORBIDDEN", "error": "content is only available through an unlock"})
	}

	items, err := h.Contents.ListByAnchor(ctx, anchorID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"anchor_id": anchorID, "content": toContentResp(items)})
}
