package handler

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/anchorapp/anchor-server/internal/geo"
	"github.com/anchorapp/anchor-server/internal/lifecycle"
	"github.com/anchorapp/anchor-server/internal/model"
	"github.com/anchorapp/anchor-server/internal/repository"
	"github.com/anchorapp/anchor-server/internal/unlock"
)

// AnchorHandler serves anchor CRUD and discovery.  Content retrieval is not
// here: content is only reachable through the unlock flow.
type AnchorHandler struct {
	Anchors    *repository.AnchorRepo
	Membership unlock.MembershipChecker
}

func NewAnchorHandler(a *repository.AnchorRepo, m unlock.MembershipChecker) *AnchorHandler {
	if a == nil || m == nil {
		panic("nil dependency passed to NewAnchorHandler")
	}
	return &AnchorHandler{Anchors: a, Membership: m}
}

// ----- DTOs -----

type anchorCreateReq struct {
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	Altitude       *float64   `json:"altitude"`
	Visibility     string     `json:"visibility"`
	UnlockRadius   *int       `json:"unlock_radius"`
	MaxUnlock      *int       `json:"max_unlock"`
	ActivationTime *time.Time `json:"activation_time"`
	ExpirationTime *time.Time `json:"expiration_time"`
	Tags           []string   `json:"tags"`
}

type anchorUpdateReq struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	Altitude       *float64   `json:"altitude"`
	Visibility     *string    `json:"visibility"`
	UnlockRadius   *int       `json:"unlock_radius"`
	MaxUnlock      *int       `json:"max_unlock"`
	ActivationTime *time.Time `json:"activation_time"`
	ExpirationTime *time.Time `json:"expiration_time"`
	Tags           []string   `json:"tags"`

	// Absent fields are left unchanged, so removing a quota cap or a window
	// bound needs an explicit clear flag.
	ClearMaxUnlock      bool `json:"clear_max_unlock"`
	ClearActivationTime bool `json:"clear_activation_time"`
	ClearExpirationTime bool `json:"clear_expiration_time"`
}

type statusReq struct {
	Status string `json:"status"`
}

type anchorResp struct {
	ID              string     `json:"id"`
	CreatorID       string     `json:"creator_id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	Altitude        *float64   `json:"altitude,omitempty"`
	EffectiveStatus string     `json:"effective_status"`
	Visibility      string     `json:"visibility"`
	UnlockRadius    int        `json:"unlock_radius"`
	MaxUnlock       *int       `json:"max_unlock,omitempty"`
	CurrentUnlock   int        `json:"current_unlock"`
	ActivationTime  *time.Time `json:"activation_time,omitempty"`
	ExpirationTime  *time.Time `json:"expiration_time,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type nearbyAnchorResp struct {
	anchorResp
	DistanceMeters float64 `json:"distance_meters"`
}

// toAnchorResp projects an anchor with its status resolved at `now`.  The
// stored status column is never exposed directly.
func toAnchorResp(a *model.Anchor, now time.Time) anchorResp {
	return anchorResp{
		ID:              a.ID,
		CreatorID:       a.CreatorID,
		Title:           a.Title,
		Description:     a.Description,
		Latitude:        a.Latitude,
		Longitude:       a.Longitude,
		Altitude:        a.Altitude,
		EffectiveStatus: lifecycle.EffectiveStatus(a, now).String(),
		Visibility:      a.Visibility,
		UnlockRadius:    a.UnlockRadius,
		MaxUnlock:       a.MaxUnlock,
		CurrentUnlock:   a.CurrentUnlock,
		ActivationTime:  a.ActivationTime,
		ExpirationTime:  a.ExpirationTime,
		Tags:            a.Tags,
		CreatedAt:       a.CreatedAt,
	}
}

// Create drops a new anchor at the given coordinates, owned by the caller.
func (h *AnchorHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}
	var req anchorCreateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "title required"})
	}
	if req.Latitude == nil || req.Longitude == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "latitude/longitude required"})
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "coordinates out of range"})
	}
	visibility := strings.ToUpper(strings.TrimSpace(req.Visibility))
	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	if !model.ValidVisibility(visibility) {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid visibility"})
	}
	radius := model.DefaultUnlockRadius
	if req.UnlockRadius != nil {
		if *req.UnlockRadius <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "unlock_radius must be positive"})
		}
		radius = model.ClampUnlockRadius(*req.UnlockRadius)
	}
	if req.MaxUnlock != nil && *req.MaxUnlock <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "max_unlock must be positive"})
	}
	if req.ActivationTime != nil && req.ExpirationTime != nil && !req.ExpirationTime.After(*req.ActivationTime) {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "expiration_time must be after activation_time"})
	}

	a := &model.Anchor{
		ID:             uuid.NewString(),
		CreatorID:      userID,
		Title:          req.Title,
		Description:    req.Description,
		Latitude:       *req.Latitude,
		Longitude:      *req.Longitude,
		Altitude:       req.Altitude,
		Status:         model.StatusActive,
		Visibility:     visibility,
		UnlockRadius:   radius,
		MaxUnlock:      req.MaxUnlock,
		ActivationTime: req.ActivationTime,
		ExpirationTime: req.ExpirationTime,
		Tags:           req.Tags,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Anchors.Create(ctx, a); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "create anchor failed"})
	}
	a.CreatedAt = time.Now().UTC()
	return c.JSON(http.StatusCreated, toAnchorResp(a, time.Now().UTC()))
}

// Get returns anchor metadata when the caller may see it.  Metadata only:
// the content behind the anchor is reachable solely through an unlock.
func (h *AnchorHandler) Get(c echo.Context) error {
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

	if !h.mayView(ctx, a, userID, adminFlag(c)) {
		// Indistinguishable from a missing anchor, so hidden anchors cannot
		// be enumerated.
		return c.JSON(http.StatusNotFound, echo.Map{"code": "NOT_FOUND", "error": "anchor not found"})
	}
	return c.JSON(http.StatusOK, toAnchorResp(a, time.Now().UTC()))
}

// mayView resolves the visibility rule for reading metadata.  Creators and
// admins always pass; PRIVATE hides from everyone else; CIRCLE_ONLY asks the
// membership service.
func (h *AnchorHandler) mayView(ctx context.Context, a *model.Anchor, userID string, isAdmin bool) bool {
	if isAdmin || userID == a.CreatorID {
		return true
	}
	switch a.Visibility {
	case model.VisibilityPublic:
		return true
	case model.VisibilityCircleOnly:
		member, err := h.Membership.IsMember(ctx, a.ID, userID)
		return err == nil && member
	default:
		return false
	}
}

// Update patches an anchor.  Creator only; effective status is recomputed on
// every read, so shrinking max_unlock below current_unlock simply renders
// the anchor exhausted.
func (h *AnchorHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}
	anchorID := c.Param("id")

	var req anchorUpdateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid body"})
	}
	if req.Visibility != nil {
		v := strings.ToUpper(strings.TrimSpace(*req.Visibility))
		if !model.ValidVisibility(v) {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid visibility"})
		}
		req.Visibility = &v
	}
	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90) {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "coordinates out of range"})
	}
	if req.Longitude != nil && (*req.Longitude < -180 || *req.Longitude > 180) {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "coordinates out of range"})
	}
	if req.UnlockRadius != nil {
		if *req.UnlockRadius <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "unlock_radius must be positive"})
		}
		r := model.ClampUnlockRadius(*req.UnlockRadius)
		req.UnlockRadius = &r
	}
	if req.MaxUnlock != nil && *req.MaxUnlock <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "max_unlock must be positive"})
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
		return c.JSON(http.StatusForbidden, echo.Map{"code": "FORBIDDEN", "error": "only the creator may modify an anchor"})
	}

	upd := repository.AnchorUpdate{
		Title:          req.Title,
		Description:    req.Description,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Altitude:       req.Altitude,
		Visibility:     req.Visibility,
		UnlockRadius:   req.UnlockRadius,
		MaxUnlock:      req.MaxUnlock,
		ActivationTime: req.ActivationTime,
		ExpirationTime: req.ExpirationTime,
		Tags:           req.Tags,

		ClearMaxUnlock:      req.ClearMaxUnlock,
		ClearActivationTime: req.ClearActivationTime,
		ClearExpirationTime: req.ClearExpirationTime,
	}
	if err := h.Anchors.Update(ctx, anchorID, upd); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"code": "NOT_FOUND", "error": "anchor not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "update failed"})
	}

	a, err = h.Anchors.GetByID(ctx, anchorID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
	}
	return c.JSON(http.StatusOK, toAnchorResp(a, time.Now().UTC()))
}

// Delete removes an anchor and its content.  Creator or admin.
func (h *AnchorHandler) Delete(c echo.Context) error {
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
		return c.JSON(http.StatusForbidden, echo.Map{"code": "FORBIDDEN", "error": "only the creator may delete an anchor"})
	}
	if err := h.Anchors.Delete(ctx, anchorID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// SetStatus stores an administrative status override (LOCKED, FLAGGED or
// back to ACTIVE).  Admin only; the route is gated by RequireAdmin.
func (h *AnchorHandler) SetStatus(c echo.Context) error {
	anchorID := c.Param("id")
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid body"})
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	switch status {
	case model.StatusActive, model.StatusLocked, model.StatusFlagged:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "status must be ACTIVE, LOCKED or FLAGGED"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Anchors.SetStatus(ctx, anchorID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"code": "NOT_FOUND", "error": "anchor not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "set status failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"id": anchorID, "status": status})
}

const (
	defaultNearbyRadiusKm = 1.0
	maxNearbyRadiusKm     = 50.0
	defaultNearbyLimit    = 50
	maxNearbyLimit        = 200
)

// Nearby lists discoverable anchors around a point, sorted by distance.
// Discoverable means PUBLIC anchors plus the caller's own, currently ACTIVE
// or NOT_YET_ACTIVE.  The bounding-box query over-approximates the circle;
// the haversine distance decides membership.
func (h *AnchorHandler) Nearby(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHENTICATED", "error": "authentication required"})
	}

	lat, err1 := strconv.ParseFloat(c.QueryParam("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.QueryParam("lon"), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "valid lat and lon required"})
	}
	radiusKm := defaultNearbyRadiusKm
	if s := c.QueryParam("radius_km"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "radius_km must be positive"})
		}
		if v > maxNearbyRadiusKm {
			v = maxNearbyRadiusKm
		}
		radiusKm = v
	}
	limit := defaultNearbyLimit
	if s := c.QueryParam("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "limit must be positive"})
		}
		if v > maxNearbyLimit {
			v = maxNearbyLimit
		}
		limit = v
	}
	visibility := strings.ToUpper(strings.TrimSpace(c.QueryParam("visibility")))
	if visibility != "" && !model.ValidVisibility(visibility) {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "invalid visibility filter"})
	}
	statusFilter := strings.ToUpper(strings.TrimSpace(c.QueryParam("anchor_status")))
	switch statusFilter {
	case "", "ACTIVE", "NOT_YET_ACTIVE":
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "anchor_status must be ACTIVE or NOT_YET_ACTIVE"})
	}
	if s := c.QueryParam("sort_by"); s != "" && s != "distance" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "BAD_REQUEST", "error": "sort_by only supports distance"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	candidates, err := h.Anchors.ListNearby(ctx, lat, lon, radiusKm, visibility)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"code": "INTERNAL", "error": "query failed"})
	}

	now := time.Now().UTC()
	origin := geo.Coordinate{Latitude: lat, Longitude: lon}
	out := make([]nearbyAnchorResp, 0, len(candidates))
	for i := range candidates {
		a := &candidates[i]
		if a.Visibility != model.VisibilityPublic && a.CreatorID != userID {
			continue
		}
		status := lifecycle.EffectiveStatus(a, now)
		switch status {
		case lifecycle.Active, lifecycle.NotYetActive:
		default:
			continue
		}
		if statusFilter != "" && status.String() != statusFilter {
			continue
		}
		d := geo.Distance(origin, geo.Coordinate{Latitude: a.Latitude, Longitude: a.Longitude})
		if d > radiusKm*1000 {
			continue
		}
		out = append(out, nearbyAnchorResp{anchorResp: toAnchorResp(a, now), DistanceMeters: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if len(out) > limit {
		out = out[:limit]
	}
	return c.JSON(http.StatusOK, echo.Map{"anchors": out, "count": len(out)})
}
