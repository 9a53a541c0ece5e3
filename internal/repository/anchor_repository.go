package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/anchorapp/anchor-server/internal/model"
)

// AnchorRepo persists anchors.  The unlock counter lives here too: all
// increments go through the conditional UPDATE in ConsumeAndFetch so
// concurrent unlock attempts against the same anchor are linearized by the
// database and current_unlock can never overshoot max_unlock.
type AnchorRepo struct{ DB *sql.DB }

func NewAnchorRepo(db *sql.DB) *AnchorRepo { return &AnchorRepo{DB: db} }

const anchorColumns = `anchor_id, creator_id, title, description, latitude, longitude,
	altitude, status, visibility, unlock_radius, max_unlock, current_unlock,
	activation_time, expiration_time, tags, created_at, updated_at`

// Create inserts a new anchor.  Status is stored as ACTIVE; the effective
// status is always recomputed on read.
func (r *AnchorRepo) Create(ctx context.Context, a *model.Anchor) error {
	tags, err := marshalTags(a.Tags)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO anchors
		   (anchor_id, creator_id, title, description, latitude, longitude, altitude,
		    status, visibility, unlock_radius, max_unlock, activation_time, expiration_time, tags)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.CreatorID, a.Title, a.Description, a.Latitude, a.Longitude, a.Altitude,
		a.Status, a.Visibility, a.UnlockRadius, a.MaxUnlock, a.ActivationTime, a.ExpirationTime, tags)
	return err
}

// GetByID fetches one anchor; ErrNotFound when absent.
func (r *AnchorRepo) GetByID(ctx context.Context, id string) (*model.Anchor, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+anchorColumns+" FROM anchors WHERE anchor_id=? LIMIT 1", id)
	a, err := scanAnchor(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AnchorUpdate carries the optional fields of a PATCH; nil means unchanged.
// The nullable columns (max_unlock, activation_time, expiration_time) have a
// third state: the Clear flags write an explicit NULL, removing a quota cap
// or a window bound that a nil pointer alone could never express.  A Clear
// flag wins over its value counterpart.
type AnchorUpdate struct {
	Title          *string
	Description    *string
	Latitude       *float64
	Longitude      *float64
	Altitude       *float64
	Visibility     *string
	UnlockRadius   *int
	MaxUnlock      *int
	ActivationTime *time.Time
	ExpirationTime *time.Time
	Tags           []string

	ClearMaxUnlock      bool
	ClearActivationTime bool
	ClearExpirationTime bool
}

// assignments renders the SET clause for the update.
func (u AnchorUpdate) assignments() ([]string, []interface{}, error) {
	sets := make([]string, 0, 11)
	args := make([]interface{}, 0, 12)
	add := func(col string, v interface{}) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Latitude != nil {
		add("latitude", *u.Latitude)
	}
	if u.Longitude != nil {
		add("longitude", *u.Longitude)
	}
	if u.Altitude != nil {
		add("altitude", *u.Altitude)
	}
	if u.Visibility != nil {
		add("visibility", *u.Visibility)
	}
	if u.UnlockRadius != nil {
		add("unlock_radius", *u.UnlockRadius)
	}
	switch {
	case u.ClearMaxUnlock:
		add("max_unlock", nil)
	case u.MaxUnlock != nil:
		add("max_unlock", *u.MaxUnlock)
	}
	switch {
	case u.ClearActivationTime:
		add("activation_time", nil)
	case u.ActivationTime != nil:
		add("activation_time", *u.ActivationTime)
	}
	switch {
	case u.ClearExpirationTime:
		add("expiration_time", nil)
	case u.ExpirationTime != nil:
		add("expiration_time", *u.ExpirationTime)
	}
	if u.Tags != nil {
		tags, err := marshalTags(u.Tags)
		if err != nil {
			return nil, nil, err
		}
		add("tags", tags)
	}
	return sets, args, nil
}

// Update applies only the provided fields to an anchor row.
func (r *AnchorRepo) Update(ctx context.Context, id string, upd AnchorUpdate) error {
	sets, args, err := upd.assignments()
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx,
		"UPDATE anchors SET "+strings.Join(sets, ", ")+" WHERE anchor_id=?", args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Could also mean a no-op update of identical values, which MySQL
		// reports as zero affected rows; re-check existence to be precise.
		var one int
		if err := r.DB.QueryRowContext(ctx,
			"SELECT 1 FROM anchors WHERE anchor_id=? LIMIT 1", id).Scan(&one); err == sql.ErrNoRows {
			return ErrNotFound
		}
	}
	return nil
}

// SetStatus stores an administrative status (LOCKED/FLAGGED) or clears it
// back to ACTIVE.  Moderation collaborators call through this.
func (r *AnchorRepo) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE anchors SET status=? WHERE anchor_id=?", status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an anchor; content rows go with it via cascading foreign
// keys.
func (r *AnchorRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM anchors WHERE anchor_id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// searchBox is the SQL pre-filter around a nearby query point.  When wraps
// is set the box crosses the 180th meridian and the longitude condition is
// the disjunction (longitude >= lonLo OR longitude <= lonHi); when allLon is
// set the box covers every longitude and the filter is skipped.
type searchBox struct {
	latLo, latHi float64
	lonLo, lonHi float64
	wraps        bool
	allLon       bool
}

// kmPerLatDegree is the length of one degree of latitude.  Longitude degrees
// shrink with cos(lat).
const kmPerLatDegree = 111.195

// boundingBox over-approximates the radiusKm circle around (lat, lon) with a
// latitude band and a longitude range that normalizes across the
// antimeridian, so anchors on the far side of 180°E still land in the box.
// Callers re-check candidates with the haversine distance.
func boundingBox(lat, lon, radiusKm float64) searchBox {
	latDelta := radiusKm / kmPerLatDegree
	// Clamp near the poles where the longitude delta degenerates.
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}
	lonDelta := radiusKm / (kmPerLatDegree * cosLat)

	box := searchBox{latLo: lat - latDelta, latHi: lat + latDelta}
	if lonDelta >= 180 {
		box.lonLo, box.lonHi = -180, 180
		box.allLon = true
		return box
	}
	box.lonLo, box.lonHi = lon-lonDelta, lon+lonDelta
	if box.lonLo < -180 {
		box.lonLo += 360
		box.wraps = true
	}
	if box.lonHi > 180 {
		box.lonHi -= 360
		box.wraps = true
	}
	return box
}

// ListNearby returns candidate anchors inside a bounding box around the
// given point.  The box over-approximates the circle; callers re-check with
// the haversine distance and sort.  visibility and status filters are
// applied in SQL when non-empty (status only filters the administrative
// column; time/quota-derived states are resolved by the caller).
func (r *AnchorRepo) ListNearby(ctx context.Context, lat, lon, radiusKm float64, visibility string) ([]model.Anchor, error) {
	box := boundingBox(lat, lon, radiusKm)

	query := "SELECT " + anchorColumns + " FROM anchors WHERE latitude BETWEEN ? AND ?"
	args := []interface{}{box.latLo, box.latHi}
	switch {
	case box.allLon:
		// Box spans every longitude; no filter to add.
	case box.wraps:
		query += " AND (longitude >= ? OR longitude <= ?)"
		args = append(args, box.lonLo, box.lonHi)
	default:
		query += " AND longitude BETWEEN ? AND ?"
		args = append(args, box.lonLo, box.lonHi)
	}
	if visibility != "" {
		query += " AND visibility=?"
		args = append(args, visibility)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	anchors := make([]model.Anchor, 0)
	for rows.Next() {
		a, err := scanAnchor(rows.Scan)
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return anchors, nil
}

// ConsumeAndFetch atomically spends one unit of the anchor's unlock quota
// and returns its content items.  Both happen inside a single transaction:
// either the increment commits together with a successful content read, or
// neither does, so an unlock is never "spent" on a failed fetch.
//
// The quota check and the increment are one conditional UPDATE executed by
// the database, collapsing the read-check-increment race window to zero:
// two simultaneous unlockers of an anchor with one remaining unlock are
// serialized on the row lock and exactly one statement reports an affected
// row.
func (r *AnchorRepo) ConsumeAndFetch(ctx context.Context, anchorID string) ([]model.ContentItem, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE anchors SET current_unlock = current_unlock + 1
		 WHERE anchor_id = ? AND (max_unlock IS NULL OR current_unlock < max_unlock)`,
		anchorID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Either the anchor vanished or the quota is spent; distinguish so
		// the caller can report the right code.
		var one int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM anchors WHERE anchor_id=? LIMIT 1", anchorID).Scan(&one)
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrQuotaExhausted
	}

	items, err := listContent(ctx, tx, anchorID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		// An anchor with no content is unlockable in principle but there is
		// nothing to return; roll back so the empty attempt does not spend
		// quota.
		return nil, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return items, nil
}

// scanAnchor builds a model.Anchor from a row scanner, decoding the JSON
// tags column and mapping NULLs to nil pointers.
func scanAnchor(scan func(dest ...interface{}) error) (*model.Anchor, error) {
	var (
		a           model.Anchor
		description sql.NullString
		altitude    sql.NullFloat64
		maxUnlock   sql.NullInt64
		activation  sql.NullTime
		expiration  sql.NullTime
		tags        sql.NullString
	)
	err := scan(&a.ID, &a.CreatorID, &a.Title, &description, &a.Latitude, &a.Longitude,
		&altitude, &a.Status, &a.Visibility, &a.UnlockRadius, &maxUnlock, &a.CurrentUnlock,
		&activation, &expiration, &tags, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Description = nullStr(description)
	if altitude.Valid {
		v := altitude.Float64
		a.Altitude = &v
	}
	if maxUnlock.Valid {
		v := int(maxUnlock.Int64)
		a.MaxUnlock = &v
	}
	if activation.Valid {
		t := activation.Time
		a.ActivationTime = &t
	}
	if expiration.Valid {
		t := expiration.Time
		a.ExpirationTime = &t
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &a.Tags); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

// marshalTags encodes the tag set as JSON for storage; nil/empty stays NULL.
func marshalTags(tags []string) (interface{}, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
