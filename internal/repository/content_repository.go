package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anchorapp/anchor-server/internal/model"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so content reads can run
// either standalone or inside the unlock transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ContentRepo persists anchor payloads: one `content` row per item plus
// exactly one type-specific extension row (text_content, media_content or
// link_content) selected by the content type tag.
type ContentRepo struct{ DB *sql.DB }

func NewContentRepo(db *sql.DB) *ContentRepo { return &ContentRepo{DB: db} }

// Create inserts a content row and its extension record in one transaction
// so the "exactly one extension per content row" invariant cannot be
// half-applied.
func (r *ContentRepo) Create(ctx context.Context, item *model.ContentItem) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO content (content_id, anchor_id, content_type, size_bytes)
		 VALUES (?,?,?,?)`,
		item.ID, item.AnchorID, item.ContentType, item.SizeBytes)
	if err != nil {
		return err
	}

	switch item.ContentType {
	case model.ContentText:
		_, err = tx.ExecContext(ctx,
			"INSERT INTO text_content (content_id, body, language) VALUES (?,?,?)",
			item.ID, item.Body, item.Language)
	case model.ContentFile:
		_, err = tx.ExecContext(ctx,
			"INSERT INTO media_content (content_id, file_url, mime_type) VALUES (?,?,?)",
			item.ID, item.FileURL, item.MimeType)
	case model.ContentLink:
		_, err = tx.ExecContext(ctx,
			"INSERT INTO link_content (content_id, url, preview_url, page_title) VALUES (?,?,?,?)",
			item.ID, item.URL, item.PreviewURL, item.PageTitle)
	default:
		err = fmt.Errorf("unknown content type %q", item.ContentType)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ListByAnchor returns all content items of an anchor in upload order.
func (r *ContentRepo) ListByAnchor(ctx context.Context, anchorID string) ([]model.ContentItem, error) {
	return listContent(ctx, r.DB, anchorID)
}

// listContent loads content rows joined with their extension records.  The
// LEFT JOINs fan out over the three extension tables; exactly one of them
// contributes non-NULL columns per row.
func listContent(ctx context.Context, q queryer, anchorID string) ([]model.ContentItem, error) {
	const query = `SELECT c.content_id, c.anchor_id, c.content_type, c.size_bytes, c.uploaded_at,
	                      t.body, t.language,
	                      m.file_url, m.mime_type,
	                      l.url, l.preview_url, l.page_title
	               FROM content c
	               LEFT JOIN text_content t ON t.content_id = c.content_id
	               LEFT JOIN media_content m ON m.content_id = c.content_id
	               LEFT JOIN link_content l ON l.content_id = c.content_id
	               WHERE c.anchor_id = ?
	               ORDER BY c.uploaded_at, c.content_id`
	rows, err := q.QueryContext(ctx, query, anchorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.ContentItem, 0)
	for rows.Next() {
		var (
			it                         model.ContentItem
			body, language             sql.NullString
			fileURL, mimeType          sql.NullString
			url, previewURL, pageTitle sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.AnchorID, &it.ContentType, &it.SizeBytes, &it.UploadedAt,
			&body, &language, &fileURL, &mimeType, &url, &previewURL, &pageTitle); err != nil {
			return nil, err
		}
		it.Body = nullStr(body)
		it.Language = nullStr(language)
		it.FileURL = nullStr(fileURL)
		it.MimeType = nullStr(mimeType)
		it.URL = nullStr(url)
		it.PreviewURL = nullStr(previewURL)
		it.PageTitle = nullStr(pageTitle)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
