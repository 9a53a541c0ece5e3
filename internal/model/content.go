package model

import "time"

// Content type tags.  Each tag selects exactly one extension table.
const (
	ContentText = "TEXT"
	ContentFile = "FILE"
	ContentLink = "LINK"
)

// ContentItem is a content row joined with its single type-specific
// extension record.  The extension fields form a tagged union selected by
// ContentType: TEXT fills Body/Language, FILE fills FileURL/MimeType, LINK
// fills URL/PreviewURL/PageTitle.  Exactly one group is populated per item.
// File transport is out of scope for this core; FileURL is an opaque
// reference into an external blob store.
type ContentItem struct {
	ID          string    // content.content_id (UUID)
	AnchorID    string    // content.anchor_id
	ContentType string    // content.content_type
	SizeBytes   int64     // content.size_bytes
	UploadedAt  time.Time // content.uploaded_at

	// TEXT extension (text_content)
	Body     *string
	Language *string

	// FILE extension (media_content)
	FileURL  *string
	MimeType *string

	// LINK extension (link_content)
	URL        *string
	PreviewURL *string
	PageTitle  *string
}

// ValidContentType reports whether t is a known content type tag.
func ValidContentType(t string) bool {
	return t == ContentText || t == ContentFile || t == ContentLink
}
