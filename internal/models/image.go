package models

import "time"

// StoredImage is an image received by the image host. Several keys may point
// at the same blob hash.
type StoredImage struct {
	Key       string    `json:"key"`
	Hash      string    `json:"hash"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadToken is a bearer token accepted by the image host.
type UploadToken struct {
	Token     string     `json:"token"`
	Label     string     `json:"label"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
