package models

import "time"

// FileHandle references an uploaded essay file held by the file store.
type FileHandle struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Accepted upload MIME types.
const (
	MIMEJPEG = "image/jpeg"
	MIMEPNG  = "image/png"
	MIMEPDF  = "application/pdf"
)

// IsAcceptedFileType reports whether contentType may be submitted for analysis.
func IsAcceptedFileType(contentType string) bool {
	switch contentType {
	case MIMEJPEG, MIMEPNG, MIMEPDF:
		return true
	}
	return false
}
