package models

import "time"

// AttachmentReference is an opaque retrievable URL returned by the external
// media store. The routing core never inspects file bytes; it only gates
// message broadcast on the upload having completed.
type AttachmentReference string

// FileMeta describes a staged upload.
type FileMeta struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Kind        string `json:"kind"` // "image", "video" or "voice"
	Size        int64  `json:"size"`
}

// UploadTicket is handed out when an upload is staged and resolves to an
// AttachmentReference once the media store has acknowledged the bytes.
type UploadTicket struct {
	ID         string              `json:"id"`
	RoomID     string              `json:"room_id"`
	UploaderID string              `json:"uploader_id"`
	Meta       FileMeta            `json:"meta"`
	Ref        AttachmentReference `json:"ref,omitempty"`
	Completed  bool                `json:"completed"`
	StagedAt   time.Time           `json:"staged_at"`
}
