package models

import "time"

type Attachment struct {
	ID            string    `json:"id"`
	TaskID        string    `json:"task_id"`
	UploaderID    string    `json:"uploader_id"`
	UploaderName  string    `json:"uploader_name,omitempty"`
	FileName      string    `json:"file_name"`
	Path          string    `json:"file_path"`
	Size          int64     `json:"file_size"`
	ContentType   string    `json:"content_type"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// StoredFile describes a blob written by the file store.
type StoredFile struct {
	Path          string
	ThumbnailPath string
	Size          int64
	ContentType   string
}
