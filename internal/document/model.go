package document

import (
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrStorageFailure  = errors.New("object storage unavailable")
	ErrInvalidFileName = errors.New("file name is invalid")
)

// File is a document stored for a person, optionally attached to one of
// their proceedings.
type File struct {
	ID             string    `json:"id"`
	PersonID       string    `json:"person_id"`
	DocumentTypeID int64     `json:"document_type_id"`
	ProceedingID   *string   `json:"proceeding_id"`
	FileName       string    `json:"file_name"`
	ContentType    string    `json:"content_type"`
	SizeBytes      int64     `json:"size_bytes"`
	StorageKey     string    `json:"-"`
	DownloadURL    string    `json:"download_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Upload struct {
	DocumentTypeID int64
	ProceedingID   *string
	FileName       string
	ContentType    string
	Data           []byte
}
