package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Video is an uploaded source asset and its derived-artifact references.
type Video struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration"`
	CategoryID      *int64    `json:"categoryId,omitempty"`
	UserID          *int64    `json:"userId,omitempty"`
	VideoFile       string    `json:"videoFile,omitempty"`
	Thumbnail       string    `json:"thumbnail,omitempty"`
	IsFeatured      bool      `json:"isFeatured"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HasSource reports whether the record references an uploaded file.
func (v *Video) HasSource() bool {
	return v != nil && v.VideoFile != ""
}

// VideoUpdate carries editable metadata. Nil fields are left unchanged.
type VideoUpdate struct {
	Title           *string
	Description     *string
	DurationMinutes *int
	CategoryID      *int64
	IsFeatured      *bool
}

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Job ledger statuses.
const (
	JobStatusSucceeded = "succeeded"
	JobStatusRetrying  = "retrying"
	JobStatusFailed    = "failed"
)

// JobRun is the latest recorded outcome for one job key.
type JobRun struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	VideoID   int64     `json:"videoId"`
	Param     string    `json:"param,omitempty"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats summarizes catalog contents.
type Stats struct {
	TotalVideos     int
	TotalCategories int
	JobsByStatus    map[string]int
}
