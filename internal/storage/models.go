package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrSaveInProgress is returned when a session is already being saved.
var ErrSaveInProgress = errors.New("save already in progress")

// Session is the persisted working state of one entity: the last-saved
// snapshot and the edited copy, both as JSON documents.
type Session struct {
	Kind        string
	ID          string
	Position    int
	Current     []byte
	Original    []byte
	// Saving is false once the mark is older than the store's stale limit.
	Saving      bool
	SavingSince time.Time
	UpdatedAt   time.Time
}

// Preview is a locally held handle for a file awaiting upload.
type Preview struct {
	Handle      string
	Path        string
	Name        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
	ReleasedAt  time.Time // zero while active
}
