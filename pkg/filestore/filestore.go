// Package filestore defines the capability surface the publishing pipeline
// needs from a remote file store. Backends live in subpackages: drive talks
// to a Drive-style REST API, dbstore keeps files in a database table.
package filestore

import (
	"context"
	"errors"
	"time"
)

// Common store errors. Backends map their native failures onto these so
// callers can branch with errors.Is.
var (
	// ErrNotFound is returned when a referenced file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrUnauthorized is returned when authentication fails.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when the credential lacks access to the folder or file.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a concurrent modification is detected.
	ErrConflict = errors.New("conflict")
)

// FileRef identifies a file in the store together with the attributes the
// pipeline reports in run outcomes.
type FileRef struct {
	ID       string
	Name     string
	Folder   string
	WebLink  string
	Size     int64
	Modified time.Time
}

// Store is the set of file operations the publisher, archiver, and run log
// depend on. Implementations must be safe for concurrent use.
type Store interface {
	// FindInFolder returns the first file named name in the given folder,
	// or nil if the folder holds no such file.
	FindInFolder(ctx context.Context, folderID, name string) (*FileRef, error)

	// Download returns the complete content of the file.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// Create uploads content as a new file in the folder.
	Create(ctx context.Context, folderID, name, contentType string, content []byte) (*FileRef, error)

	// UpdateContent replaces the content of an existing file in place.
	UpdateContent(ctx context.Context, fileID, contentType string, content []byte) (*FileRef, error)

	// Move renames a file and reparents it from one folder to another in a
	// single store call, so observers never see the intermediate state.
	Move(ctx context.Context, fileID, newName, fromFolderID, toFolderID string) (*FileRef, error)

	// Delete removes the file.
	Delete(ctx context.Context, fileID string) error

	// List returns up to limit files in the folder, oldest first.
	List(ctx context.Context, folderID string, limit int) ([]FileRef, error)
}
