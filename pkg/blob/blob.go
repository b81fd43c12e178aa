// Package blob provides payload storage for artifact content. Artifact rows
// carry only a payload reference; the bytes themselves live here.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no payload exists for a reference.
var ErrNotFound = errors.New("blob: reference not found")

// Store persists opaque payloads and retrieves them by reference.
type Store interface {
	// Put stores the payload and returns an opaque reference to it.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves the payload for a reference. Returns ErrNotFound if the
	// reference is unknown.
	Get(ctx context.Context, ref string) ([]byte, error)
	// Delete removes the payload for a reference. Deleting an unknown
	// reference is not an error.
	Delete(ctx context.Context, ref string) error
	// Close releases any underlying resources.
	Close() error
}
