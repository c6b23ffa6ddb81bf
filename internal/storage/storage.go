// Package storage defines the blob store abstraction used for archiving raw
// portal payloads.
package storage

import (
	"context"
	"io"
)

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
