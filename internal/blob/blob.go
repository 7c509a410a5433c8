// Package blob defines the attachment storage collaborator: upload bytes,
// get back a public URL. The core only ever talks to this boundary.
package blob

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no backing storage is configured.
// The HTTP send path surfaces this to the submitter as a server error.
var ErrNotConfigured = errors.New("blob: storage not configured")

// Store uploads attachment bytes and returns a URL clients can fetch.
type Store interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// Unconfigured is the default Store when no blob directory is set.
type Unconfigured struct{}

// Upload always fails with ErrNotConfigured.
func (Unconfigured) Upload(context.Context, []byte, string) (string, error) {
	return "", ErrNotConfigured
}
