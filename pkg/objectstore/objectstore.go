// Package objectstore defines the interface to talk to the remote object
// storage backends images are resolved from
package objectstore

import (
	"context"
	"io"
)

type (
	// ObjectInfo carries the metadata of a remote object as reported by
	// the backend without downloading its content
	ObjectInfo struct {
		ContentType string
		Size        int64
	}

	// Store is the interface to implement when building an object
	// storage backend. A missing object must be reported through an
	// error satisfying errors.Is(err, os.ErrNotExist) so callers can
	// tell "not found" apart from transport or permission failures.
	Store interface {
		Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error)
		Download(ctx context.Context, bucket, key string, dst io.Writer) error
	}
)
