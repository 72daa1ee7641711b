package resolver

import "github.com/pkg/errors"

var (
	// ErrInvalidIdentifier is returned when an identifier cannot be
	// split into a bucket and an object key
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrRemoteNotFound is returned when the source image does not
	// exist in the remote object store
	ErrRemoteNotFound = errors.New("source image not found")
)
