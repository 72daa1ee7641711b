// Package gcs implements an objectstore.Store backend reading from GCS
package gcs

import (
	"context"
	"io"
	"os"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hxloris/s3resolver/pkg/objectstore"
)

// Store implements the objectstore.Store interface for GCS buckets
type Store struct {
	client *gcs.Client
}

// New returns a new GCS storage backend using ambient credentials
func New(ctx context.Context) (*Store, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "create GCS client")
	}

	return &Store{client: client}, nil
}

// Stat implements the objectstore.Store Stat method
func (s Store) Stat(ctx context.Context, bucket, key string) (*objectstore.ObjectInfo, error) {
	objHdl := s.client.Bucket(bucket).Object(key)

	attrs, err := objHdl.Attrs(ctx)
	switch err {
	case nil:
		// This is fine

	case gcs.ErrObjectNotExist:
		return nil, os.ErrNotExist // Surrounding code reacts on ErrNotExist

	default:
		return nil, errors.Wrap(err, "get object attrs")
	}

	return &objectstore.ObjectInfo{
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
	}, nil
}

// Download implements the objectstore.Store Download method
func (s Store) Download(ctx context.Context, bucket, key string, dst io.Writer) error {
	objHdl := s.client.Bucket(bucket).Object(key)

	r, err := objHdl.NewReader(ctx)
	switch err {
	case nil:
		// This is fine

	case gcs.ErrObjectNotExist:
		return os.ErrNotExist

	default:
		return errors.Wrap(err, "get object reader")
	}
	defer func() {
		if err := r.Close(); err != nil {
			logrus.WithError(err).Error("closing object reader (leaked fd)")
		}
	}()

	if _, err = io.Copy(dst, r); err != nil {
		return errors.Wrap(err, "copy object content")
	}

	return nil
}
