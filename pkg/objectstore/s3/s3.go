// Package s3 implements an objectstore.Store backend reading from S3
// compatible storage through the MinIO client
package s3

import (
	"context"
	"io"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hxloris/s3resolver/pkg/objectstore"
)

type (
	// Config holds connection parameters for the S3 backend. Either
	// Client is set or Endpoint plus credentials must be given.
	Config struct {
		Endpoint  string
		AccessKey string
		SecretKey string
		UseSSL    bool

		// Client optionally provides a pre-configured MinIO client,
		// in which case the fields above are ignored
		Client *minio.Client
	}

	// Store implements the objectstore.Store interface for S3
	// compatible storage
	Store struct {
		client *minio.Client
	}
)

// New returns a new S3 storage backend
func New(cfg Config) (*Store, error) {
	if cfg.Client != nil {
		return &Store{client: cfg.Client}, nil
	}

	if cfg.Endpoint == "" {
		return nil, errors.New("no endpoint given")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create S3 client")
	}

	return &Store{client: client}, nil
}

// Stat implements the objectstore.Store Stat method
func (s Store) Stat(ctx context.Context, bucket, key string) (*objectstore.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, translateErr(err, "stat object")
	}

	return &objectstore.ObjectInfo{
		ContentType: info.ContentType,
		Size:        info.Size,
	}, nil
}

// Download implements the objectstore.Store Download method
func (s Store) Download(ctx context.Context, bucket, key string, dst io.Writer) error {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return translateErr(err, "get object")
	}
	defer func() {
		if err := obj.Close(); err != nil {
			logrus.WithError(err).Error("closing object reader (leaked fd)")
		}
	}()

	if _, err = io.Copy(dst, obj); err != nil {
		return translateErr(err, "copy object content")
	}

	return nil
}

// translateErr maps MinIO error responses for missing objects onto
// os.ErrNotExist (surrounding code reacts on ErrNotExist) and wraps
// everything else
func translateErr(err error, action string) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return os.ErrNotExist

	default:
		return errors.Wrap(err, action)
	}
}
