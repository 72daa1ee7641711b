// Package resolver locates source images in a remote object store and
// mirrors them into a local on-disk cache shared between any number of
// server processes. The first resolve of an identifier copies the
// source image into the cache, subsequent resolves use the local copy.
package resolver

import (
	"context"
	"net/url"
	"os"
	"regexp"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hxloris/s3resolver/pkg/objectstore"
)

type (
	// Config contains the settings for a Resolver. CacheRoot is the
	// only mandatory setting.
	Config struct {
		// CacheRoot is the absolute path to the directory source
		// images are cached beneath (required)
		CacheRoot string
		// BucketMap maps identifier prefixes to buckets, a nil map
		// means every prefix is a literal bucket name
		BucketMap map[string]BucketAlias
		// DefaultFormat forces the output format regardless of the
		// detected content type
		DefaultFormat string
		// IdentRegex limits acceptable identifiers, matched from
		// the start of the identifier. Empty allows everything.
		IdentRegex string
		// AuthRulesExt is the extension of the sidecar access
		// rules objects / files (default "rules")
		AuthRulesExt string
		// Namer derives the cache directory name for an identifier
		// (default DefaultNamer)
		Namer func(ident string) string
		// ExtraInfo optionally computes extra descriptive metadata
		// attached to resolved images
		ExtraInfo func(ident, localPath string) (map[string]any, error)
	}

	// ImageDescriptor is the result of resolving an identifier
	ImageDescriptor struct {
		LocalPath string
		Format    string
		Extra     map[string]any
	}

	// Resolver resolves identifiers of the form bucket/key (subject
	// to the alias table) against a remote object store
	Resolver struct {
		cfg        Config
		store      objectstore.Store
		identRegex *regexp.Regexp
		log        logrus.FieldLogger
	}
)

// New creates a Resolver from the given settings. Construction fails
// when the mandatory CacheRoot setting is absent or the identifier
// pattern does not compile.
func New(cfg Config, store objectstore.Store, logger logrus.FieldLogger) (*Resolver, error) {
	if cfg.CacheRoot == "" {
		return nil, errors.New("configuration incomplete: missing setting for cache_root")
	}

	if cfg.AuthRulesExt == "" {
		cfg.AuthRulesExt = "rules"
	}

	if cfg.Namer == nil {
		cfg.Namer = DefaultNamer
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &Resolver{
		cfg:   cfg,
		store: store,
		log:   logger,
	}

	if cfg.IdentRegex != "" {
		re, err := regexp.Compile("^(?:" + cfg.IdentRegex + ")")
		if err != nil {
			return nil, errors.Wrap(err, "compile ident regex")
		}
		r.identRegex = re
	}

	logger.WithField("bucket_map", cfg.BucketMap).Debug("loaded resolver")

	return r, nil
}

// IsResolvable reports whether an identifier can be resolved: it has
// an acceptable form, and a cache entry or a non-empty remote object
// exists for it. It never returns an error, all failure modes collapse
// to false.
func (r *Resolver) IsResolvable(ctx context.Context, ident string) bool {
	ident, err := url.PathUnescape(ident)
	if err != nil {
		r.log.WithError(err).WithField("ident", ident).Debug("undecodable identifier")
		return false
	}

	if !r.identAllowed(ident) {
		return false
	}

	if r.cachedFileForIdent(ident) != "" {
		return true
	}

	bucket, key, err := r.objectForIdent(ident)
	if err != nil {
		r.log.WithError(err).WithField("ident", ident).Warn("unresolvable identifier")
		return false
	}

	info, err := r.store.Stat(ctx, bucket, key)
	switch {
	case err == nil:
		// This is fine

	case os.IsNotExist(err):
		r.log.WithFields(logrus.Fields{
			"bucket": bucket,
			"key":    key,
		}).Warn("invalid key for bucket")
		return false

	default:
		r.log.WithError(err).WithFields(logrus.Fields{
			"bucket": bucket,
			"key":    key,
		}).Error("probing source image")
		return false
	}

	return info.Size > 0
}

// Resolve returns the local cached file for an identifier, populating
// the cache from the remote store on the first call. The baseURI is
// the request URI the host application resolved the identifier under,
// it only serves diagnostic purposes here.
func (r *Resolver) Resolve(ctx context.Context, ident, baseURI string) (*ImageDescriptor, error) {
	decoded, err := url.PathUnescape(ident)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidIdentifier, "decoding %q", ident)
	}

	r.log.WithFields(logrus.Fields{
		"base_uri": baseURI,
		"ident":    decoded,
	}).Debug("resolving identifier")

	localFP := r.cachedFileForIdent(decoded)
	if localFP == "" {
		if localFP, err = r.copyToCache(ctx, decoded); err != nil {
			return nil, err
		}
	}

	desc := &ImageDescriptor{
		LocalPath: localFP,
		Format:    r.getFormat(localFP, ""),
	}

	if r.cfg.ExtraInfo != nil {
		if desc.Extra, err = r.cfg.ExtraInfo(decoded, localFP); err != nil {
			return nil, errors.Wrap(err, "get extra info")
		}
	}

	return desc, nil
}
