package resolver

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hxloris/s3resolver/pkg/objectstore"
)

const (
	cacheDirPermission = 0o700

	// cacheFileStem is the fixed base name of cached files, the
	// extension reflects the image format (or the rules extension)
	cacheFileStem = "loris_cache"

	// tempFileSuffix marks in-flight downloads inside a cache
	// directory, those never count as a cache hit
	tempFileSuffix = ".part"
)

// formatsByMediaType maps remote content types onto cache file
// extensions
var formatsByMediaType = map[string]string{
	"application/pdf": "pdf",
	"image/gif":       "gif",
	"image/jp2":       "jp2",
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/tiff":      "tif",
	"image/webp":      "webp",
}

// DefaultNamer derives the cache directory name for an identifier from
// its SHA256 hash, fanned out over a two-character prefix directory
func DefaultNamer(ident string) string {
	h := fmt.Sprintf("%x", sha256.Sum256([]byte(ident)))
	return path.Join(h[0:2], h)
}

func (r *Resolver) cacheDirPath(ident string) string {
	return filepath.Join(r.cfg.CacheRoot, r.cfg.Namer(ident))
}

// cachedFileForIdent returns the path of the cached image file for the
// given identifier or an empty string when none exists. Rules files and
// in-flight temp files inside the cache directory are not image files.
func (r *Resolver) cachedFileForIdent(ident string) string {
	matches, err := filepath.Glob(filepath.Join(r.cacheDirPath(ident), cacheFileStem+".*"))
	if err != nil {
		return ""
	}

	// Glob results are in lexical order so repeated calls pick the
	// same file even if more than one is present
	for _, match := range matches {
		if strings.HasSuffix(match, "."+r.cfg.AuthRulesExt) || strings.HasSuffix(match, tempFileSuffix) {
			continue
		}
		return match
	}

	return ""
}

// getFormat picks the output format: the configured default wins, then
// the potential format proposed by the caller, then the extension found
// in the identifier itself
func (r *Resolver) getFormat(ident, potentialFormat string) string {
	switch {
	case r.cfg.DefaultFormat != "":
		return r.cfg.DefaultFormat

	case potentialFormat != "":
		return potentialFormat

	default:
		return formatFromIdent(ident)
	}
}

func formatFromIdent(ident string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(ident), "."))
}

// cacheFileExtension determines the extension for the cache file from
// the remote content type, falling back to the identifier when the
// content type is absent or unknown
func (r *Resolver) cacheFileExtension(ident string, info *objectstore.ObjectInfo) string {
	if info.ContentType == "" {
		return r.getFormat(ident, "")
	}

	format, ok := formatsByMediaType[info.ContentType]
	if !ok {
		r.log.WithFields(logrus.Fields{
			"content_type": info.ContentType,
			"ident":        ident,
		}).Warn("wonky source content-type, deriving extension from identifier")
		return r.getFormat(ident, "")
	}

	return r.getFormat(ident, format)
}

// copyToCache downloads the source image for a decoded identifier into
// the local cache and returns the path of the cached file. It is safe
// to run concurrently from any number of processes sharing the cache.
func (r *Resolver) copyToCache(ctx context.Context, ident string) (string, error) {
	bucket, key, err := r.objectForIdent(ident)
	if err != nil {
		return "", err
	}

	logger := r.log.WithFields(logrus.Fields{
		"bucket": bucket,
		"ident":  ident,
		"key":    key,
	})

	info, err := r.store.Stat(ctx, bucket, key)
	switch {
	case err == nil:
		// This is fine

	case os.IsNotExist(err):
		return "", errors.Wrapf(ErrRemoteNotFound, "probing %s:%s", bucket, key)

	default:
		return "", errors.Wrap(err, "probe source image")
	}

	cacheDir := r.cacheDirPath(ident)
	if err = os.MkdirAll(cacheDir, cacheDirPermission); err != nil {
		return "", errors.Wrap(err, "create cache dir")
	}

	tmpFile, err := os.CreateTemp(cacheDir, cacheFileStem+".*"+tempFileSuffix)
	if err != nil {
		return "", errors.Wrap(err, "create temp file")
	}

	if err = r.store.Download(ctx, bucket, key, tmpFile); err != nil {
		removeTempFile(tmpFile, logger)
		return "", errors.Wrap(err, "download source image")
	}

	if err = tmpFile.Close(); err != nil {
		if rErr := os.Remove(tmpFile.Name()); rErr != nil {
			logger.WithError(rErr).Warn("removing temp file")
		}
		return "", errors.Wrap(err, "close temp file")
	}

	localFP := filepath.Join(cacheDir, strings.Join([]string{cacheFileStem, r.cacheFileExtension(ident, info)}, "."))

	// Rename the temp file to the final name only if that still does
	// not exist (another process could have created it meanwhile).
	// The check and the rename are not atomic: two writers may both
	// pass the check, the last rename wins. All writers fetch the
	// same remote bytes so the contents are never re-verified.
	if _, err := os.Stat(localFP); err == nil {
		logger.WithField("path", localFP).Info("another process downloaded the source image")
		if err = os.Remove(tmpFile.Name()); err != nil {
			logger.WithError(err).Warn("removing obsolete temp file")
		}
	} else {
		if err = os.Rename(tmpFile.Name(), localFP); err != nil {
			return "", errors.Wrap(err, "publish cache file")
		}
		logger.WithField("path", localFP).Info("copied source image to cache")
	}

	r.fetchRulesFile(ctx, bucket, key, cacheDir, logger)

	return localFP, nil
}

// fetchRulesFile fetches the sidecar access rules object next to the
// source image, if any. Rules files are small so they are fetched in
// one go right after the image. A missing rules object is a perfectly
// valid state, every failure here is logged and swallowed.
func (r *Resolver) fetchRulesFile(ctx context.Context, bucket, key, cacheDir string, logger logrus.FieldLogger) {
	localFP := filepath.Join(cacheDir, strings.Join([]string{cacheFileStem, r.cfg.AuthRulesExt}, "."))
	if _, err := os.Stat(localFP); err == nil {
		return
	}

	// The rules object sits next to the image, named after the part
	// of the filename before the first dot
	dir, file := path.Split(key)
	rulesKey := dir + strings.SplitN(file, ".", 2)[0] + "." + r.cfg.AuthRulesExt
	logger = logger.WithField("rules_key", rulesKey)

	tmpFile, err := os.CreateTemp(cacheDir, cacheFileStem+".*"+tempFileSuffix)
	if err != nil {
		logger.WithError(err).Warn("ignoring rules file: create temp file")
		return
	}

	if err = r.store.Download(ctx, bucket, rulesKey, tmpFile); err != nil {
		removeTempFile(tmpFile, logger)
		logger.WithError(err).Warn("ignoring rules file")
		return
	}

	if err = tmpFile.Close(); err != nil {
		if rErr := os.Remove(tmpFile.Name()); rErr != nil {
			logger.WithError(rErr).Warn("removing temp file")
		}
		logger.WithError(err).Warn("ignoring rules file: close temp file")
		return
	}

	if _, err := os.Stat(localFP); err == nil {
		// Another process fetched the rules meanwhile
		if err = os.Remove(tmpFile.Name()); err != nil {
			logger.WithError(err).Warn("removing obsolete temp file")
		}
		return
	}

	if err = os.Rename(tmpFile.Name(), localFP); err != nil {
		logger.WithError(err).Warn("ignoring rules file: publish")
	}
}

func removeTempFile(f *os.File, logger logrus.FieldLogger) {
	if err := f.Close(); err != nil {
		logger.WithError(err).Warn("closing temp file (leaked fd)")
	}
	if err := os.Remove(f.Name()); err != nil {
		logger.WithError(err).Warn("removing temp file")
	}
}
