package resolver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBucketMap(t *testing.T) {
	mapFile := filepath.Join(t.TempDir(), "buckets.yaml")
	require.NoError(t, os.WriteFile(mapFile, []byte(`---
iiif:
  bucket: bucket-iiif
  key_prefix: hx
loris:
  bucket: bucket-loris
`), 0o600))

	bucketMap, err := LoadBucketMap(mapFile)
	require.NoError(t, err)

	require.Equal(t, map[string]BucketAlias{
		"iiif":  {Bucket: "bucket-iiif", KeyPrefix: "hx"},
		"loris": {Bucket: "bucket-loris"},
	}, bucketMap)
}

func TestLoadBucketMapUnset(t *testing.T) {
	bucketMap, err := LoadBucketMap("")
	require.NoError(t, err)
	require.Nil(t, bucketMap)
}

func TestLoadBucketMapBroken(t *testing.T) {
	mapFile := filepath.Join(t.TempDir(), "buckets.yaml")
	require.NoError(t, os.WriteFile(mapFile, []byte("not: [valid"), 0o600))

	_, err := LoadBucketMap(mapFile)
	require.Error(t, err)
}

func TestLoadBucketMapMissingFile(t *testing.T) {
	_, err := LoadBucketMap(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
