package resolver

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// BucketAlias maps an identifier prefix to the actual bucket it stands
// for, optionally prepending a key prefix to the object key
type BucketAlias struct {
	Bucket    string `yaml:"bucket"`
	KeyPrefix string `yaml:"key_prefix"`
}

// objectForIdent splits a decoded identifier into the bucket and object
// key it refers to. The part before the first slash is looked up in the
// alias table and otherwise taken as the literal bucket name.
func (r *Resolver) objectForIdent(ident string) (bucket, key string, err error) {
	parts := strings.SplitN(ident, "/", 2)
	if len(parts) != 2 {
		return "", "", errors.Wrapf(ErrInvalidIdentifier, "expected bucket/key, got %q", ident)
	}
	bucket, key = parts[0], parts[1]

	alias, ok := r.cfg.BucketMap[bucket]
	if !ok {
		// What came in the identifier is the actual bucket name
		return bucket, key, nil
	}

	if alias.KeyPrefix != "" {
		key = path.Join(alias.KeyPrefix, key)
	}

	return alias.Bucket, key, nil
}

// identAllowed checks a decoded identifier against the configured
// validity pattern, matching from the start of the identifier. Without
// a configured pattern every identifier is allowed.
func (r *Resolver) identAllowed(ident string) bool {
	if r.identRegex == nil {
		return true
	}
	return r.identRegex.MatchString(ident)
}
