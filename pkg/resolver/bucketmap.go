package resolver

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadBucketMap reads an alias table from a YAML file mapping
// identifier prefixes to BucketAlias records. An empty path yields a
// nil map, meaning no aliasing takes place.
func LoadBucketMap(mapFile string) (map[string]BucketAlias, error) {
	if mapFile == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(mapFile) //#nosec:G304 // Safe source of variable
	if err != nil {
		return nil, errors.Wrap(err, "read bucket map file")
	}

	out := map[string]BucketAlias{}
	if err = yaml.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "parse bucket map file")
	}

	return out, nil
}
