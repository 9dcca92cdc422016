package assets

import (
	"errors"
	"net/url"
	"strings"
)

// IndexFile is served for the root and for any key ending in a slash.
const IndexFile = "index.html"

// ErrBadKey rejects paths that cannot be mapped to a storage key.
var ErrBadKey = errors.New("assets: bad key")

// NormalizeKey maps an escaped URL path to a storage key.
func NormalizeKey(escapedPath string) (string, error) {
	decoded, err := url.PathUnescape(escapedPath)
	if err != nil {
		return "", ErrBadKey
	}

	key := strings.TrimLeft(decoded, "/")
	if strings.ContainsRune(key, 0) {
		return "", ErrBadKey
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", ErrBadKey
		}
	}

	if key == "" || strings.HasSuffix(key, "/") {
		key += IndexFile
	}
	return key, nil
}
