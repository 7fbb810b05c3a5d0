package cache

import (
	"fmt"
	"net/url"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "bama:page:"

// Key is the Redis key of one cached page.
type Key string

// KeyForURL derives the key for a page URL. Scheme and fragment are ignored
// and query parameters are sorted, so equivalent URLs share a key.
//
// Example:
//
//	bama:page:bama.ir/cad/api/search?pageIndex=3
func KeyForURL(rawURL string) (Key, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	k := KeyPrefix + u.Host + u.EscapedPath()
	if q := u.Query(); len(q) > 0 {
		k += "?" + q.Encode()
	}
	return Key(k), nil
}

// pattern matches every page key for SCAN.
const pattern = KeyPrefix + "*"
