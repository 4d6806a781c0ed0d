package diskcache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
)

// Query parameters that never take part in a cache key.
var ignoredParams = []string{"key", "no_cache", "q", "break", "debug_cache"}

// ComputeKey hashes the locale, scope segment, request path and the
// remaining query parameters sorted by name.
func ComputeKey(locale string, scope Scope, identity, reqPath string, query url.Values) string {
	if locale == "" {
		locale = DefaultLocale
	}

	filtered := url.Values{}
	for k, vs := range query {
		filtered[k] = vs
	}

	for _, p := range ignoredParams {
		filtered.Del(p)
	}

	signature := fmt.Sprintf("%s/%s/%s?%s", locale, segment(scope, identity), reqPath, filtered.Encode())

	sum := md5.Sum([]byte(signature))
	return hex.EncodeToString(sum[:])
}
