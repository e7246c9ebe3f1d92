// Package urlutil provides the URL canonicalization used by recording and
// decisioning. Cache keys, storage keys, and reputation lookups all use the
// normalized form so the same resource never appears under several spellings.
package urlutil

import (
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// localSchemes are passed through untouched by Host; they identify
// host-internal URLs (the extension's own pages, local files).
var localSchemes = []string{"chrome-extension:", "file:"}

// Normalize strips the query string and fragment from a URL. The remainder
// is the storage and cache key for the resource.
func Normalize(raw string) string {
	end := strings.IndexByte(raw, '?')
	if hash := strings.IndexByte(raw, '#'); hash >= 0 && (end < 0 || hash < end) {
		end = hash
	}
	if end >= 0 {
		return raw[:end]
	}
	return raw
}

// IsLocal reports whether the URL uses a host-internal scheme.
func IsLocal(raw string) bool {
	for _, scheme := range localSchemes {
		if strings.HasPrefix(raw, scheme) {
			return true
		}
	}
	return false
}

// Host extracts the site identity out of a URL: the full hostname,
// lowercased and punycoded. Local-scheme URLs are returned unchanged so
// they stay distinguishable. An empty return means the URL carries no
// usable host.
func Host(raw string) string {
	if IsLocal(raw) {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// The hook occasionally reports scheme-less URLs; fall back to the
		// leading path segment the way a browser address bar would.
		return fallbackHost(raw)
	}
	return canonicalHost(u.Hostname())
}

func fallbackHost(raw string) string {
	raw = Normalize(raw)
	raw = strings.TrimPrefix(raw, "//")
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		raw = raw[:i]
	}
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[:i]
	}
	return canonicalHost(raw)
}

func canonicalHost(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return ""
	}
	// Internationalized names are stored in their ASCII form.
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		return ascii
	}
	return host
}
