package engine

import (
	"regexp"
	"strings"

	"github.com/haukened/surfguard/internal/guard/common/urlutil"
	"github.com/haukened/surfguard/internal/guard/domain"
)

// infraDomains are second-level names of infrastructure the browser and
// common pages depend on; blocking them breaks everything while teaching
// nothing. Entries are regexp fragments matched against the request host.
//
// TODO(#whitelist): let users extend this list via settings.
var infraDomains = []string{
	`doubleclick`,
	`google`,
	`googleadservices`,
	`googleusercontent`,
	`gstatic`,
	`ajax\.googleapis`,
	`ssl\.google-analytics`,
}

// whitelist answers whether a request bypasses classification entirely.
type whitelist struct {
	names    []string
	patterns []*regexp.Regexp
	// ownOrigin is this tool's own URL prefix; its requests are always
	// allowed.
	ownOrigin string
}

func newWhitelist(ownOrigin string) *whitelist {
	w := &whitelist{ownOrigin: ownOrigin}
	for _, name := range infraDomains {
		w.names = append(w.names, name)
		// Match the name as apex or any subdomain, under any public suffix.
		w.patterns = append(w.patterns, regexp.MustCompile(`(?i)(^\S+\.|^)`+name+`\.\w+$`))
	}
	return w
}

// Matches reports whether a request is whitelisted.
func (w *whitelist) Matches(req domain.Request) bool {
	if w.ownOrigin != "" && strings.HasPrefix(req.URL, w.ownOrigin) {
		return true
	}

	// Favicons load as type "other" and are always allowed.
	if req.Type == domain.ResourceTypeOther &&
		strings.HasSuffix(urlutil.Normalize(req.URL), "/favicon.ico") {
		return true
	}

	host := urlutil.Host(req.URL)
	for _, p := range w.patterns {
		if p.MatchString(host) {
			return true
		}
	}
	return false
}

// Names returns the whitelisted infrastructure names for display.
func (w *whitelist) Names() []string {
	out := make([]string, len(w.names))
	copy(out, w.names)
	return out
}
