// Package reputation implements the client for the external URL reputation
// lookup service. Lookups are best-effort single attempts; failures degrade
// to an unknown verdict and never propagate into the decision path.
package reputation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/surfguard/internal/guard/common/log"
	"github.com/haukened/surfguard/internal/guard/common/urlutil"
	"github.com/haukened/surfguard/internal/guard/domain"
)

// Lookup response status codes, per the service's fixed code table.
const (
	StatusBlocked       = http.StatusOK        // 200: URL is listed
	StatusAllowed       = http.StatusNoContent // 204: URL is clean
	StatusBadRequest    = http.StatusBadRequest
	StatusNotAuthorized = http.StatusUnauthorized
	StatusUnavailable   = http.StatusServiceUnavailable
)

const (
	clientName    = "surfguard"
	clientVersion = "0.1"
	protoVersion  = "3.0"

	defaultTimeout   = 10 * time.Second
	defaultCacheSize = 65536
)

// Result is the raw outcome of one lookup.
type Result struct {
	Verdict    domain.Verdict
	Body       string
	StatusCode int
}

// Client checks URLs against the reputation service, caching verdicts per
// normalized URL so repeated checks cost no network call.
type Client struct {
	endpoint string
	http     *http.Client
	cache    *lru.Cache[string, domain.Verdict]
	logger   log.Logger

	mu  sync.RWMutex
	key string
}

// Options configures a Client.
type Options struct {
	// Endpoint is the lookup URL of the reputation service.
	Endpoint string
	// Key is the API credential. Empty means unconfigured: every check
	// answers unknown without network I/O.
	Key string
	// Timeout bounds one lookup round trip. Zero selects the default.
	Timeout time.Duration
	// CacheSize bounds the verdict cache. Zero selects the default.
	CacheSize int
	Logger    log.Logger
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	cache, err := lru.New[string, domain.Verdict](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Client{
		endpoint: opts.Endpoint,
		http:     &http.Client{Timeout: opts.Timeout},
		cache:    cache,
		logger:   opts.Logger,
		key:      opts.Key,
	}, nil
}

// SetKey replaces the API credential at runtime (settings-observed).
// Clearing the key effectively disables lookups.
func (c *Client) SetKey(key string) {
	c.mu.Lock()
	c.key = key
	c.mu.Unlock()
}

func (c *Client) currentKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key
}

// Check classifies a URL. The URL is normalized first; cache key and
// upstream lookup key are the normalized form. Service failures return
// VerdictUnknown together with the error.
func (c *Client) Check(ctx context.Context, rawURL string) (domain.Verdict, error) {
	normalized := urlutil.Normalize(rawURL)

	if c.currentKey() == "" {
		return domain.VerdictUnknown, nil
	}
	if v, ok := c.cache.Get(normalized); ok {
		return v, nil
	}

	res, err := c.Lookup(ctx, normalized)
	if err != nil {
		return domain.VerdictUnknown, err
	}
	if res.Verdict == domain.VerdictUnknown {
		c.logger.Warn(map[string]any{"status": res.StatusCode, "url": normalized},
			"no verdict from reputation service")
		// Indeterminate answers are not cached; the URL stays re-checkable.
		return domain.VerdictUnknown, nil
	}

	c.cache.Add(normalized, res.Verdict)
	return res.Verdict, nil
}

// Lookup performs one uncached round trip against the service. The request
// body is a count line followed by the URL, one URL per check.
func (c *Client) Lookup(ctx context.Context, normalizedURL string) (Result, error) {
	query := url.Values{
		"client": {clientName},
		"apikey": {c.currentKey()},
		"appver": {clientVersion},
		"pver":   {protoVersion},
	}
	body := "1\n" + normalizedURL

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"?"+query.Encode(), strings.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build reputation request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("reputation lookup: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	res := Result{Body: string(raw), StatusCode: resp.StatusCode}
	switch resp.StatusCode {
	case StatusAllowed:
		res.Verdict = domain.VerdictAllowed
	case StatusBlocked:
		res.Verdict = domain.VerdictBlocked
	default:
		res.Verdict = domain.VerdictUnknown
	}
	return res, nil
}
