// Package httpcache provides cached, retried, and paced HTTP fetching.
package httpcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sfcache"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/localfs"
	"github.com/codeGROOVE-dev/sfcache/pkg/store/null"
)

// UserAgent is the desktop browser User-Agent sent to www hosts.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:146.0) Gecko/20100101 Firefox/146.0"

// MobileUserAgent is sent to m. hosts so they serve the lightweight mobile markup.
const MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) " +
	"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1"

// Stats counts how Get calls were served.
type Stats struct {
	Hits   int64 // answered from the cache
	Misses int64 // sent to the network
}

// Cacher allows external cache implementations.
type Cacher interface {
	GetSet(ctx context.Context, key string, fetch func(context.Context) ([]byte, error), ttl ...time.Duration) ([]byte, error)
	TTL() time.Duration
}

// Cache wraps sfcache for HTTP response caching.
type Cache struct {
	*sfcache.TieredCache[string, []byte]

	ttl time.Duration
}

// New creates a new Cache with disk persistence at ~/.cache/harvest.
func New(ttl time.Duration) (*Cache, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return NewWithPath(ttl, filepath.Join(cacheDir, "harvest"))
}

// NewNull creates a Cache with no persistence. Concurrent requests for the
// same URL still collapse into one fetch.
func NewNull() *Cache {
	tc, err := sfcache.NewTiered[string, []byte](null.New[string, []byte]())
	if err != nil {
		panic("sfcache.NewTiered with null store: " + err.Error())
	}
	return &Cache{TieredCache: tc, ttl: 0}
}

// NewWithPath creates a new Cache with disk persistence at the specified path.
func NewWithPath(ttl time.Duration, cachePath string) (*Cache, error) {
	if err := os.MkdirAll(cachePath, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	persist, err := localfs.New[string, []byte]("harvest", cachePath)
	if err != nil {
		return nil, fmt.Errorf("create persistence layer: %w", err)
	}

	tc, err := sfcache.NewTiered[string, []byte](persist, sfcache.TTL(ttl))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Cache{TieredCache: tc, ttl: ttl}, nil
}

// TTL returns the default TTL for cache entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// URLToKey converts a URL to a cache key using SHA256 hash.
func URLToKey(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(hash[:])
}

// HTTPError represents a non-200 HTTP response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Client performs GET requests on behalf of the extraction engine.
type Client struct {
	httpClient *http.Client
	cache      Cacher
	pacer      *Pacer
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
	timeout    time.Duration
	attempts   uint
}

// Option configures a Client.
type Option func(*config)

type config struct {
	cache      Cacher
	httpClient *http.Client
	logger     *slog.Logger
	hostDelays map[string]time.Duration
	minDelay   time.Duration
	timeout    time.Duration
	attempts   uint
}

// WithCache sets the response cache. A nil cache disables caching.
func WithCache(cache Cacher) Option {
	return func(c *config) { c.cache = cache }
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMinDelay sets the minimum delay between two requests to the same host.
func WithMinDelay(d time.Duration) Option {
	return func(c *config) { c.minDelay = d }
}

// WithHostDelay overrides the minimum delay for one host.
func WithHostDelay(host string, d time.Duration) Option {
	return func(c *config) {
		if c.hostDelays == nil {
			c.hostDelays = make(map[string]time.Duration)
		}
		c.hostDelays[host] = d
	}
}

// WithTimeout bounds a single Get, retries included.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithAttempts sets how many times a transient failure is attempted.
func WithAttempts(n uint) Option {
	return func(c *config) { c.attempts = n }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	cfg := &config{
		logger:   slog.Default(),
		timeout:  10 * time.Second,
		attempts: 2,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.attempts == 0 {
		cfg.attempts = 1
	}

	return &Client{
		httpClient: cfg.httpClient,
		cache:      cfg.cache,
		pacer:      NewPacer(cfg.minDelay, cfg.hostDelays),
		logger:     cfg.logger,
		timeout:    cfg.timeout,
		attempts:   cfg.attempts,
	}
}

// Stats reports how this client's requests were served so far.
func (c *Client) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Get fetches rawURL and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentFor(req.URL))
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	return c.fetch(ctx, req)
}

func userAgentFor(u *url.URL) string {
	if strings.HasPrefix(strings.ToLower(u.Hostname()), "m.") {
		return MobileUserAgent
	}
	return UserAgent
}

func (c *Client) fetch(ctx context.Context, req *http.Request) ([]byte, error) {
	if c.cache == nil {
		c.logger.DebugContext(ctx, "cache disabled", "url", req.URL.String())
		c.misses.Add(1)
		return c.doFetch(ctx, req)
	}

	var wasFetched bool
	data, err := c.cache.GetSet(ctx, URLToKey(req.URL.String()), func(ctx context.Context) ([]byte, error) {
		wasFetched = true
		c.misses.Add(1)
		c.logger.InfoContext(ctx, "cache miss", "url", req.URL.String())
		body, fetchErr := c.doFetch(ctx, req)
		if fetchErr != nil {
			// HTTP errors are cached so a broken URL is not hammered; network errors are not.
			var httpErr *HTTPError
			if errors.As(fetchErr, &httpErr) {
				return fmt.Appendf(nil, "ERROR:%d", httpErr.StatusCode), nil
			}
			return nil, fetchErr
		}
		return body, nil
	}, c.cache.TTL())
	if err != nil {
		return nil, err
	}

	if !wasFetched {
		c.hits.Add(1)
		c.logger.DebugContext(ctx, "cache hit", "url", req.URL.String())
	}

	if errCode, found := strings.CutPrefix(string(data), "ERROR:"); found {
		code, _ := strconv.Atoi(errCode) //nolint:errcheck // 0 is acceptable default
		return nil, &HTTPError{StatusCode: code, URL: req.URL.String()}
	}

	return data, nil
}

func (c *Client) doFetch(ctx context.Context, req *http.Request) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	return retry.DoWithData(
		func() ([]byte, error) {
			if err := c.pacer.Wait(ctx, req.URL.String()); err != nil {
				return nil, err
			}

			resp, err := c.httpClient.Do(req.WithContext(ctx))
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // intentional

			if resp.StatusCode != http.StatusOK {
				return nil, &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.String()}
			}

			return io.ReadAll(resp.Body)
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(200*time.Millisecond),
		retry.MaxJitter(100*time.Millisecond),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.DebugContext(ctx, "retrying HTTP request", "attempt", n+1, "url", req.URL.String(), "error", err)
		}),
	)
}

// isRetryableError returns true for transient errors that should be retried.
func isRetryableError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return true
}
