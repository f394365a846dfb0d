package modelcatalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skosovsky/chatbridge"
)

const (
	defaultTTL = 5 * time.Minute
	// maxBodySize limits the fetched document; catalogs are small.
	maxBodySize      = 1 << 20
	defaultUserAgent = "chatbridge-modelcatalog/1.0"
)

// detachCancel returns a context that survives parent cancellation but keeps parent's deadline,
// so one caller giving up does not fail the fetch shared with other callers.
func detachCancel(parent context.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(parent)
	if dl, ok := parent.Deadline(); ok {
		return context.WithDeadline(ctx, dl)
	}
	return context.WithCancel(ctx)
}

// HTTPSource fetches a YAML catalog from a URL and caches it for a TTL.
// Concurrent misses share one fetch.
type HTTPSource struct {
	url        string
	httpClient *http.Client
	authToken  string
	ttl        time.Duration
	now        func() time.Time

	mu        sync.RWMutex
	cache     *Catalog
	expiresAt time.Time
	sf        singleflight.Group
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient sets the HTTP client. Default has a 30s timeout. Nil is ignored.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPSource) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithAuthToken sets a bearer token for the catalog request.
func WithAuthToken(token string) HTTPOption {
	return func(h *HTTPSource) { h.authToken = token }
}

// WithTTL sets the cache TTL. Default 5 minutes; TTL <= 0 caches forever.
func WithTTL(d time.Duration) HTTPOption {
	return func(h *HTTPSource) { h.ttl = d }
}

// NewHTTPSource returns an HTTPSource for rawURL.
func NewHTTPSource(rawURL string, opts ...HTTPOption) (*HTTPSource, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("modelcatalog: invalid URL %q", rawURL)
	}
	h := &HTTPSource{
		url:        rawURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ttl:        defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *HTTPSource) valid(now time.Time) bool {
	return h.cache != nil && (h.ttl <= 0 || now.Before(h.expiresAt))
}

// Models implements Source.
func (h *HTTPSource) Models(ctx context.Context) ([]chatbridge.ModelInfo, error) {
	h.mu.RLock()
	if h.valid(h.now()) {
		c := h.cache
		h.mu.RUnlock()
		return c.ModelInfos(), nil
	}
	h.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := h.sf.Do(h.url, func() (any, error) {
		fetchCtx, cancel := detachCancel(ctx)
		defer cancel()
		data, err := h.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c, err := ParseBytes(data)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.cache = c
		h.expiresAt = h.now().Add(h.ttl)
		h.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog).ModelInfos(), nil
}

// Evict drops the cached catalog.
func (h *HTTPSource) Evict() {
	h.mu.Lock()
	h.cache = nil
	h.mu.Unlock()
}

func (h *HTTPSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}
	resp, err := h.httpClient.Do(req) // #nosec G107 -- URL is from operator config
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s %s", ErrFetchFailed, resp.Status, h.url)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrFetchFailed, maxBodySize)
	}
	return data, nil
}

var _ Source = (*HTTPSource)(nil)
