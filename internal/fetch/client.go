// Package fetch implements the outbound HTTP layer: a typed fetch client
// with rate limiting and response caching, a bounded retry executor, and
// the worker fan-out used for partitioned API fetches.
package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// DefaultUserAgent is sent when neither the source nor the request sets one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	maxBodyBytes          = 10 << 20
)

// Options controls one Client instance. Rate-limit and cache state are
// scoped to the instance, i.e. to one task execution.
type Options struct {
	Headers        map[string]string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	Proxy          string
	Cookies        map[string]string
	Gzip           bool
	RateLimit      *pipeline.RateLimitConfig
	Cache          *pipeline.CacheConfig
	CacheBackend   Cache
}

// Request captures everything needed for one outbound call.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Query   map[string]string
	Body    any
}

// Client performs outbound HTTP calls and always returns a typed
// FetchResult; transport failures never surface as Go errors.
type Client struct {
	httpClient *http.Client
	opts       Options
	limiter    *rate.Limiter
	cache      Cache
	cacheTTL   time.Duration
	sleep      func(time.Duration)
	logger     *zap.Logger
}

// NewClient builds a Client from per-source options.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(opts.Proxy, connectTimeout),
		},
		opts:   opts,
		sleep:  time.Sleep,
		logger: logger,
	}

	if rl := opts.RateLimit; rl != nil && rl.Requests > 0 && rl.PerSeconds > 0 {
		interval := time.Duration(float64(time.Second) * rl.PerSeconds / float64(rl.Requests))
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}

	if cc := opts.Cache; cc != nil && cc.Enabled && cc.TTL > 0 {
		c.cacheTTL = cc.TTL
		c.cache = opts.CacheBackend
		if c.cache == nil {
			c.cache = NewMemoryCache()
		}
	}

	return c
}

// Fetch executes the request. The result is success only for 2xx/3xx
// responses; network errors, timeouts, and HTTP error statuses all map
// to an error result with a descriptive message.
func (c *Client) Fetch(ctx context.Context, req Request) pipeline.FetchResult {
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return pipeline.FetchErrorf("invalid url %q: %v", req.URL, err)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	if method == http.MethodGet {
		if res, ok := c.cachedResult(ctx, target); ok {
			return res
		}
	}

	c.waitRateLimit()

	httpReq, err := c.buildRequest(ctx, method, target, req)
	if err != nil {
		return pipeline.FetchErrorf("build request: %v", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return pipeline.FetchErrorf("request timed out: %v", err)
		}
		return pipeline.FetchErrorf("request failed: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := readBody(resp)
	if err != nil {
		return pipeline.FetchErrorf("read response body: %v", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return pipeline.FetchResult{
			Status:     pipeline.StatusError,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("http status %d for %s", resp.StatusCode, target),
		}
	}

	result := pipeline.FetchOK(resp.StatusCode, resp.Header.Clone(), body)
	if method == http.MethodGet && c.cache != nil {
		c.cache.Set(ctx, target, body, c.cacheTTL)
	}
	return result
}

func (c *Client) cachedResult(ctx context.Context, target string) (pipeline.FetchResult, bool) {
	if c.cache == nil {
		return pipeline.FetchResult{}, false
	}
	body, ok := c.cache.Get(ctx, target)
	if !ok {
		return pipeline.FetchResult{}, false
	}
	c.logger.Debug("response cache hit", zap.String("url", target))
	res := pipeline.FetchOK(http.StatusOK, nil, body)
	res.FromCache = true
	return res, true
}

// waitRateLimit enforces the minimum inter-request spacing by reserving
// a token and sleeping the reported delay through the injected sleeper.
func (c *Client) waitRateLimit() {
	if c.limiter == nil {
		return
	}
	now := time.Now()
	reservation := c.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		c.logger.Debug("rate limit spacing", zap.Duration("delay", delay))
		c.sleep(delay)
	}
}

func (c *Client) buildRequest(ctx context.Context, method, target string, req Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil && method != http.MethodGet {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	httpReq.Header.Set("User-Agent", DefaultUserAgent)
	for k, v := range c.opts.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && method != http.MethodGet && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.opts.Gzip {
		httpReq.Header.Set("Accept-Encoding", "gzip, deflate")
	}
	for name, value := range c.opts.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return httpReq, nil
}

// readBody drains the response, transparently inflating gzip bodies when
// the encoding was requested explicitly (which disables the transport's
// automatic decompression).
func readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close() //nolint:errcheck
		reader = gz
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func buildURL(raw string, query map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func newTransport(proxy string, connectTimeout time.Duration) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			t.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return t
}
