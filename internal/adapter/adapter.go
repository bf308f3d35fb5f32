// Package adapter translates source-native formats (RSS, JSON APIs,
// HTML listings) into raw items behind a common contract.
package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mediapulse/newscrawler/internal/fetch"
	"github.com/mediapulse/newscrawler/internal/pipeline"
)

// Deps carries the collaborators shared by all adapter variants.
type Deps struct {
	Clock        pipeline.Clock
	Logger       *zap.Logger
	CacheBackend fetch.Cache
}

// ForConfig returns the adapter variant for the source type. Deprecated
// sources get a stub adapter that always yields an empty batch.
func ForConfig(cfg pipeline.SourceConfig, deps Deps) (pipeline.Adapter, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if cfg.Data.Deprecated {
		return &deprecatedAdapter{cfg: cfg, logger: deps.Logger}, nil
	}

	base := newBase(cfg, deps)
	switch cfg.Type {
	case pipeline.SourceRSS:
		return &RSSAdapter{base: base}, nil
	case pipeline.SourceAPI:
		return &APIAdapter{base: base, retry: fetch.NewRetry(deps.Logger)}, nil
	case pipeline.SourceHTML:
		return &HTMLAdapter{base: base}, nil
	default:
		return nil, fmt.Errorf("unknown source type %q for config %s", cfg.Type, cfg.ID)
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// base holds the per-source fetch client and helpers shared by the
// concrete adapters. Client state (rate limiter, cache) is scoped to
// this instance, i.e. to one task execution.
type base struct {
	cfg    pipeline.SourceConfig
	client *fetch.Client
	clock  pipeline.Clock
	logger *zap.Logger
}

func newBase(cfg pipeline.SourceConfig, deps Deps) base {
	opts := fetch.Options{
		Headers:      cfg.Headers,
		Proxy:        cfg.Data.Proxy,
		Cookies:      cfg.Data.Cookies,
		Gzip:         cfg.Data.Gzip,
		RateLimit:    cfg.Data.RateLimit,
		Cache:        cfg.Data.Cache,
		CacheBackend: deps.CacheBackend,
	}
	if cfg.Data.TimeoutSec > 0 {
		opts.Timeout = time.Duration(cfg.Data.TimeoutSec) * time.Second
	}
	if cfg.Data.ConnectSec > 0 {
		opts.ConnectTimeout = time.Duration(cfg.Data.ConnectSec) * time.Second
	}
	return base{
		cfg:    cfg,
		client: fetch.NewClient(opts, deps.Logger),
		clock:  deps.Clock,
		logger: deps.Logger.With(zap.String("source", cfg.Name), zap.String("config_id", cfg.ID)),
	}
}

// requestHeaders merges static and dynamic headers. Dynamic header
// values may carry {date:LAYOUT} and {timestamp} tokens rendered at
// request time, for APIs that sign or date their requests.
func (b *base) requestHeaders(accept string) map[string]string {
	headers := make(map[string]string, len(b.cfg.Data.DynamicHeaders)+1)
	if accept != "" {
		headers["Accept"] = accept
	}
	now := b.clock.Now()
	for k, v := range b.cfg.Data.DynamicHeaders {
		headers[k] = renderDynamicValue(v, now)
	}
	return headers
}

func renderDynamicValue(value string, now time.Time) string {
	for {
		start := strings.Index(value, "{date:")
		if start < 0 {
			break
		}
		end := strings.IndexByte(value[start:], '}')
		if end < 0 {
			break
		}
		layout := value[start+len("{date:") : start+end]
		value = value[:start] + now.Format(layout) + value[start+end+1:]
	}
	return strings.ReplaceAll(value, "{timestamp}", fmt.Sprintf("%d", now.Unix()))
}

// acceptItem drops only vacuous rows (no title and no URL), typically
// selector noise. Items that are merely incomplete flow through so the
// cleaner can reject them and the run can count them as filtered.
func (b *base) acceptItem(item pipeline.RawItem) bool {
	if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.URL) == "" {
		b.logger.Debug("dropping vacuous item")
		return false
	}
	return true
}

func hasHTTPScheme(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// deprecatedAdapter stands in for source variants that are permanently
// disabled (formerly browser-automation sources). It reports success
// with an empty batch so schedules keep running without errors.
type deprecatedAdapter struct {
	cfg    pipeline.SourceConfig
	logger *zap.Logger
}

func (a *deprecatedAdapter) FetchData(_ context.Context) pipeline.FetchResult {
	return pipeline.FetchErrorf("source %s is deprecated", a.cfg.Name)
}

func (a *deprecatedAdapter) ParseResponse(pipeline.FetchResult) []pipeline.RawItem {
	return nil
}

func (a *deprecatedAdapter) Run(_ context.Context) pipeline.ItemsResult {
	a.logger.Warn("skipping deprecated source", zap.String("source", a.cfg.Name))
	return pipeline.ItemsOK(nil)
}
