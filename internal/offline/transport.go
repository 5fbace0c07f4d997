package offline

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/krishishift/mandistream/internal/metrics"
	"github.com/krishishift/mandistream/pkg/logger"
)

// requestClass is the policy bucket a request falls into.
type requestClass int

const (
	classPassthrough requestClass = iota
	classStatic
	classAPI
	classNavigation
)

// Config drives request classification and precaching.
type Config struct {
	// Version is the cache generation identifier, changed per deploy.
	Version string
	// StaticPaths is the fixed list of shell assets and pre-cacheable
	// top-level routes served cache-first.
	StaticPaths []string
	// APIPrefixes is the allowlist of API path prefixes served
	// network-first with cached fallback.
	APIPrefixes []string
	// PricePrefixes marks the API prefixes that degrade to a synthetic
	// 200 instead of an error when neither network nor cache can answer.
	PricePrefixes []string
	// PrecacheAPI is the fixed set of API endpoints fetched eagerly on
	// activation.
	PrecacheAPI []string
}

// DefaultConfig mirrors the production shell and API allowlists.
func DefaultConfig(version string) Config {
	return Config{
		Version: version,
		StaticPaths: []string{
			"/", "/index.html", "/manifest.json",
			"/prices", "/fpos", "/schemes", "/compare",
			"/static/js/bundle.js", "/static/css/main.css",
			"/icons/icon-192x192.png", "/icons/icon-512x512.png",
		},
		APIPrefixes: []string{
			"/api/prices/", "/api/fpos/", "/api/schemes/",
			"/api/weather/", "/api/user/", "/api/mandis",
		},
		PricePrefixes: []string{"/api/prices/"},
		PrecacheAPI: []string{
			"/api/prices/latest", "/api/fpos/nearby",
			"/api/schemes/active", "/api/weather/current",
			"/api/user/profile",
		},
	}
}

// offlinePage is the last-resort navigation response when even the root
// document is uncached.
const offlinePage = `<!DOCTYPE html>
<html>
<head><title>Offline</title><meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body>
<h1>You're offline</h1>
<p>Please check your internet connection and try again.</p>
</body>
</html>`

// Transport is the caching middleware. It wraps a base RoundTripper and
// applies the per-class policy to every GET; non-GET and non-http(s)
// requests pass through untouched.
type Transport struct {
	Base  http.RoundTripper
	Cache *ResponseCache
	cfg   Config
	log   *logger.Logger

	staticSet map[string]struct{}
}

// NewTransport builds the caching middleware.
func NewTransport(base http.RoundTripper, cache *ResponseCache, cfg Config, log *logger.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if log == nil {
		log = logger.NewDefault("offline")
	}
	staticSet := make(map[string]struct{}, len(cfg.StaticPaths))
	for _, p := range cfg.StaticPaths {
		staticSet[p] = struct{}{}
	}
	return &Transport{Base: base, Cache: cache, cfg: cfg, log: log, staticSet: staticSet}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.classify(req) {
	case classStatic:
		return t.cacheFirst(req)
	case classAPI:
		return t.networkFirst(req)
	case classNavigation:
		return t.navigation(req)
	default:
		return t.Base.RoundTrip(req)
	}
}

func (t *Transport) classify(req *http.Request) requestClass {
	if req.Method != http.MethodGet {
		return classPassthrough
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return classPassthrough
	}

	p := req.URL.Path
	for _, prefix := range t.cfg.APIPrefixes {
		// Match whole path segments only: /api/mandis covers /api/mandis
		// and /api/mandis/nearby but not /api/mandisfoo.
		base := strings.TrimSuffix(prefix, "/")
		if p == base || strings.HasPrefix(p, base+"/") {
			return classAPI
		}
	}
	if t.isStaticAsset(p) {
		return classStatic
	}
	return classNavigation
}

func (t *Transport) isStaticAsset(p string) bool {
	if _, ok := t.staticSet[p]; ok {
		return true
	}
	if strings.HasPrefix(p, "/static/") || strings.HasPrefix(p, "/icons/") {
		return true
	}
	switch path.Ext(p) {
	case ".js", ".css", ".png", ".jpg", ".svg", ".woff2", ".ico":
		return true
	}
	return false
}

// cacheFirst serves static shell assets: cached copy if present, otherwise
// fetch and store a copy of any successful response.
func (t *Transport) cacheFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if resp, ok := t.Cache.Get(ctx, PartitionStatic, req); ok {
		metrics.CacheDecisions.WithLabelValues(string(PartitionStatic), "hit").Inc()
		return resp, nil
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		metrics.CacheDecisions.WithLabelValues(string(PartitionStatic), "miss_error").Inc()
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := t.Cache.Put(ctx, PartitionStatic, req, resp); err != nil {
			t.log.WithError(err).Warn("failed to cache static asset", "path", req.URL.Path)
		}
	}
	metrics.CacheDecisions.WithLabelValues(string(PartitionStatic), "network").Inc()
	return resp, nil
}

// networkFirst serves API calls: live response when the network answers
// (stored as the new cached copy), most recent cached copy on network
// failure, and for price endpoints a synthetic degraded 200 when neither
// exists. Other API endpoints propagate the failure.
func (t *Transport) networkFirst(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	resp, err := t.Base.RoundTrip(req)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if cacheErr := t.Cache.Put(ctx, PartitionAPI, req, resp); cacheErr != nil {
			t.log.WithError(cacheErr).Warn("failed to cache api response", "path", req.URL.Path)
		}
		metrics.CacheDecisions.WithLabelValues(string(PartitionAPI), "network").Inc()
		return resp, nil
	}
	if err == nil {
		// Non-2xx is a server answer, not an outage: no fallback.
		metrics.CacheDecisions.WithLabelValues(string(PartitionAPI), "server_error").Inc()
		return resp, nil
	}

	if cached, ok := t.Cache.Get(ctx, PartitionAPI, req); ok {
		t.log.Info("network failed, serving cached api response", "path", req.URL.Path)
		metrics.CacheDecisions.WithLabelValues(string(PartitionAPI), "fallback").Inc()
		return cached, nil
	}

	if t.isPricePath(req.URL.Path) {
		metrics.CacheDecisions.WithLabelValues(string(PartitionAPI), "degraded").Inc()
		return degradedPriceResponse(req), nil
	}

	metrics.CacheDecisions.WithLabelValues(string(PartitionAPI), "miss_error").Inc()
	return nil, err
}

func (t *Transport) isPricePath(p string) bool {
	for _, prefix := range t.cfg.PricePrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// degradedPriceResponse is the offline+stale marker for price endpoints.
// It is a 200 so the UI renders a "cached" state instead of an error page;
// the body flags the degradation. See DESIGN.md for the status-code
// discussion.
func degradedPriceResponse(req *http.Request) *http.Response {
	body := []byte(`{"error":"Offline","message":"Price data unavailable offline","offline":true,"cached":true}`)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Mandistream-Cache", "degraded")
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     http.StatusText(http.StatusOK),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}
}

// navigation serves page loads with the three-tier fallback: network, then
// the cached copy of that exact navigation, then the cached root document,
// then the embedded offline page.
func (t *Transport) navigation(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	resp, err := t.Base.RoundTrip(req)
	if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if cacheErr := t.Cache.Put(ctx, PartitionDynamic, req, resp); cacheErr != nil {
			t.log.WithError(cacheErr).Warn("failed to cache navigation", "path", req.URL.Path)
		}
		metrics.CacheDecisions.WithLabelValues(string(PartitionDynamic), "network").Inc()
		return resp, nil
	}
	if err == nil {
		return resp, nil
	}

	if cached, ok := t.Cache.Get(ctx, PartitionDynamic, req); ok {
		metrics.CacheDecisions.WithLabelValues(string(PartitionDynamic), "fallback").Inc()
		return cached, nil
	}
	if root, ok := t.Cache.GetPath(ctx, PartitionStatic, req, "/"); ok {
		metrics.CacheDecisions.WithLabelValues(string(PartitionDynamic), "root_fallback").Inc()
		return root, nil
	}

	metrics.CacheDecisions.WithLabelValues(string(PartitionDynamic), "offline_page").Inc()
	header := http.Header{}
	header.Set("Content-Type", "text/html")
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     http.StatusText(http.StatusOK),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(offlinePage)),
		Request:    req,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}, nil
}

var _ http.RoundTripper = (*Transport)(nil)
