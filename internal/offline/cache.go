// Package offline implements the offline-first caching layer as an HTTP
// client middleware: every outbound GET is classified and served per the
// partition's policy (cache-first for the static shell, network-first with
// cached fallback for API calls, tiered fallback for navigations). The
// layer is independent of the push channel's state.
package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/krishishift/mandistream/internal/kv"
)

// Partition names the three cache generations. Entries are keyed under
// partition+version so a deploy with a new version abandons old entries.
type Partition string

const (
	PartitionStatic  Partition = "static-shell"
	PartitionDynamic Partition = "dynamic-pages"
	PartitionAPI     Partition = "api-responses"
)

const cacheKeyPrefix = "cache"

// snapshot is the stored form of a cached response.
type snapshot struct {
	Status int                 `json:"status"`
	Header map[string][]string `json:"header"`
	Body   []byte              `json:"body"`
}

// ResponseCache stores response snapshots in the durable kv store, keyed by
// partition, cache version, and the exact request (method + URL).
type ResponseCache struct {
	kv      kv.Store
	version string
}

// NewResponseCache creates a cache for the given build version.
func NewResponseCache(store kv.Store, version string) *ResponseCache {
	return &ResponseCache{kv: store, version: version}
}

// Version returns the cache generation identifier.
func (c *ResponseCache) Version() string { return c.version }

func (c *ResponseCache) key(p Partition, method, url string) string {
	return fmt.Sprintf("%s:%s:%s:%s %s", cacheKeyPrefix, p, c.version, method, url)
}

// Put stores a copy of the response. The response body is consumed and
// replaced so the caller can still read it.
func (c *ResponseCache) Put(ctx context.Context, p Partition, req *http.Request, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response for caching: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	snap := snapshot{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.kv.Set(ctx, c.key(p, req.Method, req.URL.String()), data)
}

// Get returns the cached response for the exact request, or false.
func (c *ResponseCache) Get(ctx context.Context, p Partition, req *http.Request) (*http.Response, bool) {
	data, err := c.kv.Get(ctx, c.key(p, req.Method, req.URL.String()))
	if err != nil {
		return nil, false
	}
	return c.decode(req, data)
}

// GetPath returns the cached response for a GET of path within the
// partition, matching any host. Used for the root-document navigation
// fallback.
func (c *ResponseCache) GetPath(ctx context.Context, p Partition, req *http.Request, path string) (*http.Response, bool) {
	u := *req.URL
	u.Path = path
	u.RawQuery = ""
	data, err := c.kv.Get(ctx, c.key(p, http.MethodGet, u.String()))
	if err != nil {
		return nil, false
	}
	return c.decode(req, data)
}

func (c *ResponseCache) decode(req *http.Request, data []byte) (*http.Response, bool) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false
	}
	resp := &http.Response{
		StatusCode: snap.Status,
		Status:     http.StatusText(snap.Status),
		Header:     http.Header(snap.Header),
		Body:       io.NopCloser(bytes.NewReader(snap.Body)),
		Request:    req,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	resp.Header.Set("X-Mandistream-Cache", "hit")
	return resp, true
}

// DropStaleGenerations deletes every cache entry whose version does not
// match the current one. Run once on activation of a new build.
func (c *ResponseCache) DropStaleGenerations(ctx context.Context) (int, error) {
	keys, err := c.kv.Keys(ctx, cacheKeyPrefix+":")
	if err != nil {
		return 0, err
	}
	dropped := 0
	for _, k := range keys {
		// Key shape: cache:<partition>:<version>:<method> <url>
		parts := strings.SplitN(k, ":", 4)
		if len(parts) < 4 {
			continue
		}
		if parts[2] == c.version {
			continue
		}
		if err := c.kv.Delete(ctx, k); err != nil {
			return dropped, err
		}
		dropped++
	}
	return dropped, nil
}
