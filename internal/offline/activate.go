package offline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Activate brings a new cache generation live: it drops every entry from
// other generations, precaches the static shell, and warms the fixed API
// endpoints. A shell fetch failure aborts activation; individual API
// pre-fetch failures are logged and skipped.
func (t *Transport) Activate(ctx context.Context, baseURL string) error {
	dropped, err := t.Cache.DropStaleGenerations(ctx)
	if err != nil {
		return fmt.Errorf("drop stale cache generations: %w", err)
	}
	if dropped > 0 {
		t.log.Info("dropped stale cache entries", "count", dropped)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}

	for _, p := range t.cfg.StaticPaths {
		if err := t.precache(ctx, base, p, PartitionStatic); err != nil {
			return fmt.Errorf("precache shell asset %s: %w", p, err)
		}
	}

	for _, p := range t.cfg.PrecacheAPI {
		if err := t.precache(ctx, base, p, PartitionAPI); err != nil {
			t.log.WithError(err).Warn("api precache skipped", "endpoint", p)
		}
	}

	t.log.Info("offline cache activated", "version", t.cfg.Version)
	return nil
}

func (t *Transport) precache(ctx context.Context, base *url.URL, p string, partition Partition) error {
	target := *base
	target.Path = p
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return t.Cache.Put(ctx, partition, req, resp)
}
