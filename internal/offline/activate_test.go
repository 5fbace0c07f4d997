package offline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/krishishift/mandistream/internal/kv"
	"github.com/krishishift/mandistream/pkg/logger"
)

func TestActivatePrecachesShellAndWarmsAPI(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/api/") {
			w.Write([]byte(`{"warm":true}`))
			return
		}
		w.Write([]byte("asset:" + req.URL.Path))
	}))
	defer srv.Close()

	cfg := Config{
		Version:     "v3",
		StaticPaths: []string{"/", "/index.html"},
		APIPrefixes: []string{"/api/prices/"},
		PrecacheAPI: []string{"/api/prices/latest"},
	}
	cache := NewResponseCache(kv.NewMemory(), "v3")
	tr := NewTransport(http.DefaultTransport, cache, cfg, logger.Nop())

	if err := tr.Activate(ctx, srv.URL); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/index.html", nil)
	if _, ok := cache.Get(ctx, PartitionStatic, req); !ok {
		t.Error("shell asset not precached")
	}
	apiReq, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/prices/latest", nil)
	if _, ok := cache.Get(ctx, PartitionAPI, apiReq); !ok {
		t.Error("api endpoint not warmed")
	}
}

func TestActivateFailsWhenShellUnreachable(t *testing.T) {
	cfg := Config{
		Version:     "v3",
		StaticPaths: []string{"/index.html"},
	}
	cache := NewResponseCache(kv.NewMemory(), "v3")
	tr := NewTransport(http.DefaultTransport, cache, cfg, logger.Nop())

	if err := tr.Activate(context.Background(), "http://127.0.0.1:1"); err == nil {
		t.Error("Activate must fail when a shell asset cannot be fetched")
	}
}

func TestActivateToleratesAPIPrecacheFailure(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasPrefix(req.URL.Path, "/api/") {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("shell"))
	}))
	defer srv.Close()

	cfg := Config{
		Version:     "v3",
		StaticPaths: []string{"/"},
		PrecacheAPI: []string{"/api/prices/latest"},
	}
	cache := NewResponseCache(kv.NewMemory(), "v3")
	tr := NewTransport(http.DefaultTransport, cache, cfg, logger.Nop())

	if err := tr.Activate(ctx, srv.URL); err != nil {
		t.Errorf("Activate = %v, want nil (api warm-up failures are skipped)", err)
	}
}

func TestActivateDropsStaleGenerations(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("shell"))
	}))
	defer srv.Close()

	oldCache := NewResponseCache(store, "v2")
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/", nil)
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		t.Fatal(err)
	}
	if err := oldCache.Put(ctx, PartitionStatic, req, resp); err != nil {
		t.Fatal(err)
	}

	cfg := Config{Version: "v3", StaticPaths: []string{"/"}}
	tr := NewTransport(http.DefaultTransport, NewResponseCache(store, "v3"), cfg, logger.Nop())
	if err := tr.Activate(ctx, srv.URL); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if _, ok := oldCache.Get(ctx, PartitionStatic, req); ok {
		t.Error("previous-generation entry survived activation")
	}
}
