package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/krishishift/mandistream/internal/apperr"
	"github.com/krishishift/mandistream/internal/kv"
	"github.com/krishishift/mandistream/internal/model"
	"github.com/krishishift/mandistream/internal/offline"
	"github.com/krishishift/mandistream/internal/store"
	"github.com/krishishift/mandistream/pkg/logger"
)

func newTestRest(t *testing.T, handler http.Handler) (*Rest, *store.PriceStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	st := store.New()
	r := NewRest(RestConfig{BaseURL: srv.URL, Logger: logger.Nop()}, st)
	return r, st, srv
}

func pricesJSON(quotes ...model.PriceQuote) []byte {
	data, _ := json.Marshal(map[string]any{"prices": quotes})
	return data
}

// =============================================================================
// Snapshot fetch
// =============================================================================

func TestFetchLatestPricesPopulatesStore(t *testing.T) {
	want := model.PriceQuote{
		ID: "q1", Commodity: "wheat", MinPrice: 90, ModalPrice: 100, MaxPrice: 110,
		Trend: model.TrendUp, ChangePct: 2,
	}
	r, st, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/prices/latest" {
			t.Errorf("path = %s, want /api/prices/latest", req.URL.Path)
		}
		w.Write(pricesJSON(want))
	}))

	got, err := r.FetchLatestPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchLatestPrices: %v", err)
	}
	if len(got) != 1 || got[0].ID != "q1" {
		t.Errorf("returned %v, want [q1]", got)
	}
	if prices := st.Prices(); len(prices) != 1 || prices[0].ID != "q1" {
		t.Errorf("store prices = %v, want [q1]", prices)
	}
	if st.Loading() {
		t.Error("loading flag must be cleared after the fetch")
	}
	if st.LastUpdated().IsZero() {
		t.Error("LastUpdated must be stamped")
	}
}

func TestFetchLatestPricesAppliesFilter(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("crop") != "wheat" || q.Get("state") != "Punjab" {
			t.Errorf("query = %v, want crop=wheat state=Punjab", q)
		}
		w.Write(pricesJSON())
	}))

	_, err := r.FetchLatestPrices(context.Background(), &model.PriceFilter{Commodity: "wheat", State: "Punjab"})
	if err != nil {
		t.Fatalf("FetchLatestPrices: %v", err)
	}
}

func TestFetchLatestPricesServerErrorMirrorsIntoStore(t *testing.T) {
	r, st, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := r.FetchLatestPrices(context.Background(), nil)
	var serr *apperr.ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want ServerError", err)
	}
	if serr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", serr.StatusCode)
	}
	if st.Err() == nil {
		t.Error("failure must be mirrored into the store error")
	}
	if st.Loading() {
		t.Error("loading flag must be cleared even on failure")
	}
}

func TestFetchLatestPricesNetworkError(t *testing.T) {
	st := store.New()
	r := NewRest(RestConfig{BaseURL: "http://127.0.0.1:1", Logger: logger.Nop()}, st)

	_, err := r.FetchLatestPrices(context.Background(), nil)
	var nerr *apperr.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("error = %v, want NetworkError", err)
	}
	if !apperr.IsNetwork(err) {
		t.Error("IsNetwork() = false, want true")
	}
}

// =============================================================================
// History, predictions, statistics
// =============================================================================

func TestFetchHistoricalPricesValidation(t *testing.T) {
	r, st, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("no request should be issued for invalid arguments")
	}))

	if _, err := r.FetchHistoricalPrices(context.Background(), "", 30); err == nil {
		t.Error("empty commodity must fail")
	}
	if _, err := r.FetchHistoricalPrices(context.Background(), "wheat", 0); err == nil {
		t.Error("non-positive days must fail")
	}
	var verr *apperr.ValidationError
	_, err := r.FetchHistoricalPrices(context.Background(), "wheat", -1)
	if !errors.As(err, &verr) {
		t.Errorf("error = %v, want ValidationError", err)
	}
	if st.Err() == nil {
		t.Error("validation failure must be mirrored into the store")
	}
}

func TestFetchHistoricalPricesStoresByCommodity(t *testing.T) {
	r, st, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/prices/historical/wheat" {
			t.Errorf("path = %s", req.URL.Path)
		}
		if req.URL.Query().Get("days") != "30" {
			t.Errorf("days = %s, want 30", req.URL.Query().Get("days"))
		}
		w.Write(pricesJSON(model.PriceQuote{ID: "h1", Commodity: "wheat", ModalPrice: 95}))
	}))

	if _, err := r.FetchHistoricalPrices(context.Background(), "wheat", 30); err != nil {
		t.Fatalf("FetchHistoricalPrices: %v", err)
	}
	if got := st.PriceHistory("wheat"); len(got) != 1 || got[0].ID != "h1" {
		t.Errorf("PriceHistory(wheat) = %v, want [h1]", got)
	}
}

func TestFetchPricePredictionsNotFound(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))

	_, err := r.FetchPricePredictions(context.Background(), "saffron")
	if !apperr.NotFound(err) {
		t.Errorf("NotFound(%v) = false, want true", err)
	}
}

func TestFetchPricePredictionsStores(t *testing.T) {
	r, st, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"prediction": model.PricePrediction{Commodity: "wheat", Accuracy: 0.85},
		})
	}))

	got, err := r.FetchPricePredictions(context.Background(), "wheat")
	if err != nil {
		t.Fatalf("FetchPricePredictions: %v", err)
	}
	if got.Accuracy != 0.85 {
		t.Errorf("Accuracy = %v, want 0.85", got.Accuracy)
	}
	if _, ok := st.Prediction("wheat"); !ok {
		t.Error("prediction must be stored")
	}
}

func TestGetPriceStatisticsValidatesPeriod(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("no request should be issued for an invalid period")
	}))

	if _, err := r.GetPriceStatistics(context.Background(), "wheat", "fortnight"); err == nil {
		t.Error("invalid period must fail")
	}
}

func TestExportPriceDataValidatesFormat(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("no request should be issued for an invalid format")
	}))

	if _, err := r.ExportPriceData(context.Background(), "xml", nil); err == nil {
		t.Error("invalid format must fail")
	}
}

func TestExportPriceDataReturnsRawBody(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("format") != "csv" {
			t.Errorf("format = %s, want csv", req.URL.Query().Get("format"))
		}
		w.Write([]byte("crop,modal\nwheat,2500\n"))
	}))

	data, err := r.ExportPriceData(context.Background(), model.ExportCSV, nil)
	if err != nil {
		t.Fatalf("ExportPriceData: %v", err)
	}
	if string(data) != "crop,modal\nwheat,2500\n" {
		t.Errorf("body = %q", data)
	}
}

// =============================================================================
// Mandis
// =============================================================================

func TestGetNearbyMandis(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("lat") != "28.7" || q.Get("lng") != "77.1" || q.Get("radius") != "50" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"mandis": []model.Mandi{{ID: "m1", Name: "Azadpur"}},
		})
	}))

	mandis, err := r.GetNearbyMandis(context.Background(), 28.7, 77.1, 50)
	if err != nil {
		t.Fatalf("GetNearbyMandis: %v", err)
	}
	if len(mandis) != 1 || mandis[0].ID != "m1" {
		t.Errorf("mandis = %v, want [m1]", mandis)
	}

	if _, err := r.GetNearbyMandis(context.Background(), 28.7, 77.1, 0); err == nil {
		t.Error("non-positive radius must fail")
	}
}

// =============================================================================
// Alert CRUD
// =============================================================================

func TestCreateAlertWrappedResponse(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost || req.URL.Path != "/api/alerts/price" {
			t.Errorf("%s %s, want POST /api/alerts/price", req.Method, req.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(req.Body).Decode(&body)
		if body["crop"] != "wheat" {
			t.Errorf("crop = %v, want wheat", body["crop"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"alert": model.PriceAlert{ID: "srv-1", Commodity: "wheat", TargetPrice: 2500, Condition: model.AlertAbove},
		})
	}))

	created, err := r.CreateAlert(context.Background(), model.PriceAlert{
		Commodity: "wheat", TargetPrice: 2500, Condition: model.AlertAbove,
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if created.ID != "srv-1" {
		t.Errorf("ID = %q, want srv-1", created.ID)
	}
	if !created.IsActive {
		t.Error("created alert must be active")
	}
}

func TestCreateAlertBareResponse(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(model.PriceAlert{ID: "srv-2", Commodity: "rice", TargetPrice: 3000, Condition: model.AlertBelow})
	}))

	created, err := r.CreateAlert(context.Background(), model.PriceAlert{
		Commodity: "rice", TargetPrice: 3000, Condition: model.AlertBelow,
	})
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if created.ID != "srv-2" {
		t.Errorf("ID = %q, want srv-2", created.ID)
	}
}

func TestCreateAlertValidates(t *testing.T) {
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		t.Error("no request should be issued for an invalid alert")
	}))

	_, err := r.CreateAlert(context.Background(), model.PriceAlert{Commodity: "", TargetPrice: 10, Condition: model.AlertAbove})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error = %v, want ValidationError", err)
	}
}

func TestDeleteAlert(t *testing.T) {
	var gotPath atomic.Value
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath.Store(req.Method + " " + req.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := r.DeleteAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("DeleteAlert: %v", err)
	}
	if got := gotPath.Load(); got != "DELETE /api/alerts/price/a1" {
		t.Errorf("request = %v, want DELETE /api/alerts/price/a1", got)
	}

	if err := r.DeleteAlert(context.Background(), ""); err == nil {
		t.Error("empty id must fail")
	}
}

// =============================================================================
// In-flight deduplication
// =============================================================================

func TestConcurrentIdenticalGetsShareOneRequest(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Write(pricesJSON(model.PriceQuote{ID: "q1", ModalPrice: 100}))
	}))

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.FetchLatestPrices(context.Background(), nil)
		}(i)
	}

	// Let every caller reach the dedup gate before the server responds.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDifferentQueriesAreNotDeduplicated(t *testing.T) {
	var hits int32
	r, _, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(pricesJSON())
	}))

	if _, err := r.FetchLatestPrices(context.Background(), &model.PriceFilter{Commodity: "wheat"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.FetchLatestPrices(context.Background(), &model.PriceFilter{Commodity: "rice"}); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

// =============================================================================
// Offline degradation
// =============================================================================

// unreachableTransport simulates a dead uplink under the caching layer.
type unreachableTransport struct{}

func (unreachableTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: network is unreachable")
}

func TestFetchLatestPricesOfflineColdCacheKeepsSnapshot(t *testing.T) {
	st := store.New()
	st.SetPrices([]model.PriceQuote{{ID: "held", Commodity: "wheat", ModalPrice: 2500}})

	cache := offline.NewResponseCache(kv.NewMemory(), "v3")
	caching := offline.NewTransport(unreachableTransport{}, cache, offline.DefaultConfig("v3"), logger.Nop())
	r := NewRest(RestConfig{
		BaseURL:    "http://backend.invalid",
		HTTPClient: &http.Client{Transport: caching},
		Logger:     logger.Nop(),
	}, st)

	_, err := r.FetchLatestPrices(context.Background(), nil)
	if err == nil {
		t.Fatal("offline fetch with a cold cache must fail, not decode the degraded placeholder")
	}
	if !apperr.IsNetwork(err) {
		t.Errorf("error = %v, want a network error", err)
	}
	if prices := st.Prices(); len(prices) != 1 || prices[0].ID != "held" {
		t.Errorf("store prices = %v, want the held snapshot untouched", prices)
	}
	if st.Err() == nil {
		t.Error("store error must record the failure")
	}
	if st.Loading() {
		t.Error("loading flag must be cleared")
	}
}

func TestDegradedResponseSurfacesAsNetworkError(t *testing.T) {
	r, st, _ := newTestRest(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("X-Mandistream-Cache", "degraded")
		w.Write([]byte(`{"error":"Offline","message":"Price data unavailable offline","offline":true,"cached":true}`))
	}))

	_, err := r.FetchLatestPrices(context.Background(), nil)
	if !apperr.IsNetwork(err) {
		t.Errorf("error = %v, want a network error for the degraded marker", err)
	}
	if prices := st.Prices(); len(prices) != 0 {
		t.Errorf("store prices = %v, want untouched", prices)
	}
}
