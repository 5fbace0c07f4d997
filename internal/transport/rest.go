package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/krishishift/mandistream/internal/apperr"
	"github.com/krishishift/mandistream/internal/metrics"
	"github.com/krishishift/mandistream/internal/model"
	"github.com/krishishift/mandistream/internal/store"
	"github.com/krishishift/mandistream/pkg/logger"
)

// defaultTimeout bounds every REST call client-side. A timeout fails the
// call exactly like a network error.
const defaultTimeout = 30 * time.Second

// RestConfig configures the REST side of the transport.
type RestConfig struct {
	BaseURL string
	// HTTPClient should carry the auth round tripper (and, in the daemon,
	// the offline caching layer). A default with the standard timeout is
	// used when nil.
	HTTPClient *http.Client
	// RateLimit caps outgoing calls per second; zero disables limiting.
	RateLimit float64
	Logger    *logger.Logger
}

// Rest performs the request/response half of the transport: snapshots,
// history, predictions, search, statistics, export, and alert CRUD.
// Failures are returned to the caller and mirrored into the store's error
// field so reactive observers learn of them too.
type Rest struct {
	baseURL    string
	httpClient *http.Client
	store      *store.PriceStore
	limiter    *rate.Limiter
	log        *logger.Logger

	// inflight joins concurrent identical GETs so a burst of callers for
	// the same resource issues one request.
	inflightMu sync.Mutex
	inflight   map[string]*inflightCall
}

type inflightCall struct {
	done chan struct{}
	body []byte
	err  error
}

// NewRest creates the REST client bound to the given store.
func NewRest(cfg RestConfig, st *store.PriceStore) *Rest {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("rest")
	}
	return &Rest{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		store:      st,
		limiter:    limiter,
		log:        log,
		inflight:   make(map[string]*inflightCall),
	}
}

// =============================================================================
// Price reads
// =============================================================================

// FetchLatestPrices pulls the current snapshot for the filtered slice and
// writes it into the store as a full replacement.
func (r *Rest) FetchLatestPrices(ctx context.Context, filter *model.PriceFilter) ([]model.PriceQuote, error) {
	r.store.SetLoading(true)
	defer r.store.SetLoading(false)

	var payload struct {
		Prices []model.PriceQuote `json:"prices"`
	}
	if err := r.getJSON(ctx, "fetch_latest_prices", "/api/prices/latest", filter.Query(), &payload); err != nil {
		return nil, err
	}
	r.store.SetPrices(payload.Prices)
	return payload.Prices, nil
}

// FetchHistoricalPrices pulls the ordered-by-time series for one commodity
// and stores it keyed by commodity.
func (r *Rest) FetchHistoricalPrices(ctx context.Context, commodity string, days int) ([]model.PriceQuote, error) {
	if commodity == "" {
		return nil, r.fail(apperr.Validation("commodity", "must not be empty"))
	}
	if days <= 0 {
		return nil, r.fail(apperr.Validation("days", "must be a positive integer"))
	}

	params := url.Values{"days": []string{strconv.Itoa(days)}}
	var payload struct {
		Prices []model.PriceQuote `json:"prices"`
	}
	if err := r.getJSON(ctx, "fetch_historical_prices", "/api/prices/historical/"+url.PathEscape(commodity), params, &payload); err != nil {
		return nil, err
	}
	r.store.SetPriceHistory(commodity, payload.Prices)
	return payload.Prices, nil
}

// FetchPricePredictions pulls the forecast for one commodity. A backend
// with no forecast yields a 404, surfaced as a ServerError callers can
// classify with apperr.NotFound.
func (r *Rest) FetchPricePredictions(ctx context.Context, commodity string) (*model.PricePrediction, error) {
	if commodity == "" {
		return nil, r.fail(apperr.Validation("commodity", "must not be empty"))
	}

	var payload struct {
		Prediction model.PricePrediction `json:"prediction"`
	}
	if err := r.getJSON(ctx, "fetch_price_predictions", "/api/prices/predictions/"+url.PathEscape(commodity), nil, &payload); err != nil {
		return nil, err
	}
	r.store.SetPrediction(payload.Prediction)
	return &payload.Prediction, nil
}

// FetchMarketTrends pulls the informational trend advisories for the given
// commodities.
func (r *Rest) FetchMarketTrends(ctx context.Context, commodities []string) ([]model.MarketTrend, error) {
	params := url.Values{}
	if len(commodities) > 0 {
		params.Set("crops", strings.Join(commodities, ","))
	}
	var payload struct {
		Trends []model.MarketTrend `json:"trends"`
	}
	if err := r.getJSON(ctx, "fetch_market_trends", "/api/market/trends", params, &payload); err != nil {
		return nil, err
	}
	return payload.Trends, nil
}

// SearchPrices runs a free-text query combined with the optional filter.
func (r *Rest) SearchPrices(ctx context.Context, query string, filter *model.PriceFilter) ([]model.PriceQuote, error) {
	params := filter.Query()
	params.Set("q", query)
	var payload struct {
		Prices []model.PriceQuote `json:"prices"`
	}
	if err := r.getJSON(ctx, "search_prices", "/api/prices/search", params, &payload); err != nil {
		return nil, err
	}
	return payload.Prices, nil
}

// GetPriceStatistics pulls backend-computed statistics for a commodity over
// a period.
func (r *Rest) GetPriceStatistics(ctx context.Context, commodity string, period model.StatsPeriod) (*model.PriceStatistics, error) {
	if commodity == "" {
		return nil, r.fail(apperr.Validation("commodity", "must not be empty"))
	}
	if err := period.Validate(); err != nil {
		return nil, r.fail(err)
	}

	params := url.Values{"period": []string{string(period)}}
	var payload struct {
		Statistics model.PriceStatistics `json:"statistics"`
	}
	if err := r.getJSON(ctx, "get_price_statistics", "/api/prices/statistics/"+url.PathEscape(commodity), params, &payload); err != nil {
		return nil, err
	}
	return &payload.Statistics, nil
}

// ExportPriceData downloads the filtered price set in the given format.
// The response body is returned raw.
func (r *Rest) ExportPriceData(ctx context.Context, format model.ExportFormat, filter *model.PriceFilter) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, r.fail(err)
	}
	params := filter.Query()
	params.Set("format", string(format))
	return r.get(ctx, "export_price_data", "/api/prices/export", params)
}

// =============================================================================
// Mandis
// =============================================================================

// FetchMandis lists mandis, optionally narrowed by state and district.
func (r *Rest) FetchMandis(ctx context.Context, state, district string) ([]model.Mandi, error) {
	params := url.Values{}
	if state != "" {
		params.Set("state", state)
	}
	if district != "" {
		params.Set("district", district)
	}
	var payload struct {
		Mandis []model.Mandi `json:"mandis"`
	}
	if err := r.getJSON(ctx, "fetch_mandis", "/api/mandis", params, &payload); err != nil {
		return nil, err
	}
	return payload.Mandis, nil
}

// GetNearbyMandis lists mandis within radiusKm of the given coordinate.
func (r *Rest) GetNearbyMandis(ctx context.Context, lat, lon, radiusKm float64) ([]model.Mandi, error) {
	if radiusKm <= 0 {
		return nil, r.fail(apperr.Validation("radius", "must be positive"))
	}

	params := url.Values{
		"lat":    []string{strconv.FormatFloat(lat, 'f', -1, 64)},
		"lng":    []string{strconv.FormatFloat(lon, 'f', -1, 64)},
		"radius": []string{strconv.FormatFloat(radiusKm, 'f', -1, 64)},
	}
	var payload struct {
		Mandis []model.Mandi `json:"mandis"`
	}
	if err := r.getJSON(ctx, "get_nearby_mandis", "/api/mandis/nearby", params, &payload); err != nil {
		return nil, err
	}
	return payload.Mandis, nil
}

// =============================================================================
// Alert CRUD
// =============================================================================

// CreateAlert persists an alert server-side and returns it with its
// assigned id.
func (r *Rest) CreateAlert(ctx context.Context, alert model.PriceAlert) (*model.PriceAlert, error) {
	if err := alert.Validate(); err != nil {
		return nil, r.fail(err)
	}

	body := map[string]any{
		"crop":        alert.Commodity,
		"targetPrice": alert.TargetPrice,
		"condition":   alert.Condition,
	}
	if alert.Mandi != "" {
		body["mandi"] = alert.Mandi
	}

	raw, err := r.send(ctx, "create_price_alert", http.MethodPost, "/api/alerts/price", body)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Alert model.PriceAlert `json:"alert"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Alert.ID == "" {
		// Some deployments return the bare alert object.
		if err := json.Unmarshal(raw, &payload.Alert); err != nil {
			return nil, r.fail(fmt.Errorf("decode create alert response: %w", err))
		}
	}
	created := payload.Alert
	if created.ID == "" {
		created = alert
	}
	created.IsActive = true
	return &created, nil
}

// DeleteAlert removes an alert server-side.
func (r *Rest) DeleteAlert(ctx context.Context, id string) error {
	if id == "" {
		return r.fail(apperr.Validation("id", "must not be empty"))
	}
	_, err := r.send(ctx, "delete_price_alert", http.MethodDelete, "/api/alerts/price/"+url.PathEscape(id), nil)
	return err
}

// =============================================================================
// Plumbing
// =============================================================================

// fail mirrors err into the store error field and returns it, so both
// imperative callers and reactive observers see the failure.
func (r *Rest) fail(err error) error {
	r.store.SetError(err)
	return err
}

func (r *Rest) getJSON(ctx context.Context, op, path string, params url.Values, target any) error {
	body, err := r.get(ctx, op, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return r.fail(fmt.Errorf("%s: decode response: %w", op, err))
	}
	return nil
}

// get issues a deduplicated GET: concurrent identical calls share one
// request and its result.
func (r *Rest) get(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	reqURL := r.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	r.inflightMu.Lock()
	if call, ok := r.inflight[reqURL]; ok {
		r.inflightMu.Unlock()
		select {
		case <-call.done:
			return call.body, call.err
		case <-ctx.Done():
			return nil, r.fail(apperr.Network(op, ctx.Err()))
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	r.inflight[reqURL] = call
	r.inflightMu.Unlock()

	call.body, call.err = r.doRequest(ctx, op, http.MethodGet, reqURL, nil)
	close(call.done)

	r.inflightMu.Lock()
	delete(r.inflight, reqURL)
	r.inflightMu.Unlock()

	return call.body, call.err
}

func (r *Rest) send(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, r.fail(fmt.Errorf("%s: marshal request: %w", op, err))
		}
		reader = bytes.NewReader(data)
	}
	return r.doRequest(ctx, op, method, r.baseURL+path, reader)
}

func (r *Rest) doRequest(ctx context.Context, op, method, reqURL string, body io.Reader) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, r.fail(apperr.Network(op, err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, r.fail(fmt.Errorf("%s: create request: %w", op, err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	metrics.RestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RestRequests.WithLabelValues(op, "network_error").Inc()
		if apperr.IsAuth(err) {
			return nil, r.fail(err)
		}
		return nil, r.fail(apperr.Network(op, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		metrics.RestRequests.WithLabelValues(op, "network_error").Inc()
		return nil, r.fail(apperr.Network(op, err))
	}

	// The offline cache layer answers uncacheable price requests with a
	// synthetic 200 so the UI can render a degraded state. For this client
	// that is still an outage: treat it as one instead of decoding it as an
	// empty snapshot.
	if resp.Header.Get("X-Mandistream-Cache") == "degraded" {
		metrics.RestRequests.WithLabelValues(op, "degraded").Inc()
		return nil, r.fail(apperr.Network(op, errors.New("offline and no cached response")))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RestRequests.WithLabelValues(op, "server_error").Inc()
		return nil, r.fail(apperr.Server(op, resp.StatusCode, string(raw)))
	}

	metrics.RestRequests.WithLabelValues(op, "ok").Inc()
	return raw, nil
}
