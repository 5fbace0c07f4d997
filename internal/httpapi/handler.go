// Package httpapi exposes the daemon's local read-mostly HTTP surface: the
// current price set and derived views from the store, alert management, and
// operational endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/krishishift/mandistream/internal/apperr"
	"github.com/krishishift/mandistream/internal/metrics"
	"github.com/krishishift/mandistream/internal/model"
	"github.com/krishishift/mandistream/internal/offline"
	"github.com/krishishift/mandistream/internal/store"
	"github.com/krishishift/mandistream/internal/transport"
	"github.com/krishishift/mandistream/pkg/logger"
)

// Handler bundles the HTTP endpoints over the price store and the upstream
// client.
type Handler struct {
	store  *store.PriceStore
	client *transport.Client
	queues *offline.SyncQueues
	log    *logger.Logger
}

// NewHandler creates the handler. queues may be nil when offline queueing is
// disabled.
func NewHandler(st *store.PriceStore, client *transport.Client, queues *offline.SyncQueues, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Handler{store: st, client: client, queues: queues, log: log}
}

// Router returns the configured mux router.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/prices", h.handlePrices).Methods(http.MethodGet)
	api.HandleFunc("/prices/stats", h.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/prices/gainers", h.handleGainers).Methods(http.MethodGet)
	api.HandleFunc("/prices/losers", h.handleLosers).Methods(http.MethodGet)
	api.HandleFunc("/prices/refresh", h.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/alerts", h.handleListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts", h.handleCreateAlert).Methods(http.MethodPost)
	api.HandleFunc("/alerts/{id}", h.handleDeleteAlert).Methods(http.MethodDelete)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"connected":   h.store.Connected(),
		"loading":     h.store.Loading(),
		"lastUpdated": h.store.LastUpdated().Format(time.RFC3339),
		"prices":      len(h.store.Prices()),
	}
	if err := h.store.Err(); err != nil {
		status["error"] = err.Error()
	}
	if h.queues != nil {
		pending := map[string]int{}
		for _, q := range offline.QueueNames() {
			if n, err := h.queues.Pending(r.Context(), q); err == nil {
				pending[q] = n
			}
		}
		status["pendingSync"] = pending
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handlePrices(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.GetFilteredPrices(&filter))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	commodity := r.URL.Query().Get("commodity")
	if commodity == "" {
		writeError(w, http.StatusBadRequest, errors.New("commodity required"))
		return
	}
	writeJSON(w, http.StatusOK, h.store.GetPriceStats(commodity))
}

func (h *Handler) handleGainers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetTopGainers(limitFromQuery(r)))
}

func (h *Handler) handleLosers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetTopLosers(limitFromQuery(r)))
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.client.RequestPriceUpdate(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Alerts())
}

func (h *Handler) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var alert model.PriceAlert
	if err := json.NewDecoder(r.Body).Decode(&alert); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := h.client.CreatePriceAlert(r.Context(), alert.Commodity, alert.TargetPrice, alert.Condition, alert.Mandi)
	if err != nil {
		var verr *apperr.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if apperr.IsNetwork(err) && h.queues != nil {
			// Can't reach the backend: queue the creation for the next
			// sync and report it as accepted.
			if qErr := h.queues.Enqueue(r.Context(), offline.QueuePriceAlerts, alert); qErr != nil {
				writeError(w, http.StatusServiceUnavailable, qErr)
				return
			}
			h.log.Info("alert creation queued for sync", "crop", alert.Commodity)
			writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("id required"))
		return
	}
	if err := h.client.DeletePriceAlert(r.Context(), id); err != nil {
		var serr *apperr.ServerError
		if errors.As(err, &serr) && serr.StatusCode == http.StatusNotFound {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func filterFromQuery(r *http.Request) (model.PriceFilter, error) {
	q := r.URL.Query()
	filter := model.PriceFilter{
		Commodity: q.Get("commodity"),
		State:     q.Get("state"),
		District:  q.Get("district"),
		Mandi:     q.Get("mandi"),
	}
	if v := q.Get("minPrice"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, errors.New("minPrice must be a number")
		}
		filter.MinPrice = f
	}
	if v := q.Get("maxPrice"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, errors.New("maxPrice must be a number")
		}
		filter.MaxPrice = f
	}
	return filter, nil
}

func limitFromQuery(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
