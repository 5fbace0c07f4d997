// Package store holds the canonical in-memory snapshot of prices,
// predictions, and alerts. It is the single source of truth for the UI
// layer: the transport writes into it, observers subscribe to it, and all
// derived statistics are computed from it on demand.
//
// The store is explicitly constructed and injected; there is no package
// singleton. Mutations are serialized by an internal mutex and observers
// are notified synchronously before the mutating call returns, so a
// synchronous reader never sees two mutations coalesce.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/krishishift/mandistream/internal/model"
)

// ChangeKind names which slice of state a mutation touched.
type ChangeKind string

const (
	ChangePrices      ChangeKind = "prices"
	ChangePredictions ChangeKind = "predictions"
	ChangeAlerts      ChangeKind = "alerts"
	ChangeHistory     ChangeKind = "history"
	ChangeSelection   ChangeKind = "selection"
	ChangeLoading     ChangeKind = "loading"
	ChangeError       ChangeKind = "error"
	ChangeConnection  ChangeKind = "connection"
)

// Observer receives change notifications. It runs on the mutating
// goroutine; implementations must not mutate the store reentrantly.
type Observer func(kind ChangeKind)

// PriceStore is the reactive state container.
type PriceStore struct {
	mu sync.RWMutex

	prices      []model.PriceQuote
	predictions map[string]model.PricePrediction
	alerts      []model.PriceAlert
	history     map[string][]model.PriceQuote

	selectedCommodity string
	selectedMandi     string

	loading     bool
	lastError   error
	lastUpdated time.Time
	connected   bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObsID int

	now func() time.Time
}

// New creates an empty PriceStore.
func New() *PriceStore {
	return &PriceStore{
		predictions: make(map[string]model.PricePrediction),
		history:     make(map[string][]model.PriceQuote),
		observers:   make(map[int]Observer),
		now:         time.Now,
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (s *PriceStore) Subscribe(obs Observer) (unsubscribe func()) {
	s.obsMu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = obs
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// notify runs every observer synchronously. Called after the state mutex is
// released so observers can read the store.
func (s *PriceStore) notify(kind ChangeKind) {
	s.obsMu.Lock()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.obsMu.Unlock()

	for _, o := range obs {
		o(kind)
	}
}

// =============================================================================
// Price mutations
// =============================================================================

// SetPrices replaces the held price collection wholesale, stamps the
// refresh time, and clears any stale error.
func (s *PriceStore) SetPrices(prices []model.PriceQuote) {
	s.mu.Lock()
	s.prices = append([]model.PriceQuote(nil), prices...)
	s.lastUpdated = s.now()
	s.lastError = nil
	s.mu.Unlock()
	s.notify(ChangePrices)
}

// Prices returns a copy of the held price collection in arrival order.
func (s *PriceStore) Prices() []model.PriceQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.PriceQuote(nil), s.prices...)
}

// AddPrice upserts a quote by ID: any existing entry with the same ID is
// removed and the new quote is prepended. Arrival order, not the quote
// timestamp, decides precedence when two updates race; see DESIGN.md for
// the consistency caveat.
func (s *PriceStore) AddPrice(quote model.PriceQuote) {
	s.mu.Lock()
	kept := make([]model.PriceQuote, 0, len(s.prices)+1)
	kept = append(kept, quote)
	for _, p := range s.prices {
		if p.ID != quote.ID {
			kept = append(kept, p)
		}
	}
	s.prices = kept
	s.lastUpdated = s.now()
	s.mu.Unlock()
	s.notify(ChangePrices)
}

// UpdatePrice shallow-merges non-zero fields into the entry matching id.
// Absent ids are a no-op.
func (s *PriceStore) UpdatePrice(id string, updates PriceUpdate) {
	s.mu.Lock()
	changed := false
	for i := range s.prices {
		if s.prices[i].ID == id {
			updates.apply(&s.prices[i])
			changed = true
			break
		}
	}
	if changed {
		s.lastUpdated = s.now()
	}
	s.mu.Unlock()
	if changed {
		s.notify(ChangePrices)
	}
}

// PriceUpdate carries the optional fields of an UpdatePrice call. Pointer
// fields distinguish "leave alone" from "set to zero".
type PriceUpdate struct {
	MinPrice   *float64
	MaxPrice   *float64
	ModalPrice *float64
	Arrivals   *float64
	Trend      *model.Trend
	ChangePct  *float64
}

func (u PriceUpdate) apply(q *model.PriceQuote) {
	if u.MinPrice != nil {
		q.MinPrice = *u.MinPrice
	}
	if u.MaxPrice != nil {
		q.MaxPrice = *u.MaxPrice
	}
	if u.ModalPrice != nil {
		q.ModalPrice = *u.ModalPrice
	}
	if u.Arrivals != nil {
		q.Arrivals = *u.Arrivals
	}
	if u.Trend != nil {
		q.Trend = *u.Trend
	}
	if u.ChangePct != nil {
		q.ChangePct = *u.ChangePct
	}
}

// SetPriceHistory stores the ordered-by-time history for one commodity,
// replaced wholesale on refetch.
func (s *PriceStore) SetPriceHistory(commodity string, history []model.PriceQuote) {
	s.mu.Lock()
	s.history[commodity] = append([]model.PriceQuote(nil), history...)
	s.mu.Unlock()
	s.notify(ChangeHistory)
}

// PriceHistory returns the stored history for one commodity.
func (s *PriceStore) PriceHistory(commodity string) []model.PriceQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.PriceQuote(nil), s.history[commodity]...)
}

// =============================================================================
// Predictions
// =============================================================================

// SetPrediction stores the forecast for one commodity, replacing any
// previous one.
func (s *PriceStore) SetPrediction(p model.PricePrediction) {
	s.mu.Lock()
	s.predictions[p.Commodity] = p
	s.mu.Unlock()
	s.notify(ChangePredictions)
}

// Prediction returns the stored forecast for a commodity, if any.
func (s *PriceStore) Prediction(commodity string) (model.PricePrediction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.predictions[commodity]
	return p, ok
}

// =============================================================================
// Alerts
// =============================================================================

// SetAlerts replaces the alert list wholesale.
func (s *PriceStore) SetAlerts(alerts []model.PriceAlert) {
	s.mu.Lock()
	s.alerts = append([]model.PriceAlert(nil), alerts...)
	s.mu.Unlock()
	s.notify(ChangeAlerts)
}

// AddAlert appends an alert, generating a client-side id when the caller
// has no server-assigned one yet.
func (s *PriceStore) AddAlert(alert model.PriceAlert) model.PriceAlert {
	if alert.ID == "" {
		alert.ID = fmt.Sprintf("alert_%d_%s", s.now().UnixMilli(), uuid.NewString()[:8])
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.mu.Unlock()
	s.notify(ChangeAlerts)
	return alert
}

// RemoveAlert deletes the alert with the given id, if present.
func (s *PriceStore) RemoveAlert(id string) {
	s.mu.Lock()
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	s.alerts = kept
	s.mu.Unlock()
	s.notify(ChangeAlerts)
}

// Alerts returns a copy of the alert list.
func (s *PriceStore) Alerts() []model.PriceAlert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.PriceAlert(nil), s.alerts...)
}

// =============================================================================
// Selection, status, error
// =============================================================================

// SelectCommodity records the commodity the UI is focused on.
func (s *PriceStore) SelectCommodity(commodity string) {
	s.mu.Lock()
	s.selectedCommodity = commodity
	s.mu.Unlock()
	s.notify(ChangeSelection)
}

// SelectMandi records the mandi the UI is focused on.
func (s *PriceStore) SelectMandi(mandi string) {
	s.mu.Lock()
	s.selectedMandi = mandi
	s.mu.Unlock()
	s.notify(ChangeSelection)
}

// Selection returns the current commodity and mandi focus.
func (s *PriceStore) Selection() (commodity, mandi string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedCommodity, s.selectedMandi
}

// SetLoading flags an in-flight snapshot fetch.
func (s *PriceStore) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
	s.notify(ChangeLoading)
}

// Loading reports whether a snapshot fetch is in flight.
func (s *PriceStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetError records the shared error surfaced to reactive observers.
// Passing nil clears it.
func (s *PriceStore) SetError(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
	s.notify(ChangeError)
}

// Err returns the last recorded error, if any.
func (s *PriceStore) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// SetConnected records the push-channel state. Driven exclusively by the
// transport's connection lifecycle callbacks.
func (s *PriceStore) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	s.notify(ChangeConnection)
}

// Connected reports whether the push channel is established.
func (s *PriceStore) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// LastUpdated returns the time of the most recent price mutation.
func (s *PriceStore) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}
