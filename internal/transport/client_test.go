package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/krishishift/mandistream/internal/model"
	"github.com/krishishift/mandistream/internal/store"
	"github.com/krishishift/mandistream/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *store.PriceStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	st := store.New()
	rest := NewRest(RestConfig{BaseURL: srv.URL, Logger: logger.Nop()}, st)
	channel := NewChannel(ChannelConfig{
		URL:    "ws://test",
		Dialer: &fakeDialer{},
		Logger: logger.Nop(),
	}, st)
	return NewClient(rest, channel, st, logger.Nop()), st
}

func TestCreatePriceAlertMirrorsIntoStore(t *testing.T) {
	c, st := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"alert": model.PriceAlert{ID: "srv-1", Commodity: "wheat", TargetPrice: 2500, Condition: model.AlertAbove},
		})
	}))

	// The channel is down; registration is an optimization, so creation
	// must still succeed.
	created, err := c.CreatePriceAlert(context.Background(), "wheat", 2500, model.AlertAbove, "")
	if err != nil {
		t.Fatalf("CreatePriceAlert: %v", err)
	}
	if created.ID != "srv-1" {
		t.Errorf("ID = %q, want srv-1", created.ID)
	}
	alerts := st.Alerts()
	if len(alerts) != 1 || alerts[0].ID != "srv-1" {
		t.Errorf("store alerts = %v, want [srv-1]", alerts)
	}
}

func TestCreatePriceAlertServerFailureLeavesStoreAlone(t *testing.T) {
	c, st := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))

	if _, err := c.CreatePriceAlert(context.Background(), "wheat", 2500, model.AlertAbove, ""); err == nil {
		t.Fatal("CreatePriceAlert should fail when the server rejects")
	}
	if got := st.Alerts(); len(got) != 0 {
		t.Errorf("store alerts = %v, want empty after a rejected create", got)
	}
}

func TestDeletePriceAlertRemovesFromStore(t *testing.T) {
	c, st := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	st.SetAlerts([]model.PriceAlert{{ID: "a1", Commodity: "wheat", TargetPrice: 2500, Condition: model.AlertAbove}})

	if err := c.DeletePriceAlert(context.Background(), "a1"); err != nil {
		t.Fatalf("DeletePriceAlert: %v", err)
	}
	if got := st.Alerts(); len(got) != 0 {
		t.Errorf("store alerts = %v, want empty", got)
	}
}

func TestDeletePriceAlertServerFailureKeepsAlert(t *testing.T) {
	c, st := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	st.SetAlerts([]model.PriceAlert{{ID: "a1", Commodity: "wheat", TargetPrice: 2500, Condition: model.AlertAbove}})

	if err := c.DeletePriceAlert(context.Background(), "a1"); err == nil {
		t.Fatal("DeletePriceAlert should propagate the server failure")
	}
	if got := st.Alerts(); len(got) != 1 {
		t.Errorf("store alerts = %v, want the alert kept", got)
	}
}

func TestRequestPriceUpdateWhileDisconnected(t *testing.T) {
	c, _ := newTestClient(t, http.NewServeMux())
	if err := c.RequestPriceUpdate(); err == nil {
		t.Error("RequestPriceUpdate must fail while the channel is down")
	}
}
