// Package transport owns the connection lifecycle to the pricing backend:
// the auto-reconnecting push channel, the REST client for everything the
// channel does not carry, and bearer-token freshness. It writes all
// received data into the injected price store.
package transport

import (
	"context"
	"errors"

	"github.com/krishishift/mandistream/internal/apperr"
	"github.com/krishishift/mandistream/internal/model"
	"github.com/krishishift/mandistream/internal/store"
	"github.com/krishishift/mandistream/pkg/logger"
)

// Client is the combined transport: REST calls plus the push channel.
type Client struct {
	Rest    *Rest
	Channel *Channel
	store   *store.PriceStore
	log     *logger.Logger
}

// NewClient assembles a transport over one store.
func NewClient(rest *Rest, channel *Channel, st *store.PriceStore, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault("transport")
	}
	return &Client{Rest: rest, Channel: channel, store: st, log: log}
}

// Connect establishes the push channel if not already connected. Success
// and failure are observed via the store's connection flag and error field.
func (c *Client) Connect() {
	c.Channel.Connect()
}

// Close tears down the push channel.
func (c *Client) Close() {
	c.Channel.Close()
}

// CreatePriceAlert persists the alert server-side, mirrors it into the
// store, and registers the condition on the push channel. The registration
// is an optimization only: if the channel is down, the alert still exists
// server-side and fires as a push event after reconnect.
func (c *Client) CreatePriceAlert(ctx context.Context, commodity string, targetPrice float64, condition model.AlertCondition, mandi string) (*model.PriceAlert, error) {
	alert := model.PriceAlert{
		Commodity:   commodity,
		TargetPrice: targetPrice,
		Condition:   condition,
		Mandi:       mandi,
	}

	created, err := c.Rest.CreateAlert(ctx, alert)
	if err != nil {
		return nil, err
	}

	stored := c.store.AddAlert(*created)

	if err := c.Channel.Emit(model.EventSubscribeAlert, model.AlertRegistration{
		Commodity:   commodity,
		TargetPrice: targetPrice,
		Condition:   condition,
		Mandi:       mandi,
	}); err != nil {
		var chErr *apperr.ChannelError
		if errors.As(err, &chErr) {
			c.log.WithError(err).Debug("alert registration deferred until reconnect", "alert", stored.ID)
		} else {
			c.log.WithError(err).Warn("alert registration failed", "alert", stored.ID)
		}
	}

	return &stored, nil
}

// DeletePriceAlert removes the alert server-side, drops it from the store,
// and unregisters the condition from the push channel if connected.
func (c *Client) DeletePriceAlert(ctx context.Context, id string) error {
	if err := c.Rest.DeleteAlert(ctx, id); err != nil {
		return err
	}

	c.store.RemoveAlert(id)

	if err := c.Channel.Emit(model.EventUnsubscribeAlert, model.AlertUnregistration{AlertID: id}); err != nil {
		c.log.WithError(err).Debug("alert unregistration skipped", "alert", id)
	}
	return nil
}

// RequestPriceUpdate asks the server for an immediate push refresh.
func (c *Client) RequestPriceUpdate() error {
	return c.Channel.Emit(model.EventRequestPriceUpdate, struct{}{})
}
