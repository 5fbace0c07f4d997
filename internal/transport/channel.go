package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/krishishift/mandistream/internal/apperr"
	"github.com/krishishift/mandistream/internal/metrics"
	"github.com/krishishift/mandistream/internal/model"
	"github.com/krishishift/mandistream/internal/store"
	"github.com/krishishift/mandistream/pkg/logger"
)

// Keep-alive timing. A missed pong trips the read deadline and takes the
// normal reconnect path.
const (
	pingInterval     = 25 * time.Second
	pongWait         = 60 * time.Second
	writeWait        = 10 * time.Second
	handshakeTimeout = 20 * time.Second
)

// Conn is the subset of a websocket connection the channel uses. gorilla's
// *websocket.Conn satisfies it; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dialer establishes push-channel connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// wsDialer is the production Dialer backed by gorilla/websocket.
type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Notifier receives triggered-alert push events for local notification
// delivery. It is a side-effect port; the store is not mutated beyond
// clearing a stale error.
type Notifier interface {
	NotifyAlert(alert model.TriggeredAlert)
}

// TrendFunc receives market_trend advisories. They are informational and
// never merged into the price set.
type TrendFunc func(trend model.MarketTrend)

// ChannelConfig configures the push channel.
type ChannelConfig struct {
	// URL is the websocket endpoint of the pricing backend.
	URL string
	// Subscriptions are re-sent after every successful (re)connect:
	// subscriptions do not survive a disconnect server-side.
	Subscriptions []model.Subscription
	Backoff       BackoffConfig
	Dialer        Dialer
	Notifier      Notifier
	OnTrend       TrendFunc
	OnState       StateFunc
	Logger        *logger.Logger
}

// Channel maintains the long-lived push connection: dialing, subscription
// replay, keep-alive, dispatch, and bounded exponential-backoff reconnects.
type Channel struct {
	cfg   ChannelConfig
	store *store.PriceStore
	log   *logger.Logger

	mu      sync.Mutex
	state   ConnState
	conn    Conn
	cancel  context.CancelFunc
	running bool
}

// NewChannel creates a push channel bound to the given store.
func NewChannel(cfg ChannelConfig, st *store.PriceStore) *Channel {
	if cfg.Dialer == nil {
		cfg.Dialer = wsDialer{}
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoff()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("channel")
	}
	return &Channel{cfg: cfg, store: st, log: log, state: StateDisconnected}
}

// State returns the current lifecycle state.
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the channel's run loop. It is idempotent: calling it while
// the loop is live is a no-op. Calling it after a terminal failure resets
// the retry budget and tries again. Success and failure are observed
// through the store's connection flag and error field, not a return value.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	go c.run(ctx)
}

// Close tears the channel down and stops reconnecting.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
}

// Emit sends a client event over the channel. It fails with a ChannelError
// when the channel is down; callers that treat the send as an optimization
// (alert registration) ignore that failure.
func (c *Channel) Emit(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	st := c.state
	c.mu.Unlock()

	if st != StateConnected || conn == nil {
		return &apperr.ChannelError{Reason: "not connected"}
	}

	env, err := model.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &apperr.ChannelError{Reason: err.Error()}
	}
	return nil
}

func (c *Channel) transition(to ConnState) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from == to {
		return
	}
	c.log.Debug("channel state change", "from", from.String(), "to", to.String())
	if c.cfg.OnState != nil {
		c.cfg.OnState(from, to)
	}
}

// run is the connection lifecycle loop: dial, subscribe, pump messages,
// and on failure retry with exponential backoff until the budget is spent.
func (c *Channel) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.conn = nil
		c.mu.Unlock()
	}()

	retries := 0
	for {
		c.transition(StateConnecting)
		conn, err := c.cfg.Dialer.Dial(ctx, c.cfg.URL)
		if err != nil {
			metrics.ReconnectAttempts.WithLabelValues("error").Inc()
			c.log.WithError(err).Warn("push channel dial failed")

			if ctx.Err() != nil {
				c.transition(StateDisconnected)
				return
			}
			retries++
			if retries > c.cfg.Backoff.MaxRetries {
				c.transition(StateFailed)
				c.store.SetError(&apperr.ChannelError{Reason: "connection lost, retry budget exhausted"})
				c.log.Error("push channel gave up", "attempts", retries)
				return
			}
			delay := c.cfg.Backoff.Delay(retries)
			c.log.Info("push channel retrying", "attempt", retries, "delay", delay.String())
			select {
			case <-ctx.Done():
				c.transition(StateDisconnected)
				return
			case <-time.After(delay):
			}
			continue
		}

		metrics.ReconnectAttempts.WithLabelValues("ok").Inc()
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.transition(StateConnected)
		c.store.SetConnected(true)
		metrics.ChannelConnected.Set(1)
		retries = 0

		if err := c.subscribe(conn); err != nil {
			c.log.WithError(err).Warn("subscription replay failed")
		}

		pumpDone := make(chan struct{})
		go c.keepAlive(ctx, conn, pumpDone)
		c.readPump(conn)
		close(pumpDone)

		c.store.SetConnected(false)
		metrics.ChannelConnected.Set(0)
		_ = conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.transition(StateDisconnected)
			return
		}

		// Unexpected disconnect: same backoff schedule as a failed dial,
		// starting again from the base delay.
		retries++
		delay := c.cfg.Backoff.Delay(retries)
		c.log.Warn("push channel disconnected, reconnecting", "delay", delay.String())
		select {
		case <-ctx.Done():
			c.transition(StateDisconnected)
			return
		case <-time.After(delay):
		}
	}
}

// subscribe re-declares every configured subscription. Required after each
// connect: the server forgets subscriptions on disconnect.
func (c *Channel) subscribe(conn Conn) error {
	for _, sub := range c.cfg.Subscriptions {
		env, err := model.NewEnvelope(model.EventSubscribe, sub)
		if err != nil {
			return err
		}
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

// keepAlive pings on a fixed interval and extends the read deadline on
// every pong.
func (c *Channel) keepAlive(ctx context.Context, conn Conn, done <-chan struct{}) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// readPump processes frames in delivery order until the connection breaks.
func (c *Channel) readPump(conn Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.dispatch(frame)
	}
}

// dispatch routes one server frame by its event field. Routing sniffs the
// event name before committing to a full decode of the payload.
func (c *Channel) dispatch(frame []byte) {
	event := gjson.GetBytes(frame, "event").String()
	payload := []byte(gjson.GetBytes(frame, "payload").Raw)
	metrics.PushEvents.WithLabelValues(event).Inc()

	switch event {
	case model.EventPriceUpdate:
		var quote model.PriceQuote
		if err := json.Unmarshal(payload, &quote); err != nil {
			c.log.WithError(err).Warn("bad price_update payload")
			return
		}
		if err := quote.Validate(); err != nil {
			c.log.WithError(err).Warn("dropping invalid price quote", "id", quote.ID)
			return
		}
		c.store.AddPrice(quote)

	case model.EventBulkPriceUpdate:
		var quotes []model.PriceQuote
		if err := json.Unmarshal(payload, &quotes); err != nil {
			c.log.WithError(err).Warn("bad bulk_price_update payload")
			return
		}
		c.store.SetPrices(quotes)

	case model.EventPriceAlert:
		var alert model.TriggeredAlert
		if err := json.Unmarshal(payload, &alert); err != nil {
			c.log.WithError(err).Warn("bad price_alert payload")
			return
		}
		if c.cfg.Notifier != nil {
			c.cfg.Notifier.NotifyAlert(alert)
		}
		c.store.SetError(nil)

	case model.EventMarketTrend:
		var trend model.MarketTrend
		if err := json.Unmarshal(payload, &trend); err != nil {
			c.log.WithError(err).Warn("bad market_trend payload")
			return
		}
		c.log.Info("market trend advisory", "crop", trend.Commodity, "direction", string(trend.Direction))
		if c.cfg.OnTrend != nil {
			c.cfg.OnTrend(trend)
		}

	case model.EventError:
		var payloadErr model.ChannelErrorPayload
		_ = json.Unmarshal(payload, &payloadErr)
		c.log.Warn("push channel error frame", "message", payloadErr.Message)
		c.store.SetError(&apperr.ChannelError{Reason: payloadErr.Message})

	default:
		c.log.Debug("ignoring unknown push event", "event", event)
	}
}
