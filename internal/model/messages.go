package model

import "encoding/json"

// Push-channel event names. The client emits the subscribe family; the
// server pushes the update family.
const (
	EventSubscribe          = "subscribe"
	EventSubscribeAlert     = "subscribe_alert"
	EventUnsubscribeAlert   = "unsubscribe_alert"
	EventRequestPriceUpdate = "request_price_update"

	EventPriceUpdate     = "price_update"
	EventBulkPriceUpdate = "bulk_price_update"
	EventPriceAlert      = "price_alert"
	EventMarketTrend     = "market_trend"
	EventError           = "error"
)

// Envelope is the framing shared by every push-channel message: an event
// name plus an event-specific payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope for event.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Payload: raw}, nil
}

// Subscription declares interest in a class of push updates. An empty
// States list means all states.
type Subscription struct {
	Type        string   `json:"type"`
	Commodities []string `json:"crops,omitempty"`
	States      []string `json:"states,omitempty"`
}

// AlertRegistration asks the server to start evaluating an alert condition
// for this connection. It is an optimization: the alert already exists
// server-side via REST, so a lost registration is repaired on reconnect.
type AlertRegistration struct {
	Commodity   string         `json:"crop"`
	TargetPrice float64        `json:"targetPrice"`
	Condition   AlertCondition `json:"condition"`
	Mandi       string         `json:"mandi,omitempty"`
}

// AlertUnregistration mirrors AlertRegistration for removal.
type AlertUnregistration struct {
	AlertID string `json:"alertId"`
}

// TriggeredAlert is the payload of a price_alert push event.
type TriggeredAlert struct {
	AlertID   string  `json:"alertId"`
	Commodity string  `json:"crop"`
	Price     float64 `json:"price"`
	Mandi     string  `json:"mandi"`
}

// ChannelErrorPayload is the payload of an error frame.
type ChannelErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
