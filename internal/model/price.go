// Package model defines the domain types exchanged between the pricing
// backend, the transport layer, and the price store.
package model

import (
	"math"
	"time"

	"github.com/krishishift/mandistream/internal/apperr"
)

// Trend is the reported direction of a price relative to its reference
// prior point.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Unit is the unit of measure a price is quoted in.
type Unit string

const (
	UnitQuintal Unit = "quintal"
	UnitKg      Unit = "kg"
	UnitTon     Unit = "ton"
)

// Coordinates is a [latitude, longitude] pair, kept as a two-element array
// to match the wire format.
type Coordinates [2]float64

// Latitude returns the first component.
func (c Coordinates) Latitude() float64 { return c[0] }

// Longitude returns the second component.
func (c Coordinates) Longitude() float64 { return c[1] }

// changeEpsilon bounds how far changePercent may drift from zero while the
// trend is still reported as stable.
const changeEpsilon = 0.01

// PriceQuote is a single reported price observation from a mandi session.
// Identity is the stable ID; a later quote with the same ID replaces the
// earlier one in the store.
type PriceQuote struct {
	ID          string      `json:"id"`
	Commodity   string      `json:"cropName"`
	Variety     string      `json:"variety"`
	MandiName   string      `json:"mandiName"`
	District    string      `json:"district"`
	State       string      `json:"state"`
	MinPrice    float64     `json:"minPrice"`
	MaxPrice    float64     `json:"maxPrice"`
	ModalPrice  float64     `json:"modalPrice"`
	Date        time.Time   `json:"date"`
	Unit        Unit        `json:"unit"`
	Quality     string      `json:"quality"`
	Arrivals    float64     `json:"arrivals"`
	Trend       Trend       `json:"trend"`
	ChangePct   float64     `json:"changePercent"`
	Coordinates Coordinates `json:"coordinates"`
}

// Validate checks the quote invariants: price ordering and agreement
// between the trend direction and the sign of the percent change.
func (q *PriceQuote) Validate() error {
	if q.ID == "" {
		return apperr.Validation("id", "must not be empty")
	}
	if q.MinPrice > q.ModalPrice || q.ModalPrice > q.MaxPrice {
		return apperr.Validation("price", "expected minPrice <= modalPrice <= maxPrice")
	}
	switch q.Trend {
	case TrendUp:
		if q.ChangePct <= 0 {
			return apperr.Validation("changePercent", "trend up requires a positive change")
		}
	case TrendDown:
		if q.ChangePct >= 0 {
			return apperr.Validation("changePercent", "trend down requires a negative change")
		}
	case TrendStable:
		if math.Abs(q.ChangePct) > changeEpsilon {
			return apperr.Validation("changePercent", "trend stable requires a near-zero change")
		}
	}
	return nil
}

// PredictedPoint is one step of a forecast series.
type PredictedPoint struct {
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence"`
}

// PredictionFactors holds the contributing-factor weights of a forecast.
// Each weight is in [0,1]; they need not sum to 1.
type PredictionFactors struct {
	Weather  float64 `json:"weather"`
	Demand   float64 `json:"demand"`
	Supply   float64 `json:"supply"`
	Seasonal float64 `json:"seasonal"`
}

// PricePrediction is the forecast series for one commodity. The store holds
// at most one prediction per commodity, replaced wholesale on refetch.
type PricePrediction struct {
	Commodity       string            `json:"cropName"`
	PredictedPrices []PredictedPoint  `json:"predictedPrices"`
	Accuracy        float64           `json:"accuracy"`
	Factors         PredictionFactors `json:"factors"`
}

// AlertCondition selects which side of the target price triggers an alert.
type AlertCondition string

const (
	AlertAbove AlertCondition = "above"
	AlertBelow AlertCondition = "below"
)

// PriceAlert is a user-defined watch condition. Triggering is evaluated
// server-side and reported as a push event; the client never computes it.
type PriceAlert struct {
	ID          string         `json:"id"`
	Commodity   string         `json:"cropName"`
	TargetPrice float64        `json:"targetPrice"`
	Condition   AlertCondition `json:"condition"`
	Mandi       string         `json:"mandi,omitempty"`
	IsActive    bool           `json:"isActive"`
	UserID      string         `json:"userId"`
	CreatedAt   time.Time      `json:"createdAt"`
	TriggeredAt *time.Time     `json:"triggeredAt,omitempty"`
}

// Validate checks the alert contract.
func (a *PriceAlert) Validate() error {
	if a.Commodity == "" {
		return apperr.Validation("cropName", "must not be empty")
	}
	if a.TargetPrice <= 0 {
		return apperr.Validation("targetPrice", "must be positive")
	}
	if a.Condition != AlertAbove && a.Condition != AlertBelow {
		return apperr.Validation("condition", `must be "above" or "below"`)
	}
	return nil
}

// TrendDirection is the market-level direction of a trend advisory.
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendFlat    TrendDirection = "stable"
)

// MarketTrend is an informational market advisory pushed by the backend.
// It is logged and forwarded to interested observers but never merged into
// the price set.
type MarketTrend struct {
	Commodity  string         `json:"crop"`
	Direction  TrendDirection `json:"trend"`
	Confidence float64        `json:"confidence"`
	Factors    struct {
		Weather             float64 `json:"weather"`
		Demand              float64 `json:"demand"`
		Supply              float64 `json:"supply"`
		GovernmentPolicy    float64 `json:"government_policy"`
		InternationalMarket float64 `json:"international_market"`
	} `json:"factors"`
	Prediction struct {
		NextWeek   float64 `json:"nextWeek"`
		NextMonth  float64 `json:"nextMonth"`
		Confidence float64 `json:"confidence"`
	} `json:"prediction"`
}

// OperatingHours describes when a mandi is open.
type OperatingHours struct {
	Open  string   `json:"open"`
	Close string   `json:"close"`
	Days  []string `json:"days"`
}

// Mandi is a regulated agricultural wholesale market.
type Mandi struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	District            string         `json:"district"`
	State               string         `json:"state"`
	Coordinates         Coordinates    `json:"coordinates"`
	Facilities          []string       `json:"facilities"`
	OperatingHours      OperatingHours `json:"operatingHours"`
	Phone               string         `json:"phone,omitempty"`
	Email               string         `json:"email,omitempty"`
	AverageDailyArrival float64        `json:"averageDailyArrivals"`
	SupportedCrops      []string       `json:"supportedCrops"`
}

// PriceStatistics is the backend-computed statistics payload for one
// commodity over a period.
type PriceStatistics struct {
	Average    float64 `json:"average"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Volatility float64 `json:"volatility"`
	Trend      Trend   `json:"trend"`
	ChangePct  float64 `json:"changePercent"`
}
