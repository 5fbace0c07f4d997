package store

import (
	"math"
	"sort"

	"github.com/krishishift/mandistream/internal/model"
)

// GetFilteredPrices returns the quotes satisfying every set predicate of
// the filter. A nil or empty filter returns the whole collection. The
// result is computed fresh on each call.
func (s *PriceStore) GetFilteredPrices(filter *model.PriceFilter) []model.PriceQuote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PriceQuote, 0, len(s.prices))
	for _, q := range s.prices {
		if filter.Matches(&q) {
			out = append(out, q)
		}
	}
	return out
}

// PriceStats summarizes the held quotes for one commodity.
type PriceStats struct {
	Average    float64
	Min        float64
	Max        float64
	Trend      model.Trend
	Volatility float64
}

// trendWindow is how many of the most recent quotes the trend comparison
// considers.
const trendWindow = 5

// GetPriceStats computes mean, min, max, and population standard deviation
// of the modal price across quotes matching the commodity. The trend
// compares the newest against the oldest of the five most recent quotes.
// No matching quotes yields the all-zero, stable result.
func (s *PriceStore) GetPriceStats(commodity string) PriceStats {
	s.mu.RLock()
	matched := make([]model.PriceQuote, 0)
	for _, q := range s.prices {
		if q.Commodity == commodity {
			matched = append(matched, q)
		}
	}
	s.mu.RUnlock()

	if len(matched) == 0 {
		return PriceStats{Trend: model.TrendStable}
	}

	var sum float64
	min := matched[0].ModalPrice
	max := matched[0].ModalPrice
	for _, q := range matched {
		sum += q.ModalPrice
		if q.ModalPrice < min {
			min = q.ModalPrice
		}
		if q.ModalPrice > max {
			max = q.ModalPrice
		}
	}
	avg := sum / float64(len(matched))

	var variance float64
	for _, q := range matched {
		d := q.ModalPrice - avg
		variance += d * d
	}
	variance /= float64(len(matched))

	return PriceStats{
		Average:    avg,
		Min:        min,
		Max:        max,
		Trend:      recentTrend(matched),
		Volatility: math.Sqrt(variance),
	}
}

// recentTrend sorts by observation time descending, keeps the trendWindow
// most recent, and compares the newest to the oldest of that slice.
func recentTrend(quotes []model.PriceQuote) model.Trend {
	if len(quotes) < 2 {
		return model.TrendStable
	}

	recent := append([]model.PriceQuote(nil), quotes...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Date.After(recent[j].Date)
	})
	if len(recent) > trendWindow {
		recent = recent[:trendWindow]
	}

	newest := recent[0].ModalPrice
	oldest := recent[len(recent)-1].ModalPrice
	switch {
	case newest > oldest:
		return model.TrendUp
	case newest < oldest:
		return model.TrendDown
	default:
		return model.TrendStable
	}
}

// defaultTopN is the truncation applied when the caller passes n <= 0.
const defaultTopN = 10

// GetTopGainers returns the n quotes with the largest strictly positive
// percent change, descending.
func (s *PriceStore) GetTopGainers(n int) []model.PriceQuote {
	return s.topByChange(n, true)
}

// GetTopLosers returns the n quotes with the most negative percent change,
// ascending.
func (s *PriceStore) GetTopLosers(n int) []model.PriceQuote {
	return s.topByChange(n, false)
}

func (s *PriceStore) topByChange(n int, gainers bool) []model.PriceQuote {
	if n <= 0 {
		n = defaultTopN
	}

	s.mu.RLock()
	out := make([]model.PriceQuote, 0, len(s.prices))
	for _, q := range s.prices {
		if gainers && q.ChangePct > 0 {
			out = append(out, q)
		}
		if !gainers && q.ChangePct < 0 {
			out = append(out, q)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if gainers {
			return out[i].ChangePct > out[j].ChangePct
		}
		return out[i].ChangePct < out[j].ChangePct
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
