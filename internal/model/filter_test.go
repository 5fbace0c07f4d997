package model

import (
	"testing"
	"time"
)

func TestPriceFilterQuery(t *testing.T) {
	f := &PriceFilter{
		Commodity: "wheat",
		State:     "Punjab",
		MinPrice:  100,
	}
	params := f.Query()

	if got := params.Get("crop"); got != "wheat" {
		t.Errorf("crop = %q, want wheat", got)
	}
	if got := params.Get("state"); got != "Punjab" {
		t.Errorf("state = %q, want Punjab", got)
	}
	if got := params.Get("minPrice"); got != "100" {
		t.Errorf("minPrice = %q, want 100", got)
	}
	if params.Has("maxPrice") || params.Has("district") {
		t.Error("zero-valued fields must be omitted")
	}
}

func TestPriceFilterQueryNil(t *testing.T) {
	var f *PriceFilter
	if got := f.Query(); len(got) != 0 {
		t.Errorf("nil filter Query() = %v, want empty", got)
	}
}

func TestPriceFilterMatches(t *testing.T) {
	q := PriceQuote{
		ID:         "q1",
		Commodity:  "wheat",
		MandiName:  "Azadpur",
		District:   "North Delhi",
		State:      "Delhi",
		ModalPrice: 2500,
		Date:       time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name   string
		filter *PriceFilter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &PriceFilter{}, true},
		{"commodity match", &PriceFilter{Commodity: "wheat"}, true},
		{"commodity mismatch", &PriceFilter{Commodity: "rice"}, false},
		{"all match", &PriceFilter{Commodity: "wheat", State: "Delhi", Mandi: "Azadpur"}, true},
		{"one of many mismatch", &PriceFilter{Commodity: "wheat", State: "Punjab"}, false},
		{"within price band", &PriceFilter{MinPrice: 2000, MaxPrice: 3000}, true},
		{"below min", &PriceFilter{MinPrice: 2600}, false},
		{"above max", &PriceFilter{MaxPrice: 2400}, false},
		{"within dates", &PriceFilter{
			DateFrom: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		}, true},
		{"before window", &PriceFilter{DateFrom: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(&q); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
