package model

import (
	"testing"
	"time"
)

func validQuote() PriceQuote {
	return PriceQuote{
		ID:         "q1",
		Commodity:  "wheat",
		MandiName:  "Azadpur",
		State:      "Delhi",
		MinPrice:   2400,
		MaxPrice:   2600,
		ModalPrice: 2500,
		Date:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Unit:       UnitQuintal,
		Trend:      TrendUp,
		ChangePct:  1.5,
	}
}

func TestPriceQuoteValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PriceQuote)
		wantErr bool
	}{
		{"valid", func(q *PriceQuote) {}, false},
		{"empty id", func(q *PriceQuote) { q.ID = "" }, true},
		{"min above modal", func(q *PriceQuote) { q.MinPrice = 2550 }, true},
		{"modal above max", func(q *PriceQuote) { q.ModalPrice = 2700 }, true},
		{"up with negative change", func(q *PriceQuote) { q.ChangePct = -1 }, true},
		{"up with zero change", func(q *PriceQuote) { q.ChangePct = 0 }, true},
		{"down with positive change", func(q *PriceQuote) {
			q.Trend = TrendDown
			q.ChangePct = 2
		}, true},
		{"down with negative change", func(q *PriceQuote) {
			q.Trend = TrendDown
			q.ChangePct = -2
		}, false},
		{"stable with near-zero change", func(q *PriceQuote) {
			q.Trend = TrendStable
			q.ChangePct = 0.005
		}, false},
		{"stable with large change", func(q *PriceQuote) {
			q.Trend = TrendStable
			q.ChangePct = 3
		}, true},
		{"equal min modal max", func(q *PriceQuote) {
			q.MinPrice = 2500
			q.MaxPrice = 2500
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuote()
			tt.mutate(&q)
			err := q.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPriceAlertValidate(t *testing.T) {
	tests := []struct {
		name    string
		alert   PriceAlert
		wantErr bool
	}{
		{"valid above", PriceAlert{Commodity: "wheat", TargetPrice: 2500, Condition: AlertAbove}, false},
		{"valid below", PriceAlert{Commodity: "rice", TargetPrice: 3000, Condition: AlertBelow}, false},
		{"empty commodity", PriceAlert{TargetPrice: 2500, Condition: AlertAbove}, true},
		{"zero target", PriceAlert{Commodity: "wheat", Condition: AlertAbove}, true},
		{"negative target", PriceAlert{Commodity: "wheat", TargetPrice: -5, Condition: AlertAbove}, true},
		{"bad condition", PriceAlert{Commodity: "wheat", TargetPrice: 2500, Condition: "near"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.alert.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCoordinatesAccessors(t *testing.T) {
	c := Coordinates{28.7, 77.1}
	if c.Latitude() != 28.7 {
		t.Errorf("Latitude() = %v, want 28.7", c.Latitude())
	}
	if c.Longitude() != 77.1 {
		t.Errorf("Longitude() = %v, want 77.1", c.Longitude())
	}
}

func TestStatsPeriodValidate(t *testing.T) {
	for _, p := range []StatsPeriod{PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear} {
		if err := p.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", p, err)
		}
	}
	if err := StatsPeriod("decade").Validate(); err == nil {
		t.Error("Validate(decade) = nil, want error")
	}
}

func TestExportFormatValidate(t *testing.T) {
	for _, f := range []ExportFormat{ExportCSV, ExportExcel, ExportPDF} {
		if err := f.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", f, err)
		}
	}
	if err := ExportFormat("xml").Validate(); err == nil {
		t.Error("Validate(xml) = nil, want error")
	}
}
