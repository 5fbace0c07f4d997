package model

import (
	"net/url"
	"strconv"
	"time"

	"github.com/krishishift/mandistream/internal/apperr"
)

// PriceFilter narrows a price query. Every field is optional; set fields
// combine with AND semantics.
type PriceFilter struct {
	Commodity string
	State     string
	District  string
	Mandi     string
	DateFrom  time.Time
	DateTo    time.Time
	MinPrice  float64
	MaxPrice  float64
}

// Query encodes the filter as REST query parameters. Zero-valued fields are
// omitted.
func (f *PriceFilter) Query() url.Values {
	params := url.Values{}
	if f == nil {
		return params
	}
	if f.Commodity != "" {
		params.Set("crop", f.Commodity)
	}
	if f.State != "" {
		params.Set("state", f.State)
	}
	if f.District != "" {
		params.Set("district", f.District)
	}
	if f.Mandi != "" {
		params.Set("mandi", f.Mandi)
	}
	if !f.DateFrom.IsZero() {
		params.Set("dateFrom", f.DateFrom.Format(time.RFC3339))
	}
	if !f.DateTo.IsZero() {
		params.Set("dateTo", f.DateTo.Format(time.RFC3339))
	}
	if f.MinPrice > 0 {
		params.Set("minPrice", strconv.FormatFloat(f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice > 0 {
		params.Set("maxPrice", strconv.FormatFloat(f.MaxPrice, 'f', -1, 64))
	}
	return params
}

// Matches reports whether the quote satisfies every set predicate.
func (f *PriceFilter) Matches(q *PriceQuote) bool {
	if f == nil {
		return true
	}
	if f.Commodity != "" && q.Commodity != f.Commodity {
		return false
	}
	if f.State != "" && q.State != f.State {
		return false
	}
	if f.District != "" && q.District != f.District {
		return false
	}
	if f.Mandi != "" && q.MandiName != f.Mandi {
		return false
	}
	if !f.DateFrom.IsZero() && q.Date.Before(f.DateFrom) {
		return false
	}
	if !f.DateTo.IsZero() && q.Date.After(f.DateTo) {
		return false
	}
	if f.MinPrice > 0 && q.ModalPrice < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && q.ModalPrice > f.MaxPrice {
		return false
	}
	return true
}

// StatsPeriod is the aggregation window of a statistics query.
type StatsPeriod string

const (
	PeriodWeek    StatsPeriod = "week"
	PeriodMonth   StatsPeriod = "month"
	PeriodQuarter StatsPeriod = "quarter"
	PeriodYear    StatsPeriod = "year"
)

// Validate checks the period against its allowed set.
func (p StatsPeriod) Validate() error {
	switch p {
	case PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return nil
	}
	return apperr.Validation("period", "must be one of week, month, quarter, year")
}

// ExportFormat selects the representation of an export download.
type ExportFormat string

const (
	ExportCSV   ExportFormat = "csv"
	ExportExcel ExportFormat = "excel"
	ExportPDF   ExportFormat = "pdf"
)

// Validate checks the format against its allowed set.
func (f ExportFormat) Validate() error {
	switch f {
	case ExportCSV, ExportExcel, ExportPDF:
		return nil
	}
	return apperr.Validation("format", "must be one of csv, excel, pdf")
}
