package storage

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/bama-ingest/pkg/listing"
)

const (
	// TimeLayout is the format of the listing time field.
	TimeLayout = "2006-01-02 15:04:05"

	// ModifiedDateLayout is the format of the modified_date field.
	ModifiedDateLayout = "2006-01-02T15:04:05.999999999"
)

var nonNumeric = regexp.MustCompile(`[^\d.]`)

// Row is one parsed record ready for insertion into cars_new.
// Nil pointers are written as NULL.
type Row struct {
	URL         string
	Title       string
	Time        time.Time
	Year        *int64
	Mileage     *float64
	Location    string
	Description string
	Image       string
	CreatedAt   time.Time
	Price       *float64
}

// NewRow parses rec. Unparseable timestamps fall back to now.
func NewRow(rec listing.CarRecord, now time.Time) Row {
	return Row{
		URL:         rec.URL,
		Title:       rec.Title,
		Time:        ParseTimestamp(rec.Time, TimeLayout, now),
		Year:        ParseYear(rec.Year),
		Mileage:     ParseMileage(rec.Mileage),
		Location:    rec.Location,
		Description: rec.Description,
		Image:       rec.Image,
		CreatedAt:   ParseTimestamp(rec.ModifiedDate, ModifiedDateLayout, now),
		Price:       ParsePrice(rec.Price),
	}
}

// Args returns the insert arguments in column order.
func (r Row) Args() []any {
	return []any{
		r.URL, r.Title, r.Time, nullable(r.Year), nullable(r.Mileage),
		r.Location, r.Description, r.Image, r.CreatedAt, nullable(r.Price),
	}
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// ParseMileage drops every character other than digits and '.' and parses
// the rest, so "12,345 km" becomes 12345. It returns nil when nothing
// parseable remains.
func ParseMileage(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(nonNumeric.ReplaceAllString(s, ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParsePrice removes thousands separators and parses the rest.
// It returns nil for empty or non-numeric prices.
func ParsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", "")), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseYear returns nil unless s is an integer.
func ParseYear(s string) *int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseTimestamp parses s with layout, or returns now.
func ParseTimestamp(s, layout string, now time.Time) time.Time {
	t, err := time.Parse(layout, s)
	if err != nil {
		return now
	}
	return t
}
