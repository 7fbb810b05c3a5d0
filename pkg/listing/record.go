// Package listing defines the car records extracted from classifieds search
// pages and the per-page and per-batch result types that carry them from the
// fetch pipeline to a persistence sink.
package listing

import (
	"sort"
	"time"
)

// CarRecord is one ad extracted from a search page.
// All fields are kept as upstream text; parsing happens in the sink.
type CarRecord struct {
	URL          string
	Title        string
	Time         string
	Year         string
	Mileage      string
	Location     string
	Description  string
	Image        string
	ModifiedDate string
	Price        string
}

// Values returns the record fields in column order:
// url, title, time, year, mileage, location, description, image, modified_date, price.
func (r CarRecord) Values() []string {
	return []string{
		r.URL, r.Title, r.Time, r.Year, r.Mileage,
		r.Location, r.Description, r.Image, r.ModifiedDate, r.Price,
	}
}

// PageOutcome is the result of fetching one page.
// An empty Records slice means the page failed or had no ads; Err carries the
// reason for diagnostics but sinks treat both cases the same.
type PageOutcome struct {
	Page    int
	URL     string
	Records []CarRecord
	Err     error
}

// Empty reports whether the outcome carries no records.
func (o PageOutcome) Empty() bool {
	return len(o.Records) == 0
}

// BatchResult holds exactly one PageOutcome per requested page.
// Outcomes are in completion order, which is unspecified.
type BatchResult struct {
	Outcomes []PageOutcome

	// Duration is the wall time of the whole batch.
	Duration time.Duration

	// PeakInFlight is the highest number of fetches that held a permit at once.
	PeakInFlight int
}

// Len returns the number of outcomes.
func (b BatchResult) Len() int {
	return len(b.Outcomes)
}

// RecordCount returns the total number of records across all outcomes.
func (b BatchResult) RecordCount() int {
	n := 0
	for _, o := range b.Outcomes {
		n += len(o.Records)
	}
	return n
}

// NonEmpty returns the number of outcomes that carry records.
func (b BatchResult) NonEmpty() int {
	n := 0
	for _, o := range b.Outcomes {
		if !o.Empty() {
			n++
		}
	}
	return n
}

// Pages returns the page indexes present in the batch, sorted ascending.
func (b BatchResult) Pages() []int {
	pages := make([]int, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		pages = append(pages, o.Page)
	}
	sort.Ints(pages)
	return pages
}

// Outcome looks up the outcome for a page.
func (b BatchResult) Outcome(page int) (PageOutcome, bool) {
	for _, o := range b.Outcomes {
		if o.Page == page {
			return o, true
		}
	}
	return PageOutcome{}, false
}
