// Package testutil provides testing utilities for the ingest pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock search page.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockAPI is a configurable mock of the classifieds search API.
// Pages without a configured response return an empty ads list.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.Mutex
	handlers map[int]http.HandlerFunc

	requestCount int
	pageRequests map[int]int
	inflight     int
	peakInflight int
	lastHeader   http.Header
}

// NewMockAPI starts a plain HTTP mock server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:     make(map[int]http.HandlerFunc),
		pageRequests: make(map[int]int),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

func (m *MockAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("pageIndex"))
	if err != nil {
		http.Error(w, "bad pageIndex", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.requestCount++
	m.pageRequests[page]++
	m.lastHeader = r.Header.Clone()
	m.inflight++
	if m.inflight > m.peakInflight {
		m.peakInflight = m.inflight
	}
	handler, exists := m.handlers[page]
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if exists {
		handler(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"data": {"ads": []}}`))
}

// URL returns the mock server base URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a page index.
func (m *MockAPI) SetHandler(page int, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[page] = handler
}

// SetResponse configures a simple response for a page index.
// A delay is cut short if the client gives up first.
func (m *MockAPI) SetResponse(page int, resp MockResponse) {
	m.SetHandler(page, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of search requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount
}

// PageRequests returns how many times a page was requested.
func (m *MockAPI) PageRequests(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageRequests[page]
}

// PeakInFlight returns the highest number of requests being served at once.
func (m *MockAPI) PeakInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakInflight
}

// LastHeader returns the headers of the most recent request.
func (m *MockAPI) LastHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

// Ad is a search result entry for building payloads.
type Ad struct {
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

// NewAd returns a well-formed ad numbered n.
func NewAd(n int) Ad {
	return Ad{
		URL:          fmt.Sprintf("https://bama.ir/car/detail-%d", n),
		Title:        fmt.Sprintf("Peugeot 206 #%d", n),
		Time:         "2024-05-01 10:30:00",
		Year:         "1399",
		Mileage:      fmt.Sprintf("%d,000 km", 10+n),
		Location:     "Tehran",
		Description:  "clean",
		Image:        fmt.Sprintf("https://img.bama.ir/%d.jpg", n),
		ModifiedDate: "2024-05-01T10:30:00.123456",
		Price:        fmt.Sprintf("%d,000,000", 500+n),
	}
}

// AdsPayload renders a search page body containing ads.
func AdsPayload(ads ...Ad) string {
	type detail struct {
		URL          string `json:"url"`
		Title        string `json:"title"`
		Time         string `json:"time"`
		Year         string `json:"year"`
		Mileage      string `json:"mileage"`
		Location     string `json:"location"`
		Description  string `json:"description"`
		Image        string `json:"image"`
		ModifiedDate string `json:"modified_date"`
	}
	type entry struct {
		Detail detail            `json:"detail"`
		Price  map[string]string `json:"price"`
	}

	entries := make([]entry, 0, len(ads))
	for _, ad := range ads {
		entries = append(entries, entry{
			Detail: detail{
				URL: ad.URL, Title: ad.Title, Time: ad.Time, Year: ad.Year,
				Mileage: ad.Mileage, Location: ad.Location, Description: ad.Description,
				Image: ad.Image, ModifiedDate: ad.ModifiedDate,
			},
			Price: map[string]string{"price": ad.Price},
		})
	}

	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{"ads": entries},
	})
	return string(body)
}

// NewPageResponse creates a 200 OK response carrying ads.
func NewPageResponse(ads ...Ad) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       AdsPayload(ads...),
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewMalformedResponse creates a 200 OK response without data.ads.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data": {"items": []}}`,
	}
}

// NewSlowResponse creates a 200 OK response delivered after delay.
func NewSlowResponse(delay time.Duration, ads ...Ad) MockResponse {
	resp := NewPageResponse(ads...)
	resp.Delay = delay
	return resp
}
