package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/bama-ingest/internal/testutil"
	"github.com/Sternrassler/bama-ingest/pkg/client"
	"github.com/Sternrassler/bama-ingest/pkg/listing"
	"github.com/rs/zerolog"
)

type fakeResponse struct {
	body  string
	err   error
	panic bool
	delay time.Duration
}

// fakeClient serves scripted page responses without a network.
type fakeClient struct {
	mu        sync.Mutex
	responses map[int]fakeResponse
	closed    int
}

func newFakeClient(responses map[int]fakeResponse) *fakeClient {
	return &fakeClient{responses: responses}
}

func (c *fakeClient) PageURL(page int) string {
	return fmt.Sprintf("http://fake/search?pageIndex=%d", page)
}

func (c *fakeClient) FetchPage(ctx context.Context, page int) ([]byte, error) {
	c.mu.Lock()
	resp, ok := c.responses[page]
	c.mu.Unlock()

	if !ok {
		return []byte(testutil.AdsPayload()), nil
	}
	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if resp.panic {
		panic("fake client exploded")
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return []byte(resp.body), nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeClient) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestFetcher(pc PageClient, permits *PermitPool, timeout time.Duration) *PageFetcher {
	cfg := DefaultConfig()
	cfg.PageTimeout = timeout
	return NewPageFetcher(pc, permits, cfg, zerolog.Nop())
}

func TestPageFetcher_Fetch(t *testing.T) {
	statusErr := &client.FetchError{Page: 2, StatusCode: 500, Class: client.ErrorClassStatus, Err: errors.New("500 Internal Server Error")}

	fc := newFakeClient(map[int]fakeResponse{
		1: {body: testutil.AdsPayload(testutil.NewAd(1), testutil.NewAd(2), testutil.NewAd(3))},
		2: {err: statusErr},
		3: {body: `{"data": {}}`},
		4: {body: `not json`},
		5: {delay: time.Second},
		6: {panic: true},
		7: {err: errors.New("weird")},
	})

	tests := []struct {
		name      string
		page      int
		records   int
		wantClass client.ErrorClass
	}{
		{name: "success", page: 1, records: 3},
		{name: "non-200", page: 2, wantClass: client.ErrorClassStatus},
		{name: "missing ads", page: 3, wantClass: client.ErrorClassMalformed},
		{name: "undecodable body", page: 4, wantClass: client.ErrorClassMalformed},
		{name: "timeout", page: 5, wantClass: client.ErrorClassTimeout},
		{name: "panic", page: 6, wantClass: client.ErrorClassUnexpected},
		{name: "unclassified error", page: 7, wantClass: client.ErrorClassUnexpected},
		{name: "empty page", page: 8, records: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			permits := NewPermitPool(1)
			f := newTestFetcher(fc, permits, 30*time.Millisecond)

			outcome := f.Fetch(context.Background(), tt.page)

			if outcome.Page != tt.page {
				t.Errorf("Page = %d, want %d", outcome.Page, tt.page)
			}
			if outcome.URL != fc.PageURL(tt.page) {
				t.Errorf("URL = %q", outcome.URL)
			}
			if len(outcome.Records) != tt.records {
				t.Errorf("len(Records) = %d, want %d", len(outcome.Records), tt.records)
			}
			if got := client.ClassOf(outcome.Err); got != tt.wantClass {
				t.Errorf("error class = %q, want %q (err: %v)", got, tt.wantClass, outcome.Err)
			}
			if held := permits.Held(); held != 0 {
				t.Errorf("permit not released: Held() = %d", held)
			}
		})
	}
}

func TestPageFetcher_Fetch_PermitCancelled(t *testing.T) {
	permits := NewPermitPool(1)
	if err := permits.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer permits.Release()

	f := newTestFetcher(newFakeClient(nil), permits, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := f.Fetch(ctx, 1)
	if !outcome.Empty() {
		t.Errorf("expected empty outcome, got %d records", len(outcome.Records))
	}
	if got := client.ClassOf(outcome.Err); got != client.ErrorClassCanceled {
		t.Errorf("error class = %q, want %q", got, client.ErrorClassCanceled)
	}
}

func TestPageFetcher_Fetch_PriceMode(t *testing.T) {
	body := testutil.AdsPayload(testutil.NewAd(1), testutil.NewAd(2))
	fc := newFakeClient(map[int]fakeResponse{1: {body: body}})

	tests := []struct {
		mode       listing.PriceMode
		wantSecond string
	}{
		{mode: listing.PriceFromFirstAd, wantSecond: testutil.NewAd(1).Price},
		{mode: listing.PriceFromOwnAd, wantSecond: testutil.NewAd(2).Price},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.PriceMode = tt.mode
			f := NewPageFetcher(fc, NewPermitPool(1), cfg, zerolog.Nop())

			outcome := f.Fetch(context.Background(), 1)
			if len(outcome.Records) != 2 {
				t.Fatalf("len(Records) = %d, want 2", len(outcome.Records))
			}
			if got := outcome.Records[1].Price; got != tt.wantSecond {
				t.Errorf("second record price = %q, want %q", got, tt.wantSecond)
			}
		})
	}
}
