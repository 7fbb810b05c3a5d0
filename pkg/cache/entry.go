package cache

import (
	"fmt"
	"strconv"
	"time"
)

// Hash fields of a stored page.
const (
	fieldBody     = "body"
	fieldPage     = "page"
	fieldCachedAt = "cached_at"
)

// PageEntry is a cached 200 OK page body.
type PageEntry struct {
	Body     []byte
	Page     int
	CachedAt time.Time
}

// NewPageEntry stamps body with the current time.
func NewPageEntry(page int, body []byte) *PageEntry {
	return &PageEntry{Body: body, Page: page, CachedAt: time.Now().UTC()}
}

// Age returns how long ago the page was cached.
func (e *PageEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

func (e *PageEntry) fields() []any {
	return []any{
		fieldBody, e.Body,
		fieldPage, e.Page,
		fieldCachedAt, e.CachedAt.UnixMilli(),
	}
}

// entryFromHash rebuilds an entry from HGETALL output.
func entryFromHash(h map[string]string) (*PageEntry, error) {
	body, ok := h[fieldBody]
	if !ok {
		return nil, fmt.Errorf("%w: no %s field", ErrInvalidEntry, fieldBody)
	}
	page, err := strconv.Atoi(h[fieldPage])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, fieldPage, err)
	}
	ms, err := strconv.ParseInt(h[fieldCachedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, fieldCachedAt, err)
	}

	return &PageEntry{
		Body:     []byte(body),
		Page:     page,
		CachedAt: time.UnixMilli(ms).UTC(),
	}, nil
}
