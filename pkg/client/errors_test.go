package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"testing"

	"github.com/Sternrassler/bama-ingest/pkg/listing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "malformed payload", err: fmt.Errorf("%w: data.ads missing", listing.ErrMalformedPayload), expected: ErrorClassMalformed},
		{name: "deadline", err: context.DeadlineExceeded, expected: ErrorClassTimeout},
		{name: "wrapped deadline", err: &url.Error{Op: "Get", URL: "u", Err: context.DeadlineExceeded}, expected: ErrorClassTimeout},
		{name: "net timeout", err: &url.Error{Op: "Get", URL: "u", Err: timeoutErr{}}, expected: ErrorClassTimeout},
		{name: "canceled", err: &url.Error{Op: "Get", URL: "u", Err: context.Canceled}, expected: ErrorClassCanceled},
		{name: "connection refused", err: &url.Error{Op: "Get", URL: "u", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}, expected: ErrorClassClient},
		{name: "truncated body", err: fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), expected: ErrorClassClient},
		{name: "other", err: errors.New("boom"), expected: ErrorClassUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *FetchError
		expected string
	}{
		{
			name: "status error",
			err: &FetchError{
				Page:       1,
				StatusCode: 500,
				Class:      ErrorClassStatus,
				Err:        errors.New("500 Internal Server Error"),
			},
			expected: "page 1 status error (status 500): 500 Internal Server Error",
		},
		{
			name:     "status without cause",
			err:      &FetchError{Page: 2, StatusCode: 404, Class: ErrorClassStatus},
			expected: "page 2 status error (status 404)",
		},
		{
			name:     "transport error",
			err:      &FetchError{Page: 3, Class: ErrorClassClient, Err: errors.New("connection refused")},
			expected: "page 3 client error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchError_Unwrap(t *testing.T) {
	fe := NewFetchError(4, "u", context.DeadlineExceeded)

	if !errors.Is(fe, context.DeadlineExceeded) {
		t.Error("errors.Is should see the wrapped error")
	}
	if fe.Class != ErrorClassTimeout || fe.Page != 4 || fe.URL != "u" {
		t.Errorf("unexpected FetchError: %+v", fe)
	}
}

func TestNewFetchError_KeepsExisting(t *testing.T) {
	orig := &FetchError{Page: 5, StatusCode: 503, Class: ErrorClassStatus}
	wrapped := fmt.Errorf("fetch: %w", orig)

	if got := NewFetchError(9, "other", wrapped); got != orig {
		t.Errorf("NewFetchError() = %+v, want the original error", got)
	}
	if ClassOf(wrapped) != ErrorClassStatus {
		t.Errorf("ClassOf() = %q, want %q", ClassOf(wrapped), ErrorClassStatus)
	}
	if ClassOf(nil) != "" {
		t.Error("ClassOf(nil) should be empty")
	}
}
