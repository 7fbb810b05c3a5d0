package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/Sternrassler/bama-ingest/pkg/listing"
)

// ErrorClass represents a classification of page fetch failures.
type ErrorClass string

const (
	// ErrorClassStatus represents any non-200 response.
	ErrorClassStatus ErrorClass = "status"

	// ErrorClassClient represents transport failures: refused connections,
	// DNS and TLS errors, truncated or malformed responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassTimeout represents a request or body read that ran past its deadline.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassCanceled represents a fetch abandoned because its context was cancelled.
	ErrorClassCanceled ErrorClass = "canceled"

	// ErrorClassMalformed represents a 200 response whose payload could not be extracted.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassUnexpected represents anything else, including recovered panics.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// FetchError describes why a page produced no records.
type FetchError struct {
	Page       int
	URL        string
	StatusCode int
	Class      ErrorClass
	Err        error
}

// NewFetchError classifies err and tags it with the page it came from.
func NewFetchError(page int, url string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{
		Page:  page,
		URL:   url,
		Class: Classify(err),
		Err:   err,
	}
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 && e.Err != nil {
		return fmt.Sprintf("page %d %s error (status %d): %v", e.Page, e.Class, e.StatusCode, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("page %d %s error (status %d)", e.Page, e.Class, e.StatusCode)
	}
	return fmt.Sprintf("page %d %s error: %v", e.Page, e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of a fetch failure, or "" for nil.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return Classify(err)
}

// Classify categorizes an error for logging and metrics.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}

	if errors.Is(err, listing.ErrMalformedPayload) {
		return ErrorClassMalformed
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorClassCanceled
	}

	// *url.Error and *net.OpError both satisfy net.Error.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorClassTimeout
		}
		return ErrorClassClient
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ErrorClassClient
	}

	return ErrorClassUnexpected
}
