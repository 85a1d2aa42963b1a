// Package fetch retrieves current prices for curated deals from retailer
// product pages. This file defines the error taxonomy of the fetch boundary.
//
// Every failure returned by a Fetcher is a *fetch.Error carrying one of four
// kinds: network-unreachable, timeout, http-error, or unparseable-response.
// The refresh pipeline treats all kinds uniformly as "failure" for counting
// purposes but logs the specific kind for observability.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind labels the failure class of a fetch attempt.
type Kind string

const (
	// KindNetwork covers DNS failures, refused connections, and other
	// transport errors before an HTTP response was received.
	KindNetwork Kind = "network-unreachable"

	// KindTimeout covers deadline expiry, both on the request itself and
	// while waiting on the per-retailer throttle.
	KindTimeout Kind = "timeout"

	// KindHTTP covers responses with a non-200 status code.
	KindHTTP Kind = "http-error"

	// KindParse covers pages that were retrieved but yielded no price.
	KindParse Kind = "unparseable-response"
)

// ErrPriceNotFound is wrapped by KindParse errors when none of the selector,
// meta-tag, or JSON-LD strategies produced a price.
var ErrPriceNotFound = errors.New("no price found in page")

// Error is the typed failure returned by a Fetcher.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int // set for KindHTTP only
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the fetch failure kind of err, or "" when err is not a
// fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// classifyTransport maps an error from the HTTP client to a fetch Error.
func classifyTransport(rawURL string, err error) *Error {
	kind := KindNetwork

	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		kind = KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		kind = KindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}

	return &Error{Kind: kind, URL: rawURL, Err: err}
}
