// Package conditional builds HTTP validator preconditions for transfer
// requests and classifies the responses they provoke.
package conditional

import (
	"fmt"
	nethttp "net/http"
	"time"

	"github.com/meridian-labs/transit/internal/transfer"
)

// Preconditions captures the four standard HTTP validators. Zero values mean
// "not set" and emit nothing. ETag values are passed through verbatim,
// including quotes, weak prefixes, and the wildcard "*". Both IfMatch and
// IfNoneMatch may be set on one request; the server arbitrates.
type Preconditions struct {
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
	IfMatch           string
	IfNoneMatch       string
}

// Empty reports whether no validator is set.
func (p Preconditions) Empty() bool {
	return p.IfModifiedSince.IsZero() && p.IfUnmodifiedSince.IsZero() &&
		p.IfMatch == "" && p.IfNoneMatch == ""
}

// Apply writes the configured validators onto h. Dates are rendered in
// RFC 1123 with the GMT zone, as validator headers require.
func (p Preconditions) Apply(h nethttp.Header) {
	if !p.IfModifiedSince.IsZero() {
		h.Set("If-Modified-Since", p.IfModifiedSince.UTC().Format(nethttp.TimeFormat))
	}
	if !p.IfUnmodifiedSince.IsZero() {
		h.Set("If-Unmodified-Since", p.IfUnmodifiedSince.UTC().Format(nethttp.TimeFormat))
	}
	if p.IfMatch != "" {
		h.Set("If-Match", p.IfMatch)
	}
	if p.IfNoneMatch != "" {
		h.Set("If-None-Match", p.IfNoneMatch)
	}
}

// ClassifyStatus maps a non-success HTTP status to a transfer error kind.
// 412 is the server rejecting a validator; 304 is the functionally
// equivalent not-modified outcome for If-None-Match reads, so both land on
// the same kind and callers handle them with one check.
func ClassifyStatus(status int) transfer.Kind {
	switch status {
	case nethttp.StatusPreconditionFailed, nethttp.StatusNotModified:
		return transfer.KindConditionNotMet
	case nethttp.StatusRequestTimeout, nethttp.StatusGatewayTimeout:
		return transfer.KindTimeout
	case nethttp.StatusBadRequest, nethttp.StatusRequestedRangeNotSatisfiable:
		return transfer.KindConfiguration
	default:
		return transfer.KindTransport
	}
}

// StatusError converts a non-success response status into a classified
// transfer error.
func StatusError(op string, status int) error {
	return transfer.NewError(ClassifyStatus(status), op,
		fmt.Errorf("unexpected status %d %s", status, nethttp.StatusText(status)))
}
