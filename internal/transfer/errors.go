package transfer

import (
	"errors"
	"fmt"
)

// Kind classifies a transfer failure. The core never swallows or
// reinterprets transport errors; it only attaches a kind, chunk context,
// and ordering discipline.
type Kind int

const (
	// KindTransport - the injected transport failed after its own retry
	// budget was exhausted; the underlying error is passed through unchanged.
	KindTransport Kind = iota
	// KindConditionNotMet - the server rejected a conditional header.
	// Never retried by the core.
	KindConditionNotMet
	// KindIntegrity - local digest mismatch on a transferred chunk.
	// Fatal; retry, if any, is a caller decision.
	KindIntegrity
	// KindConfiguration - invalid chunk size, non-seekable stream with
	// concurrency > 1, and similar. Raised before any network call.
	KindConfiguration
	// KindTimeout - the wall-clock budget expired between chunk dispatches.
	KindTimeout
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindConditionNotMet:
		return "condition_not_met"
	case KindIntegrity:
		return "integrity"
	case KindConfiguration:
		return "configuration"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by the transfer core.
// Chunk is -1 when the failure is not attributable to one chunk.
type Error struct {
	Kind  Kind
	Chunk int64
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Chunk >= 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: chunk %d: %s: %v", e.Kind, e.Chunk, e.Op, e.Err)
		}
		return fmt.Sprintf("%s: chunk %d: %s", e.Kind, e.Chunk, e.Op)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a transfer error not tied to a particular chunk.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Chunk: -1, Op: op, Err: err}
}

// NewChunkError builds a transfer error tagged with the failing chunk index.
func NewChunkError(kind Kind, chunk int64, op string, err error) *Error {
	return &Error{Kind: kind, Chunk: chunk, Op: op, Err: err}
}

// KindOf extracts the Kind from err, or KindTransport if err is not a
// transfer error. Errors from the store boundary arrive already classified;
// anything else is by definition a transport-level failure.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindTransport
}

// IsConditionNotMet reports whether err is a precondition failure.
func IsConditionNotMet(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindConditionNotMet
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindConfiguration
}

// IsIntegrity reports whether err is a content integrity failure.
func IsIntegrity(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindIntegrity
}

// IsTimeout reports whether err is a transfer budget timeout.
func IsTimeout(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindTimeout
}
