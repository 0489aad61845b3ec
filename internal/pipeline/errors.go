package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tpyo/shrinkray/internal/backend"
	"github.com/tpyo/shrinkray/internal/engine"
	"github.com/tpyo/shrinkray/internal/options"
)

// ErrBadSignature means the request signature is missing or does not match.
var ErrBadSignature = errors.New("request signature rejected")

// Kind classifies a pipeline failure by the stage and cause, and carries the
// HTTP status the failure maps to.
type Kind int

const (
	KindInternal Kind = iota
	KindParse
	KindSignature
	KindRouting
	KindFetchNotFound
	KindFetchTimeout
	KindFetchUpstream
	KindDecode
	KindTooLarge
	KindEncode
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindSignature:
		return "signature"
	case KindRouting:
		return "routing"
	case KindFetchNotFound:
		return "fetch_not_found"
	case KindFetchTimeout:
		return "fetch_timeout"
	case KindFetchUpstream:
		return "fetch_upstream"
	case KindDecode:
		return "decode"
	case KindTooLarge:
		return "too_large"
	case KindEncode:
		return "encode"
	default:
		return "internal"
	}
}

// HTTPStatus maps the failure kind onto a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindParse:
		return http.StatusBadRequest
	case KindSignature:
		return http.StatusForbidden
	case KindRouting, KindFetchNotFound:
		return http.StatusNotFound
	case KindFetchTimeout:
		return http.StatusGatewayTimeout
	case KindFetchUpstream:
		return http.StatusBadGateway
	case KindDecode:
		return http.StatusUnprocessableEntity
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified pipeline failure. The cause chain stays intact for
// logging; handlers use only the Kind to shape the response.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func failure(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// Classify extracts the failure kind from any error returned by Process,
// defaulting to internal.
func Classify(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

func classifyFetch(err error) *Error {
	switch {
	case errors.Is(err, backend.ErrNoRoute):
		return failure(KindRouting, err)
	case errors.Is(err, backend.ErrNotFound):
		return failure(KindFetchNotFound, err)
	case errors.Is(err, backend.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return failure(KindFetchTimeout, err)
	default:
		return failure(KindFetchUpstream, err)
	}
}

func classifyDecode(err error) *Error {
	switch {
	case errors.Is(err, engine.ErrTooManyPixels):
		return failure(KindTooLarge, err)
	case errors.Is(err, engine.ErrUnsupportedFormat), errors.Is(err, engine.ErrCorrupt):
		return failure(KindDecode, err)
	default:
		return failure(KindInternal, err)
	}
}

func classifyTransform(err error) *Error {
	if errors.Is(err, engine.ErrTooManyPixels) {
		return failure(KindTooLarge, err)
	}
	return failure(KindInternal, fmt.Errorf("transform: %w", err))
}

func classifyParse(err error) *Error {
	var pe *options.ParseError
	if errors.As(err, &pe) {
		return failure(KindParse, err)
	}
	return failure(KindInternal, err)
}
