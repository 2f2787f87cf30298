// Package source fetches the remote item list over HTTP.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/itemfeed/internal/model"
)

// ItemSource retrieves the full item list from a remote endpoint.
type ItemSource interface {
	// FetchItems performs one request/response cycle and returns the decoded items.
	FetchItems(ctx context.Context) ([]model.Item, error)
}

// Kind classifies a fetch failure.
type Kind int

// Fetch failure kinds.
const (
	KindInvalidEndpoint Kind = iota + 1
	KindInvalidResponse
	KindDecoding
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidEndpoint:
		return "invalid_endpoint"
	case KindInvalidResponse:
		return "invalid_response"
	case KindDecoding:
		return "decoding_error"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by FetchError through errors.Is.
var (
	ErrInvalidEndpoint = errors.New("invalid endpoint URL")
	ErrInvalidResponse = errors.New("invalid server response")
	ErrDecoding        = errors.New("failed to decode response body")
)

// FetchError is returned by HTTPSource for every classified failure.
type FetchError struct {
	Kind       Kind
	StatusCode int // 0 when no response was received.
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := e.sentinel().Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *FetchError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *FetchError) sentinel() error {
	switch e.Kind {
	case KindInvalidEndpoint:
		return ErrInvalidEndpoint
	case KindInvalidResponse:
		return ErrInvalidResponse
	case KindDecoding:
		return ErrDecoding
	default:
		return errors.New("fetch failed")
	}
}

func newFetchError(kind Kind, status int, err error) *FetchError {
	return &FetchError{Kind: kind, StatusCode: status, Err: err}
}
