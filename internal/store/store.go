// Package store holds the in-memory item state: the fetched items, the
// favorite set, the search text and the fetch lifecycle.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/itemfeed/internal/model"
	"github.com/vyrodovalexey/itemfeed/internal/source"
)

// Store errors.
var (
	ErrNotFound  = errors.New("item not found")
	ErrInvalidID = errors.New("invalid item ID")
)

// Store defines the item state operations exposed to the presentation layer.
type Store interface {
	// Refresh fetches the item list and records the outcome in the state.
	Refresh(ctx context.Context)

	// SetSearchText sets the text FilteredItems matches titles against.
	SetSearchText(text string)

	// ToggleFavorite flips the favorite flag of id and returns the new value.
	ToggleFavorite(id int) bool

	// IsFavorite reports whether id is a favorite.
	IsFavorite(id int) bool

	// Item returns a single item by its ID.
	Item(id int) (model.Item, error)

	// FilteredItems returns the items matching the search text.
	FilteredItems() []model.Item

	// FavoriteItems returns the favorite items in item order.
	FavoriteItems() []model.Item

	// State returns a snapshot of the whole state.
	State() model.State

	// Loaded reports whether a fetch has succeeded at least once.
	Loaded() bool

	// Subscribe registers for change notifications.
	Subscribe() (<-chan struct{}, func())
}

var _ Store = (*ItemStore)(nil)

// User-facing messages for fetch failures.
const (
	MsgInvalidURL      = "Invalid URL"
	MsgInvalidResponse = "Invalid server response"
	MsgDecodingFailed  = "Failed to decode data"
	msgUnexpected      = "An unexpected error occurred: %v"
)

// ErrorMessage converts a fetch failure into the message exposed in State.Error.
func ErrorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, source.ErrInvalidEndpoint):
		return MsgInvalidURL
	case errors.Is(err, source.ErrInvalidResponse):
		return MsgInvalidResponse
	case errors.Is(err, source.ErrDecoding):
		return MsgDecodingFailed
	default:
		return fmt.Sprintf(msgUnexpected, err)
	}
}

// kindLabel names the failure class for logs and metrics.
func kindLabel(err error) string {
	var fetchErr *source.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind.String()
	}
	return "unexpected"
}
