// Package model defines data structures used throughout the application.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Decoding errors for Item.
var (
	ErrMissingUserID = errors.New("item is missing userId")
	ErrMissingID     = errors.New("item is missing id")
	ErrMissingTitle  = errors.New("item is missing title")
	ErrMissingBody   = errors.New("item is missing body")
)

// Item represents a single remotely sourced record.
// Items are immutable once fetched and compare equal field by field.
type Item struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// wireItem mirrors Item with pointer fields so absent and null values can be
// told apart from zero values.
type wireItem struct {
	UserID *int    `json:"userId"`
	ID     *int    `json:"id"`
	Title  *string `json:"title"`
	Body   *string `json:"body"`
}

// UnmarshalJSON decodes an Item and rejects elements that do not carry all
// four fields with the expected types.
func (i *Item) UnmarshalJSON(data []byte) error {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode item: %w", err)
	}

	if err := w.validate(); err != nil {
		return err
	}

	*i = Item{
		UserID: *w.UserID,
		ID:     *w.ID,
		Title:  *w.Title,
		Body:   *w.Body,
	}

	return nil
}

func (w *wireItem) validate() error {
	switch {
	case w.UserID == nil:
		return ErrMissingUserID
	case w.ID == nil:
		return ErrMissingID
	case w.Title == nil:
		return ErrMissingTitle
	case w.Body == nil:
		return ErrMissingBody
	}

	return nil
}

// DecodeItems parses a JSON array of items.
func DecodeItems(data []byte) ([]Item, error) {
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}

	if items == nil {
		// A literal null is not an array.
		return nil, errors.New("decode items: body is null")
	}

	return items, nil
}

// State is a point-in-time view of the item store.
type State struct {
	Items       []Item `json:"items"`
	FavoriteIDs []int  `json:"favorite_ids"`
	SearchText  string `json:"search_text"`
	IsLoading   bool   `json:"is_loading"`
	Error       string `json:"error,omitempty"`
}

// ItemDetail is a single item together with its favorite flag.
type ItemDetail struct {
	Item     Item `json:"item"`
	Favorite bool `json:"favorite"`
}

// FavoriteStatus reports the favorite flag of an item after a toggle.
type FavoriteStatus struct {
	ID       int  `json:"id"`
	Favorite bool `json:"favorite"`
}

// SearchRequest is the body of a search text update.
type SearchRequest struct {
	Text string `json:"text"`
}

// APIResponse is a generic wrapper for successful API responses. Data is
// always present, so an empty list encodes as [] rather than disappearing.
type APIResponse[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WebSocketMessage is exchanged over the /ws connection. The server sends
// state, pong and error messages; clients may send ping.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	State     *State    `json:"state,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocket message types.
const (
	WSMessageTypeState = "state"
	WSMessageTypePing  = "ping"
	WSMessageTypePong  = "pong"
	WSMessageTypeError = "error"
)

// NewStateMessage creates a new WebSocket message carrying a state snapshot.
func NewStateMessage(state State) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeState,
		State:     &state,
		Timestamp: time.Now().UTC(),
	}
}

// NewPongMessage creates the reply to a client ping.
func NewPongMessage() WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypePong,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorMessage creates a WebSocket message reporting a client error.
func NewErrorMessage(errMsg string) WebSocketMessage {
	return WebSocketMessage{
		Type:      WSMessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}
