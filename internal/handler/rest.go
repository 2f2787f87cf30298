package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemfeed/internal/model"
	"github.com/vyrodovalexey/itemfeed/internal/store"
)

// Version is the application version.
const Version = "1.0.0"

// maxSearchBodyBytes bounds the search request body.
const maxSearchBodyBytes = 64 << 10

// RESTHandler handles REST API requests for items.
type RESTHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler instance.
func NewRESTHandler(s store.Store, logger *zap.Logger) *RESTHandler {
	return &RESTHandler{
		store:  s,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/state", h.GetState).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/items", h.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/items/{id}", h.GetItem).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/items/{id}/favorite", h.ToggleFavorite).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/favorites", h.ListFavorites).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/search", h.SetSearch).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/refresh", h.Refresh).Methods(http.MethodPost)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// ReadyCheck handles GET /ready requests. The service is ready once the
// first fetch has succeeded.
func (h *RESTHandler) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	if !h.store.Loaded() {
		h.writeJSON(w, http.StatusServiceUnavailable,
			model.NewSuccessResponse(ReadyResponse{Status: "loading"}))
		return
	}

	response := ReadyResponse{
		Status: "ready",
		Items:  len(h.store.State().Items),
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// GetState handles GET /api/v1/state requests.
func (h *RESTHandler) GetState(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.store.State()))
}

// ListItems handles GET /api/v1/items requests. A q query parameter
// replaces the search text before filtering.
func (h *RESTHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Has("q") {
		h.store.SetSearchText(query.Get("q"))
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.store.FilteredItems()))
}

// GetItem handles GET /api/v1/items/{id} requests.
func (h *RESTHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		h.handleStoreError(w, err, "get item")
		return
	}

	item, err := h.store.Item(id)
	if err != nil {
		h.handleStoreError(w, err, "get item")
		return
	}

	detail := model.ItemDetail{
		Item:     item,
		Favorite: h.store.IsFavorite(id),
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(detail))
}

// ToggleFavorite handles POST /api/v1/items/{id}/favorite requests.
// Any integer ID is accepted, loaded or not.
func (h *RESTHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := itemID(r)
	if err != nil {
		h.handleStoreError(w, err, "toggle favorite")
		return
	}

	status := model.FavoriteStatus{
		ID:       id,
		Favorite: h.store.ToggleFavorite(id),
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(status))
}

// ListFavorites handles GET /api/v1/favorites requests.
func (h *RESTHandler) ListFavorites(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.store.FavoriteItems()))
}

// SetSearch handles PUT /api/v1/search requests.
func (h *RESTHandler) SetSearch(w http.ResponseWriter, r *http.Request) {
	var input model.SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBodyBytes)).Decode(&input); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.store.SetSearchText(input.Text)
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.store.FilteredItems()))
}

// Refresh handles POST /api/v1/refresh requests. The fetch is detached from
// the request so a client disconnect does not abort it.
func (h *RESTHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.store.Refresh(context.WithoutCancel(r.Context()))
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(h.store.State()))
}

// itemID parses the {id} route variable.
func itemID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return 0, store.ErrInvalidID
	}
	return id, nil
}

// handleStoreError handles store errors and writes appropriate HTTP responses.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, store.ErrInvalidID):
		h.writeError(w, http.StatusBadRequest, "invalid item ID")
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	response := model.ErrorResponse{
		Code:    status,
		Message: message,
	}
	h.writeJSON(w, status, response)
}
