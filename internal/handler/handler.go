// Package handler exposes the item store over HTTP: a REST API for queries
// and mutations and a WebSocket feed of state changes.
package handler

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse represents the readiness check response.
type ReadyResponse struct {
	Status string `json:"status"`
	Items  int    `json:"items"`
}
