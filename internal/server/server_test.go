package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemfeed/internal/config"
	"github.com/vyrodovalexey/itemfeed/internal/model"
	"github.com/vyrodovalexey/itemfeed/internal/source"
	"github.com/vyrodovalexey/itemfeed/internal/store"
)

const upstreamBody = `[
	{"userId":1,"id":1,"title":"Alpha","body":"x"},
	{"userId":2,"id":2,"title":"Beta","body":"y"}
]`

func testConfig(metrics bool) *config.Config {
	return &config.Config{
		ServerPort:      8080,
		LogLevel:        "info",
		ShutdownTimeout: 5 * time.Second,
		MetricsEnabled:  metrics,
		SourceURL:       "http://127.0.0.1/posts",
		SourceTimeout:   2 * time.Second,
	}
}

// newUpstream serves body as the item list.
func newUpstream(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(upstream.Close)

	return upstream
}

func newTestStore(t *testing.T, upstreamURL string) *store.ItemStore {
	t.Helper()

	src := source.NewHTTPSource(upstreamURL, source.WithTimeout(2*time.Second))
	return store.New(src, zap.NewNop())
}

func serve(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestNew(t *testing.T) {
	// Arrange
	cfg := testConfig(true)
	itemStore := store.New(&nopSource{}, zap.NewNop())

	// Act
	srv := New(cfg, zap.NewNop(), itemStore)

	// Assert
	if srv == nil {
		t.Fatal("New() returned nil")
	}
	if srv.Handler() == nil {
		t.Error("handler should not be nil")
	}
	if srv.wsHandler == nil {
		t.Error("wsHandler should not be nil")
	}
	if srv.httpServer.Addr != ":8080" {
		t.Errorf("Addr = %s, want :8080", srv.httpServer.Addr)
	}
	if srv.httpServer.WriteTimeout <= cfg.SourceTimeout {
		t.Errorf("WriteTimeout = %v, should exceed source timeout %v", srv.httpServer.WriteTimeout, cfg.SourceTimeout)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		wantStatus int
	}{
		{name: "enabled", enabled: true, wantStatus: http.StatusOK},
		{name: "disabled", enabled: false, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(testConfig(tt.enabled), zap.NewNop(), store.New(&nopSource{}, zap.NewNop()))

			rr := serve(t, srv, http.MethodGet, "/metrics")

			if rr.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestServer_RefreshThenBrowse(t *testing.T) {
	// Arrange
	upstream := newUpstream(t, http.StatusOK, upstreamBody)
	srv := New(testConfig(true), zap.NewNop(), newTestStore(t, upstream.URL))

	// Act
	ready := serve(t, srv, http.MethodGet, "/ready")
	refresh := serve(t, srv, http.MethodPost, "/api/v1/refresh")
	toggle := serve(t, srv, http.MethodPost, "/api/v1/items/2/favorite")
	favorites := serve(t, srv, http.MethodGet, "/api/v1/favorites")

	// Assert
	if ready.Code != http.StatusServiceUnavailable {
		t.Errorf("ready before refresh = %d, want %d", ready.Code, http.StatusServiceUnavailable)
	}
	if refresh.Code != http.StatusOK {
		t.Fatalf("refresh = %d, want %d", refresh.Code, http.StatusOK)
	}
	var state model.APIResponse[model.State]
	if err := json.NewDecoder(refresh.Body).Decode(&state); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if len(state.Data.Items) != 2 || state.Data.Error != "" {
		t.Errorf("state = %+v, want 2 items and no error", state.Data)
	}
	if toggle.Code != http.StatusOK {
		t.Errorf("toggle = %d, want %d", toggle.Code, http.StatusOK)
	}
	var favs model.APIResponse[[]model.Item]
	if err := json.NewDecoder(favorites.Body).Decode(&favs); err != nil {
		t.Fatalf("decode favorites: %v", err)
	}
	if len(favs.Data) != 1 || favs.Data[0].Title != "Beta" {
		t.Errorf("favorites = %+v, want [Beta]", favs.Data)
	}
	if serve(t, srv, http.MethodGet, "/ready").Code != http.StatusOK {
		t.Error("ready after refresh should be 200")
	}
}

func TestServer_RefreshFailureReportsMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oops", wantMsg: store.MsgInvalidResponse},
		{name: "bad payload", status: http.StatusOK, body: `{"not":"a list"}`, wantMsg: store.MsgDecodingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			upstream := newUpstream(t, tt.status, tt.body)
			srv := New(testConfig(false), zap.NewNop(), newTestStore(t, upstream.URL))

			// Act
			rr := serve(t, srv, http.MethodPost, "/api/v1/refresh")

			// Assert
			var state model.APIResponse[model.State]
			if err := json.NewDecoder(rr.Body).Decode(&state); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if state.Data.Error != tt.wantMsg {
				t.Errorf("Error = %q, want %q", state.Data.Error, tt.wantMsg)
			}
			if state.Data.IsLoading {
				t.Error("IsLoading should be false after completion")
			}
		})
	}
}

func TestServer_MiddlewareApplied(t *testing.T) {
	srv := New(testConfig(true), zap.NewNop(), store.New(&nopSource{}, zap.NewNop()))

	rr := serve(t, srv, http.MethodGet, "/health")

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}
	if rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("CORS headers should be set")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	paths := []string{"/api/v1/search", "/api/v1/items/2/favorite", "/api/v1/refresh"}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			// Arrange
			srv := New(testConfig(true), zap.NewNop(), store.New(&nopSource{}, zap.NewNop()))
			req := httptest.NewRequest(http.MethodOptions, path, nil)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", http.MethodPut)
			rr := httptest.NewRecorder()

			// Act
			srv.Handler().ServeHTTP(rr, req)

			// Assert
			if rr.Code != http.StatusNoContent {
				t.Errorf("Status = %d, want %d", rr.Code, http.StatusNoContent)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
				t.Errorf("Allow-Origin = %q, want http://localhost:3000", got)
			}
			if got := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPut) {
				t.Errorf("Allow-Methods = %q, want it to include PUT", got)
			}
			if rr.Header().Get("X-Request-ID") == "" {
				t.Error("preflight should still get a request ID")
			}
		})
	}
}

func TestServer_RecoveryReturnsJSON(t *testing.T) {
	// Arrange
	srv := New(testConfig(false), zap.NewNop(), store.New(&nopSource{}, zap.NewNop()))
	srv.router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	// Act
	rr := serve(t, srv, http.MethodGet, "/boom")

	// Assert
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	var errResp model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errResp.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want %d", errResp.Code, http.StatusInternalServerError)
	}
}

func TestServer_EmptyListsKeepData(t *testing.T) {
	// Arrange
	upstream := newUpstream(t, http.StatusOK, upstreamBody)
	itemStore := newTestStore(t, upstream.URL)
	itemStore.Refresh(context.Background())
	srv := New(testConfig(false), zap.NewNop(), itemStore)

	for _, path := range []string{"/api/v1/items?q=nomatch", "/api/v1/favorites"} {
		// Act
		rr := serve(t, srv, http.MethodGet, path)

		// Assert
		if body := strings.TrimSpace(rr.Body.String()); body != `{"success":true,"data":[]}` {
			t.Errorf("%s body = %s, want an empty data array", path, body)
		}
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	// Arrange
	upstream := newUpstream(t, http.StatusOK, upstreamBody)
	itemStore := newTestStore(t, upstream.URL)
	itemStore.Refresh(context.Background())
	srv := New(testConfig(false), zap.NewNop(), itemStore)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	wsURL := "ws://" + ln.Addr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	var msg model.WebSocketMessage
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.State == nil || len(msg.State.Items) != 2 {
		t.Fatalf("initial state = %+v, want 2 items", msg.State)
	}

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Act
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(ctx)

	// Assert
	if shutdownErr != nil {
		t.Errorf("Shutdown() error = %v", shutdownErr)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after Shutdown")
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("websocket should be closed after Shutdown")
	}
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := New(testConfig(false), zap.NewNop(), store.New(&nopSource{}, zap.NewNop()))

	rr := serve(t, srv, http.MethodGet, "/api/v1/nothing")

	if rr.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if strings.Contains(rr.Body.String(), "panic") {
		t.Error("unexpected panic output")
	}
}

// nopSource returns an empty item list.
type nopSource struct{}

func (nopSource) FetchItems(context.Context) ([]model.Item, error) {
	return []model.Item{}, nil
}
