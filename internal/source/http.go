package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemfeed/internal/model"
)

// Default source settings.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 10 << 20 // 10 MiB
	DefaultUserAgent    = "itemfeed/1.0"
)

// Result label values for fetch metrics.
const (
	resultSuccess  = "success"
	resultCanceled = "canceled"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemfeed_source_fetches_total",
			Help: "Total number of remote item fetches by result",
		},
		[]string{"result"},
	)

	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "itemfeed_source_fetch_duration_seconds",
			Help:    "Remote item fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// HTTPSource fetches items with a single GET against a fixed endpoint.
type HTTPSource struct {
	endpoint     string
	parsed       *url.URL
	parseErr     error
	client       *http.Client
	maxBodyBytes int64
	userAgent    string
	logger       *zap.Logger
}

// Option configures an HTTPSource.
type Option func(*HTTPSource)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(s *HTTPSource) {
		if timeout > 0 {
			s.client = &http.Client{Timeout: timeout}
		}
	}
}

// WithMaxBodyBytes caps the response body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *HTTPSource) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *HTTPSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHTTPSource creates an HTTPSource for the given endpoint.
// A malformed endpoint is reported by FetchItems, not here.
func NewHTTPSource(endpoint string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		endpoint:     endpoint,
		client:       &http.Client{Timeout: DefaultTimeout},
		maxBodyBytes: DefaultMaxBodyBytes,
		userAgent:    DefaultUserAgent,
		logger:       zap.NewNop(),
	}

	s.parsed, s.parseErr = ParseEndpoint(endpoint)

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ParseEndpoint checks that endpoint is an absolute http or https URL with a host.
func ParseEndpoint(endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return nil, errors.New("missing host")
	}

	return u, nil
}

// Endpoint returns the configured endpoint URL.
func (s *HTTPSource) Endpoint() string {
	return s.endpoint
}

// FetchItems performs one GET request and decodes the item list.
func (s *HTTPSource) FetchItems(ctx context.Context) ([]model.Item, error) {
	start := time.Now()

	items, status, err := s.fetch(ctx)

	fetchDuration.Observe(time.Since(start).Seconds())
	fetchesTotal.WithLabelValues(resultLabel(err)).Inc()

	fields := []zap.Field{
		zap.String("endpoint", s.endpoint),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Debug("fetch items failed", append(fields, zap.Error(err))...)
		return nil, err
	}

	s.logger.Debug("fetched items", append(fields, zap.Int("count", len(items)))...)
	return items, nil
}

func (s *HTTPSource) fetch(ctx context.Context) ([]model.Item, int, error) {
	if s.parseErr != nil {
		return nil, 0, newFetchError(KindInvalidEndpoint, 0, s.parseErr)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.parsed.String(), nil)
	if err != nil {
		return nil, 0, newFetchError(KindInvalidEndpoint, 0, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, 0, fmt.Errorf("fetch items: %w", ctx.Err())
		}
		return nil, 0, newFetchError(KindInvalidResponse, 0, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Debug("failed to close response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, newFetchError(KindInvalidResponse, resp.StatusCode, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodyBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, resp.StatusCode, fmt.Errorf("fetch items: %w", ctx.Err())
		}
		return nil, resp.StatusCode, newFetchError(KindInvalidResponse, 0, fmt.Errorf("read body: %w", err))
	}

	if int64(len(body)) > s.maxBodyBytes {
		return nil, resp.StatusCode, newFetchError(
			KindDecoding, 0, fmt.Errorf("body exceeds %d bytes", s.maxBodyBytes),
		)
	}

	items, err := model.DecodeItems(body)
	if err != nil {
		return nil, resp.StatusCode, newFetchError(KindDecoding, 0, err)
	}

	return items, resp.StatusCode, nil
}

func resultLabel(err error) string {
	if err == nil {
		return resultSuccess
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind.String()
	}

	return resultCanceled
}
