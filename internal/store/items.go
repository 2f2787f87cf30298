package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/itemfeed/internal/model"
	"github.com/vyrodovalexey/itemfeed/internal/source"
)

// Refresh outcome label values.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeStale   = "stale"
)

var (
	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itemfeed_store_refreshes_total",
			Help: "Total number of completed refreshes by outcome",
		},
		[]string{"outcome"},
	)

	itemsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "itemfeed_store_items",
			Help: "Number of items currently held by the store",
		},
	)

	favoritesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "itemfeed_store_favorites",
			Help: "Number of item IDs currently marked as favorite",
		},
	)
)

// ItemStore owns the item state and its fetch lifecycle.
//
// Refresh is the only blocking operation and holds no lock while the fetch
// is in flight, so SetSearchText and ToggleFavorite stay immediate during a
// refresh. Overlapping refreshes are not cancelled: the last one to complete
// writes items and error, unless WithDiscardStale is set.
type ItemStore struct {
	source       source.ItemSource
	logger       *zap.Logger
	discardStale bool

	mu         sync.RWMutex
	items      []model.Item
	index      map[int]int
	favorites  map[int]struct{}
	searchText string
	inFlight   int
	errMsg     string
	loaded     bool
	generation uint64

	*notifier
}

// Option configures an ItemStore.
type Option func(*ItemStore)

// WithDiscardStale drops the completion of a refresh once a newer refresh
// has started.
func WithDiscardStale() Option {
	return func(s *ItemStore) {
		s.discardStale = true
	}
}

// New creates an empty ItemStore backed by src.
func New(src source.ItemSource, logger *zap.Logger, opts ...Option) *ItemStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &ItemStore{
		source:    src,
		logger:    logger,
		items:     []model.Item{},
		index:     make(map[int]int),
		favorites: make(map[int]struct{}),
		notifier:  newNotifier(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Refresh fetches the item list and records the outcome in the store state.
// Fetch failures never escape: they are turned into State.Error.
func (s *ItemStore) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.inFlight++
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()

	items, err := s.source.FetchItems(ctx)

	s.mu.Lock()
	s.inFlight--

	if s.discardStale && gen != s.generation {
		s.mu.Unlock()
		refreshesTotal.WithLabelValues(outcomeStale).Inc()
		s.logger.Debug("discarded stale refresh", zap.Uint64("generation", gen))
		s.notify()
		return
	}

	if err != nil {
		s.errMsg = ErrorMessage(err)
		s.mu.Unlock()

		refreshesTotal.WithLabelValues(outcomeFailure).Inc()
		s.logger.Warn("refresh failed",
			zap.String("kind", kindLabel(err)),
			zap.Error(err),
		)
		s.notify()
		return
	}

	s.replaceItems(items)
	s.errMsg = ""
	s.loaded = true
	count := len(s.items)
	s.mu.Unlock()

	refreshesTotal.WithLabelValues(outcomeSuccess).Inc()
	itemsGauge.Set(float64(count))
	s.logger.Info("refresh completed", zap.Int("items", count))
	s.notify()
}

// replaceItems swaps in a new item list. Caller must hold mu.
func (s *ItemStore) replaceItems(items []model.Item) {
	s.items = slices.Clone(items)
	if s.items == nil {
		s.items = []model.Item{}
	}

	s.index = make(map[int]int, len(s.items))
	for i, item := range s.items {
		if _, exists := s.index[item.ID]; !exists {
			s.index[item.ID] = i
		}
	}
}

// SetSearchText updates the text used by FilteredItems.
func (s *ItemStore) SetSearchText(text string) {
	s.mu.Lock()
	s.searchText = text
	s.mu.Unlock()

	s.notify()
}

// SearchText returns the current search text.
func (s *ItemStore) SearchText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.searchText
}

// ToggleFavorite adds id to the favorite set if absent and removes it otherwise.
// It reports whether id is a favorite after the call.
func (s *ItemStore) ToggleFavorite(id int) bool {
	s.mu.Lock()
	_, exists := s.favorites[id]
	if exists {
		delete(s.favorites, id)
	} else {
		s.favorites[id] = struct{}{}
	}
	count := len(s.favorites)
	s.mu.Unlock()

	favoritesGauge.Set(float64(count))
	s.notify()

	return !exists
}

// IsFavorite reports whether id is in the favorite set.
func (s *ItemStore) IsFavorite(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.favorites[id]
	return ok
}

// Items returns the fetched items in their original order.
func (s *ItemStore) Items() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.items)
}

// Item returns the item with the given id from the current item list.
func (s *ItemStore) Item(id int) (model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return model.Item{}, ErrNotFound
	}

	return s.items[i], nil
}

// IsLoading reports whether a fetch is in flight.
func (s *ItemStore) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.inFlight > 0
}

// Err returns the message of the last failed fetch, or "" when there is none.
func (s *ItemStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.errMsg
}

// Loaded reports whether at least one fetch has succeeded.
func (s *ItemStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loaded
}

// favoriteIDs returns the favorite set in ascending order. Caller must hold mu.
func (s *ItemStore) favoriteIDs() []int {
	ids := make([]int, 0, len(s.favorites))
	ids = slices.AppendSeq(ids, maps.Keys(s.favorites))
	slices.Sort(ids)
	return ids
}

// State returns a consistent snapshot of every store field.
func (s *ItemStore) State() model.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.State{
		Items:       slices.Clone(s.items),
		FavoriteIDs: s.favoriteIDs(),
		SearchText:  s.searchText,
		IsLoading:   s.inFlight > 0,
		Error:       s.errMsg,
	}
}
