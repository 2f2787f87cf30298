package store

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/vyrodovalexey/itemfeed/internal/model"
)

// FilteredItems returns the items whose title contains the search text,
// ignoring case. An empty search text yields all items in their original order.
func (s *ItemStore) FilteredItems() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return filterByTitle(s.items, s.searchText)
}

// FavoriteItems returns the favorite items in item list order.
func (s *ItemStore) FavoriteItems() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	favorites := make([]model.Item, 0, len(s.favorites))
	for _, item := range s.items {
		if _, ok := s.favorites[item.ID]; ok {
			favorites = append(favorites, item)
		}
	}

	return favorites
}

func filterByTitle(items []model.Item, query string) []model.Item {
	if query == "" {
		return append(make([]model.Item, 0, len(items)), items...)
	}

	needle := fold(query)
	filtered := make([]model.Item, 0, len(items))
	for _, item := range items {
		if matchesTitle(item.Title, needle) {
			filtered = append(filtered, item)
		}
	}

	return filtered
}

// matchesTitle reports whether title contains needle, which must already be
// folded.
func matchesTitle(title, needle string) bool {
	return strings.Contains(fold(title), needle)
}

// fold maps s to a form where case and composition differences compare equal.
// A Caser is stateful, so a new one is made per call.
func fold(s string) string {
	return norm.NFC.String(cases.Fold().String(s))
}
