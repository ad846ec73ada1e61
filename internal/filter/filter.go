// Package filter applies the user's filter selection and sort order to a
// normalized event list.
package filter

import (
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/seenimoa/macrocal/internal/normalize"
	"github.com/seenimoa/macrocal/pkg/models"
)

// Apply returns the events that match every non-"all" dimension of
// filters, ordered by key. The input slice is never modified.
func Apply(events []models.NormalizedEvent, filters models.FilterState, key models.SortKey) []models.NormalizedEvent {
	out := Filter(events, filters)
	Sort(out, key)
	return out
}

// Filter returns a new slice holding the matching events in input order.
func Filter(events []models.NormalizedEvent, filters models.FilterState) []models.NormalizedEvent {
	filters = filters.WithDefaults()
	out := make([]models.NormalizedEvent, 0, len(events))
	for _, e := range events {
		if Match(e, filters) {
			out = append(out, e)
		}
	}
	return out
}

// Match reports whether e passes every active filter dimension.
func Match(e models.NormalizedEvent, filters models.FilterState) bool {
	filters = filters.WithDefaults()
	if filters.Importance != models.FilterAll {
		level, ok := models.ImportanceLevel(filters.Importance)
		if ok && e.Importance != level {
			return false
		}
	}
	if filters.Currency != models.FilterAll && e.Currency != filters.Currency {
		return false
	}
	if filters.Country != models.FilterAll && e.Country != filters.Country {
		return false
	}
	return true
}

// Sort orders events in place by key. The sort is stable.
func Sort(events []models.NormalizedEvent, key models.SortKey) {
	switch key {
	case models.SortByImportance:
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Importance > events[j].Importance
		})
	case models.SortByCountry:
		sortByCountry(events)
	default:
		sortByTime(events)
	}
}

// sortByTime orders by (hour, minute) of the display time. Entries without
// a parsable time compare equal to each other and follow all timed ones.
func sortByTime(events []models.NormalizedEvent) {
	type clock struct {
		minutes int
		ok      bool
	}
	keys := make(map[string]clock, len(events))
	for _, e := range events {
		if _, seen := keys[e.DisplayTime]; seen {
			continue
		}
		h, m, ok := normalize.ParseClock(e.DisplayTime)
		keys[e.DisplayTime] = clock{minutes: h*60 + m, ok: ok}
	}
	sort.SliceStable(events, func(i, j int) bool {
		a, b := keys[events[i].DisplayTime], keys[events[j].DisplayTime]
		switch {
		case a.ok && b.ok:
			return a.minutes < b.minutes
		default:
			return a.ok && !b.ok
		}
	})
}

// DefaultLocale orders country names when no locale is configured.
var DefaultLocale = language.Chinese

var (
	collatorMu sync.Mutex
	collator   = collate.New(DefaultLocale)
)

// SetLocale switches the locale used to order country names.
func SetLocale(tag language.Tag) {
	collatorMu.Lock()
	collator = collate.New(tag)
	collatorMu.Unlock()
}

// sortByCountry orders by locale-aware comparison of the country field.
// A collator is not safe for concurrent use.
func sortByCountry(events []models.NormalizedEvent) {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	sort.SliceStable(events, func(i, j int) bool {
		return collator.CompareString(events[i].Country, events[j].Country) < 0
	})
}
