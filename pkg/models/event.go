package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Importance levels as published by the calendar service.
const (
	ImportanceLow    = 1
	ImportanceMedium = 2
	ImportanceHigh   = 3
)

// NotAvailable is the placeholder the service uses for missing figures.
const NotAvailable = "N/A"

// RawEvent is one calendar record as received from the service.
// Every attribute is optional; a nil pointer means the field was absent
// (or null) in the payload. Type coercion happens at decode time, defaulting
// happens in the normalizer.
type RawEvent struct {
	ID          *string `json:"id,omitempty"`
	Date        *string `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
	Country     *string `json:"country,omitempty"`
	Name        *string `json:"name,omitempty"`
	Forecast    *string `json:"forecast,omitempty"`
	Previous    *string `json:"previous,omitempty"`
	Actual      *string `json:"actual,omitempty"`
	Importance  *int    `json:"importance,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	AIAnalysis  *string `json:"ai_analysis,omitempty"`
	Description *string `json:"description,omitempty"`
	Source      *string `json:"source,omitempty"`
}

// UnmarshalJSON decodes a loosely typed event object. Numbers and booleans
// in text fields are kept as their literal text, ids may be numeric, and
// importance may be an integer, a numeric string or a level name.
// Anything that is not a JSON object decodes to an empty RawEvent.
func (r *RawEvent) UnmarshalJSON(data []byte) error {
	*r = RawEvent{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil
	}

	r.ID = flexString(fields["id"])
	r.Date = flexString(fields["date"])
	r.Time = flexString(fields["time"])
	r.Country = flexString(fields["country"])
	r.Name = flexString(fields["name"])
	r.Forecast = flexString(fields["forecast"])
	r.Previous = flexString(fields["previous"])
	r.Actual = flexString(fields["actual"])
	r.Importance = flexImportance(fields["importance"])
	r.Currency = flexString(fields["currency"])
	r.AIAnalysis = flexString(fields["ai_analysis"])
	r.Description = flexString(fields["description"])
	r.Source = flexString(fields["source"])
	return nil
}

// flexString renders a scalar JSON value as text. Null, objects and arrays
// are treated as absent.
func flexString(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		return &s
	case 't', 'f':
		s := string(raw)
		return &s
	case 'n', '{', '[':
		return nil
	default:
		// JSON number, kept verbatim ("1.50" stays "1.50").
		s := string(raw)
		return &s
	}
}

func flexImportance(raw json.RawMessage) *int {
	s := flexString(raw)
	if s == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*s))
	switch v {
	case "high":
		return intPtr(ImportanceHigh)
	case "medium":
		return intPtr(ImportanceMedium)
	case "low":
		return intPtr(ImportanceLow)
	}
	if n, err := strconv.Atoi(v); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		n := int(f)
		return &n
	}
	return nil
}

func intPtr(n int) *int { return &n }

// StringPtr is a convenience for building RawEvents in code and tests.
func StringPtr(s string) *string { return &s }

// NormalizedEvent is a complete, display-ready calendar event.
// It is produced only by the normalizer and treated as an immutable value;
// IsExpanded is UI state and is toggled on copies.
type NormalizedEvent struct {
	ID          string  `json:"id"`
	Date        string  `json:"date,omitempty"`
	Time        string  `json:"time"`
	Country     string  `json:"country"`
	Name        string  `json:"name"`
	Forecast    string  `json:"forecast"`
	Previous    string  `json:"previous"`
	Actual      *string `json:"actual"`
	Importance  int     `json:"importance"`
	Currency    string  `json:"currency"`
	AIAnalysis  string  `json:"ai_analysis"`
	Description string  `json:"description,omitempty"`
	Source      string  `json:"source,omitempty"`

	DisplayTime     string `json:"displayTime"`
	Flag            string `json:"flag"`
	ImportanceIcon  string `json:"importanceIcon"`
	ImportanceText  string `json:"importanceText"`
	ImportanceClass string `json:"importanceClass"`
	HasActual       bool   `json:"hasActual"`
	ActualClass     string `json:"actualClass"`
	IsExpanded      bool   `json:"isExpanded"`
}

// FilterAll disables a filter dimension.
const FilterAll = "all"

// Importance filter values.
const (
	FilterHigh   = "high"
	FilterMedium = "medium"
	FilterLow    = "low"
)

// FilterState is the user's filter selection. Each dimension is either
// FilterAll or a value that must match exactly.
type FilterState struct {
	Importance string `json:"importance"` // all, high, medium, low
	Currency   string `json:"currency"`   // all, USD, EUR, CNY...
	Country    string `json:"country"`    // all, US, CN, EU...
}

// DefaultFilters returns a FilterState with every dimension disabled.
func DefaultFilters() FilterState {
	return FilterState{Importance: FilterAll, Currency: FilterAll, Country: FilterAll}
}

// WithDefaults fills empty dimensions with FilterAll.
func (f FilterState) WithDefaults() FilterState {
	if f.Importance == "" {
		f.Importance = FilterAll
	}
	if f.Currency == "" {
		f.Currency = FilterAll
	}
	if f.Country == "" {
		f.Country = FilterAll
	}
	return f
}

// IsDefault reports whether no dimension is filtered.
func (f FilterState) IsDefault() bool {
	return f.WithDefaults() == DefaultFilters()
}

// ImportanceLevel maps an importance filter value to the numeric level it
// selects. ok is false for FilterAll and unknown values.
func ImportanceLevel(filter string) (level int, ok bool) {
	switch filter {
	case FilterHigh:
		return ImportanceHigh, true
	case FilterMedium:
		return ImportanceMedium, true
	case FilterLow:
		return ImportanceLow, true
	}
	return 0, false
}

// SortKey selects the ordering of the event list.
type SortKey string

const (
	SortByTime       SortKey = "time"
	SortByImportance SortKey = "importance"
	SortByCountry    SortKey = "country"
)

// ParseSortKey validates a sort key; the empty string yields SortByTime.
func ParseSortKey(s string) (SortKey, bool) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortByTime:
		return SortByTime, true
	case SortByImportance:
		return SortByImportance, true
	case SortByCountry:
		return SortByCountry, true
	}
	return SortByTime, false
}

// CacheEntry is the last good (events, summary) snapshot.
type CacheEntry struct {
	Events    []NormalizedEvent `json:"events"`
	Summary   string            `json:"summary"`
	Timestamp time.Time         `json:"timestamp"`
}

// IsEmpty reports whether the snapshot has nothing to show.
func (c CacheEntry) IsEmpty() bool {
	return len(c.Events) == 0 && c.Summary == ""
}
