package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeckID identifies a deck.
type DeckID int64

// ConfigID identifies a deck config preset.
type ConfigID int64

// DefaultConfigID is the preset every home deck falls back to.
const DefaultConfigID ConfigID = 1

// DeckSeparator splits deck names into their hierarchy.
const DeckSeparator = "::"

// Deck is a home deck or, when Filtered is set, a filtered deck.
type Deck struct {
	ID       DeckID
	Name     string
	ConfigID ConfigID
	Filtered *FilteredDeck
}

// IsFiltered reports whether the deck borrows cards from home decks.
func (d Deck) IsFiltered() bool {
	return d.Filtered != nil
}

// ParentNames returns the names of all ancestors, closest last.
func (d Deck) ParentNames() []string {
	parts := strings.Split(d.Name, DeckSeparator)
	names := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		names = append(names, strings.Join(parts[:i], DeckSeparator))
	}
	return names
}

// IsDescendantOf reports whether d sits below the deck named parent.
func (d Deck) IsDescendantOf(parent string) bool {
	return strings.HasPrefix(d.Name, parent+DeckSeparator)
}

// FilterOrder is the ordering rule for one filtered deck search term.
type FilterOrder int

const (
	OrderOldestSeen FilterOrder = iota
	OrderRandom
	OrderIntervalAsc
	OrderIntervalDesc
	OrderMostLapses
	OrderAdded
	OrderAddedDesc
	OrderDue
	OrderDuePriority
)

var filterOrderNames = [...]string{
	OrderOldestSeen:   "oldest_seen",
	OrderRandom:       "random",
	OrderIntervalAsc:  "interval_asc",
	OrderIntervalDesc: "interval_desc",
	OrderMostLapses:   "most_lapses",
	OrderAdded:        "added",
	OrderAddedDesc:    "added_desc",
	OrderDue:          "due",
	OrderDuePriority:  "due_priority",
}

func (o FilterOrder) String() string {
	if o >= 0 && int(o) < len(filterOrderNames) {
		return filterOrderNames[o]
	}
	return fmt.Sprintf("FilterOrder(%d)", int(o))
}

// ParseFilterOrder maps a name such as "random" to its FilterOrder.
func ParseFilterOrder(s string) (FilterOrder, error) {
	for i, name := range filterOrderNames {
		if name == s {
			return FilterOrder(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown filter order %q", ErrInvalidInput, s)
}

// FilterTerm selects up to Limit cards matching Search, in Order.
type FilterTerm struct {
	Search string      `json:"search"`
	Limit  int         `json:"limit"`
	Order  FilterOrder `json:"order"`
}

// FilteredDeck holds the options of a filtered deck.
type FilteredDeck struct {
	Terms []FilterTerm `json:"terms"`
	// Reschedule controls whether answers in the deck affect scheduling.
	// When false the deck only previews cards.
	Reschedule   bool          `json:"reschedule"`
	PreviewDelay time.Duration `json:"preview_delay"`
}

// DailyCounts are the cards studied in a deck on one day.
type DailyCounts struct {
	New    int
	Review int
}
