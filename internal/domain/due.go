package domain

import (
	"fmt"
	"time"
)

// DueKind tags the unit of a Due value.
type DueKind int

const (
	DueNone     DueKind = iota // No due value.
	DuePosition                // Ordering position (new cards, filtered decks).
	DueDay                     // Day index relative to the collection's first day.
	DueAt                      // Epoch seconds.
)

func (k DueKind) String() string {
	switch k {
	case DueNone:
		return "none"
	case DuePosition:
		return "position"
	case DueDay:
		return "day"
	case DueAt:
		return "at"
	default:
		return fmt.Sprintf("DueKind(%d)", int(k))
	}
}

// Due says when a card is due. Values are only comparable within one kind.
type Due struct {
	Kind  DueKind
	Value int64
}

// PositionDue returns a position due.
func PositionDue(n int64) Due { return Due{Kind: DuePosition, Value: n} }

// DayDue returns a day-index due.
func DayDue(d int64) Due { return Due{Kind: DueDay, Value: d} }

// TimeDue returns a timestamp due, truncated to whole seconds.
func TimeDue(t time.Time) Due { return Due{Kind: DueAt, Value: t.Unix()} }

// IsZero reports whether the due is unset.
func (d Due) IsZero() bool { return d.Kind == DueNone }

// Time returns the timestamp of an At due.
func (d Due) Time() time.Time {
	return time.Unix(d.Value, 0)
}

func (d Due) String() string {
	switch d.Kind {
	case DueNone:
		return "none"
	case DueAt:
		return d.Time().UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%s:%d", d.Kind, d.Value)
	}
}
