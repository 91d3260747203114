package clock

import (
	"fmt"
	"time"
)

// DefaultRolloverHour is the local hour at which a new scheduling day starts.
const DefaultRolloverHour = 4

const secondsPerDay = 86400

// DayCutoff computes day indexes for a collection. Days roll over at
// RolloverHour in Location rather than at midnight, and day 0 is the day the
// collection was created.
type DayCutoff struct {
	Created      time.Time
	RolloverHour int
	Location     *time.Location
}

// Timing is a snapshot of the clock for one scheduling pass.
type Timing struct {
	Now        time.Time
	Today      int64
	NextCutoff time.Time
}

// NewDayCutoff validates the rollover hour and resolves a nil location to local time.
func NewDayCutoff(created time.Time, rolloverHour int, loc *time.Location) (DayCutoff, error) {
	if rolloverHour < 0 || rolloverHour > 23 {
		return DayCutoff{}, fmt.Errorf("rollover hour %d out of range [0, 23]", rolloverHour)
	}
	if loc == nil {
		loc = time.Local
	}
	return DayCutoff{Created: created, RolloverHour: rolloverHour, Location: loc}, nil
}

func (c DayCutoff) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

// dayNumber counts rollovers since the unix epoch, shifted into local time.
func (c DayCutoff) dayNumber(t time.Time) int64 {
	_, offset := t.In(c.location()).Zone()
	shifted := t.Unix() + int64(offset) - int64(c.RolloverHour)*3600
	return floorDiv(shifted, secondsPerDay)
}

// Today returns the day index of now.
func (c DayCutoff) Today(now time.Time) int64 {
	return c.dayNumber(now) - c.dayNumber(c.Created)
}

// NextCutoff returns the first rollover strictly after now.
func (c DayCutoff) NextCutoff(now time.Time) time.Time {
	local := now.In(c.location())
	next := time.Date(local.Year(), local.Month(), local.Day(), c.RolloverHour, 0, 0, 0, c.location())
	for !next.After(now) {
		next = time.Date(next.Year(), next.Month(), next.Day()+1, c.RolloverHour, 0, 0, 0, c.location())
	}
	return next
}

// Timing snapshots now. Hold the result fixed for a whole queue build so a
// card cannot flip between due and not due mid-pass.
func (c DayCutoff) Timing(now time.Time) Timing {
	return Timing{
		Now:        now,
		Today:      c.Today(now),
		NextCutoff: c.NextCutoff(now),
	}
}

// DaysUntil returns how many rollovers lie between the cutoff and t. A t
// before the cutoff yields 0.
func (t Timing) DaysUntil(at time.Time) int64 {
	if at.Before(t.NextCutoff) {
		return 0
	}
	return int64(at.Sub(t.NextCutoff)/time.Second)/secondsPerDay + 1
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
