package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ease is the answer button pressed for a card.
type Ease int

const (
	Again Ease = 1
	Hard  Ease = 2
	Good  Ease = 3
	Easy  Ease = 4
)

var easeNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// IsValid reports whether e is one of the four answer buttons.
func (e Ease) IsValid() bool {
	return e >= Again && e <= Easy
}

func (e Ease) String() string {
	if e.IsValid() {
		return easeNames[e]
	}
	return fmt.Sprintf("Ease(%d)", int(e))
}

// ReviewKind classifies a review log entry.
type ReviewKind int

const (
	KindLearn ReviewKind = iota
	KindReview
	KindRelearn
	KindCram
	KindManual
)

var kindNames = [...]string{
	KindLearn:   "learn",
	KindReview:  "review",
	KindRelearn: "relearn",
	KindCram:    "cram",
	KindManual:  "manual",
}

func (k ReviewKind) String() string {
	if k >= KindLearn && k <= KindManual {
		return kindNames[k]
	}
	return fmt.Sprintf("ReviewKind(%d)", int(k))
}

// Day is the length of one scheduling day.
const Day = 24 * time.Hour

// ReviewLogEntry is an immutable record of one answer.
// Intervals are durations: learning delays keep their seconds, day
// intervals are whole multiples of Day.
type ReviewLogEntry struct {
	ID           uuid.UUID
	CardID       CardID
	ReviewedAt   time.Time
	Ease         Ease // zero for manual entries
	Interval     time.Duration
	LastInterval time.Duration
	EaseFactor   int
	TimeTaken    time.Duration
	Kind         ReviewKind
}

// NewReviewLogEntry stamps a fresh entry with a random ID.
func NewReviewLogEntry(card CardID, at time.Time, kind ReviewKind) ReviewLogEntry {
	return ReviewLogEntry{
		ID:         uuid.New(),
		CardID:     card,
		ReviewedAt: at,
		Kind:       kind,
	}
}

// Days converts a whole number of days into a log interval.
func Days(n int) time.Duration {
	return time.Duration(n) * Day
}
