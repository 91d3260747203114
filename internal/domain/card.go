package domain

import (
	"fmt"
	"time"
)

// CardID identifies a card.
type CardID int64

// LearningProgress tracks where a card is in its (re)learning steps.
type LearningProgress struct {
	Remaining int
	Total     int
}

// Step returns the zero-based index of the current step.
func (p LearningProgress) Step() int {
	return p.Total - p.Remaining
}

// FilteredContext is attached while a card is borrowed by a filtered deck.
type FilteredContext struct {
	OriginalDeck DeckID
	// OriginalDue is cleared once the card is answered in the filtered deck;
	// from then on the scheduled due is the one that counts.
	OriginalDue Due
}

// Card is the scheduling state of one side of a note.
type Card struct {
	ID         CardID
	NoteID     NoteID
	DeckID     DeckID
	Ordinal    int
	Queue      Queue
	Type       CardType
	Due        Due
	Interval   int // days
	EaseFactor int // permille, 2500 = 250%
	Reps       int
	Lapses     int
	Progress   LearningProgress
	Filtered   *FilteredContext
	Mod        int64 // unix milliseconds of the last write
}

// HomeDeck returns the deck the card belongs to outside any filtered deck.
func (c Card) HomeDeck() DeckID {
	if c.Filtered != nil {
		return c.Filtered.OriginalDeck
	}
	return c.DeckID
}

// Touch bumps Mod for a write at now. Mod strictly increases even when the
// clock stands still.
func (c *Card) Touch(now time.Time) {
	ms := now.UnixMilli()
	if ms <= c.Mod {
		ms = c.Mod + 1
	}
	c.Mod = ms
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	out := c
	if c.Filtered != nil {
		f := *c.Filtered
		out.Filtered = &f
	}
	return out
}

// Validate checks the card's internal consistency.
func (c Card) Validate() error {
	switch {
	case !c.Queue.IsValid():
		return fmt.Errorf("%w: card %d has unknown queue %d", ErrInvalidInput, c.ID, int(c.Queue))
	case !c.Type.IsValid():
		return fmt.Errorf("%w: card %d has unknown type %d", ErrInvalidInput, c.ID, int(c.Type))
	case c.Interval < 0:
		return fmt.Errorf("%w: card %d has negative interval %d", ErrInvalidInput, c.ID, c.Interval)
	case c.Progress.Remaining < 0 || c.Progress.Remaining > c.Progress.Total:
		return fmt.Errorf("%w: card %d has progress %d/%d", ErrInvalidInput, c.ID, c.Progress.Remaining, c.Progress.Total)
	case c.Queue == QueueNew && c.Type != TypeNew:
		return fmt.Errorf("%w: card %d is in the new queue with type %s", ErrInvalidInput, c.ID, c.Type)
	case (c.Queue == QueueLearning || c.Queue == QueueDayLearning) && !c.Type.Learning():
		return fmt.Errorf("%w: card %d is in queue %s with type %s", ErrInvalidInput, c.ID, c.Queue, c.Type)
	}
	return nil
}

// RestoredQueue derives the queue a card returns to when it is unburied,
// unsuspended or leaves a filtered deck.
func (c Card) RestoredQueue() Queue {
	switch c.Type {
	case TypeNew:
		return QueueNew
	case TypeReview:
		return QueueReview
	default:
		if c.Due.Kind == DueAt {
			return QueueLearning
		}
		return QueueDayLearning
	}
}

// ReturnHome moves a card out of its filtered deck, restoring the saved due
// if it is still set. Suspended and buried cards keep their queue.
func (c *Card) ReturnHome() {
	if c.Filtered == nil {
		return
	}
	c.DeckID = c.Filtered.OriginalDeck
	if !c.Filtered.OriginalDue.IsZero() {
		c.Due = c.Filtered.OriginalDue
	}
	c.Filtered = nil
	if c.Queue.Active() {
		c.Queue = c.RestoredQueue()
	}
}
