package scheduler

import (
	"context"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/queue"
	"github.com/conorfennell/knolsched/internal/rng"
	"github.com/conorfennell/knolsched/internal/srs"
	"github.com/conorfennell/knolsched/internal/store"
)

// updateCards loads each card, applies edit and writes back the cards edit
// reports as changed, all in one transaction. It returns the changed IDs.
func (s *Scheduler) updateCards(ctx context.Context, ids []domain.CardID, edit func(ctx context.Context, tx store.Repositories, c *domain.Card) (bool, error)) ([]domain.CardID, error) {
	now := s.clock.Now()
	var changed []domain.CardID
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		changed = changed[:0]
		for _, id := range ids {
			c, err := tx.Cards().Get(ctx, id)
			if err != nil {
				return err
			}
			ok, err := edit(ctx, tx, &c)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			c.Touch(now)
			if err := tx.Cards().Update(ctx, c); err != nil {
				return err
			}
			changed = append(changed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.builder.Remove(changed...)
	for _, id := range changed {
		delete(s.inFlight, id)
	}
	s.settle()
	return changed, nil
}

// BuryCards hides cards until the next day.
func (s *Scheduler) BuryCards(ctx context.Context, ids ...domain.CardID) error {
	changed, err := s.updateCards(ctx, ids, func(_ context.Context, _ store.Repositories, c *domain.Card) (bool, error) {
		if !c.Queue.Active() {
			return false, nil
		}
		c.Queue = domain.QueueUserBuried
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to bury cards: %w", err)
	}
	s.logger.Info("Buried cards", "count", len(changed))
	return nil
}

// SuspendCards excludes cards from study until they are unsuspended. Cards
// in a filtered deck go back to their home deck first.
func (s *Scheduler) SuspendCards(ctx context.Context, ids ...domain.CardID) error {
	changed, err := s.updateCards(ctx, ids, func(_ context.Context, _ store.Repositories, c *domain.Card) (bool, error) {
		if c.Queue == domain.QueueSuspended {
			return false, nil
		}
		c.ReturnHome()
		c.Queue = domain.QueueSuspended
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to suspend cards: %w", err)
	}
	s.logger.Info("Suspended cards", "count", len(changed))
	return nil
}

// UnsuspendCards puts suspended cards back into the queue their type implies.
func (s *Scheduler) UnsuspendCards(ctx context.Context, ids ...domain.CardID) error {
	changed, err := s.updateCards(ctx, ids, func(_ context.Context, _ store.Repositories, c *domain.Card) (bool, error) {
		if c.Queue != domain.QueueSuspended {
			return false, nil
		}
		c.Queue = c.RestoredQueue()
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to unsuspend cards: %w", err)
	}
	s.Reset()
	s.logger.Info("Unsuspended cards", "count", len(changed))
	return nil
}

// UnburyDeck releases the buried cards of a deck and its children.
func (s *Scheduler) UnburyDeck(ctx context.Context, deck domain.DeckID) error {
	ids, err := s.cardsUnder(ctx, deck)
	if err != nil {
		return err
	}
	changed, err := s.updateCards(ctx, ids, func(_ context.Context, _ store.Repositories, c *domain.Card) (bool, error) {
		if !c.Queue.Buried() {
			return false, nil
		}
		c.Queue = c.RestoredQueue()
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to unbury deck: %w", err)
	}
	s.Reset()
	s.logger.Info("Unburied deck", "deck", deck, "count", len(changed))
	return nil
}

func (s *Scheduler) cardsUnder(ctx context.Context, id domain.DeckID) ([]domain.CardID, error) {
	root, err := s.store.Decks().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load deck: %w", err)
	}
	decks, err := s.store.Decks().All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	var ids []domain.CardID
	for _, d := range decks {
		if d.ID != root.ID && !d.IsDescendantOf(root.Name) {
			continue
		}
		cards, err := s.store.Cards().InDeck(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list cards of deck %s: %w", d.Name, err)
		}
		for _, c := range cards {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// Forget turns cards back into new cards placed at the end of the new
// queue. Reps and lapses are kept.
func (s *Scheduler) Forget(ctx context.Context, ids ...domain.CardID) error {
	now := s.clock.Now()
	var next int64
	changed, err := s.updateCards(ctx, ids, func(ctx context.Context, tx store.Repositories, c *domain.Card) (bool, error) {
		if next == 0 {
			maxPos, err := tx.Cards().MaxNewPosition(ctx)
			if err != nil {
				return false, err
			}
			next = maxPos + 1
		}
		c.ReturnHome()
		conf, err := queue.ResolveConfig(ctx, tx.Configs(), c.DeckID, s.logger)
		if err != nil {
			return false, err
		}
		last := c.Interval
		c.Type = domain.TypeNew
		c.Queue = domain.QueueNew
		c.Due = domain.PositionDue(next)
		c.Interval = 0
		c.EaseFactor = conf.StartingEase
		c.Progress = domain.LearningProgress{}
		next++

		entry := domain.NewReviewLogEntry(c.ID, now, domain.KindManual)
		entry.LastInterval = domain.Days(last)
		entry.EaseFactor = c.EaseFactor
		return true, tx.ReviewLog().Append(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("failed to forget cards: %w", err)
	}
	s.Reset()
	s.logger.Info("Forgot cards", "count", len(changed))
	return nil
}

// Reschedule makes cards review cards due on a random day between minDays
// and maxDays from today.
func (s *Scheduler) Reschedule(ctx context.Context, minDays, maxDays int, ids ...domain.CardID) error {
	if minDays < 0 || maxDays < minDays {
		return fmt.Errorf("%w: day range [%d, %d]", domain.ErrInvalidInput, minDays, maxDays)
	}
	timing := s.Timing()
	changed, err := s.updateCards(ctx, ids, func(ctx context.Context, tx store.Repositories, c *domain.Card) (bool, error) {
		c.ReturnHome()
		conf, err := queue.ResolveConfig(ctx, tx.Configs(), c.DeckID, s.logger)
		if err != nil {
			return false, err
		}
		days := rng.Between(s.rand, minDays, maxDays)
		last := c.Interval
		c.Type = domain.TypeReview
		c.Queue = domain.QueueReview
		c.Due = domain.DayDue(timing.Today + int64(days))
		c.Interval = max(1, days)
		if c.EaseFactor < srs.MinEase {
			c.EaseFactor = conf.StartingEase
		}
		c.Progress = domain.LearningProgress{}

		entry := domain.NewReviewLogEntry(c.ID, timing.Now, domain.KindManual)
		entry.Interval = domain.Days(c.Interval)
		entry.LastInterval = domain.Days(last)
		entry.EaseFactor = c.EaseFactor
		return true, tx.ReviewLog().Append(ctx, entry)
	})
	if err != nil {
		return fmt.Errorf("failed to reschedule cards: %w", err)
	}
	s.Reset()
	s.logger.Info("Rescheduled cards", "count", len(changed), "min_days", minDays, "max_days", maxDays)
	return nil
}

// RebuildFiltered empties a filtered deck and fills it again from its
// search terms. It returns the number of cards in the deck.
func (s *Scheduler) RebuildFiltered(ctx context.Context, deck domain.DeckID) (int, error) {
	timing := s.Timing()
	var n int
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		n, err = queue.BuildFiltered(ctx, tx, deck, timing, s.rand)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to rebuild filtered deck: %w", err)
	}
	s.Reset()
	s.logger.Info("Rebuilt filtered deck", "deck", deck, "cards", n)
	return n, nil
}

// EmptyFiltered returns every card of a filtered deck to its home deck.
func (s *Scheduler) EmptyFiltered(ctx context.Context, deck domain.DeckID) (int, error) {
	now := s.clock.Now()
	var n int
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		n, err = queue.EmptyFiltered(ctx, tx, deck, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to empty filtered deck: %w", err)
	}
	s.Reset()
	s.logger.Info("Emptied filtered deck", "deck", deck, "cards", n)
	return n, nil
}

// ReviewHistory returns the answers recorded for a card, oldest first.
func (s *Scheduler) ReviewHistory(ctx context.Context, id domain.CardID) ([]domain.ReviewLogEntry, error) {
	return s.store.ReviewLog().ForCard(ctx, id)
}
