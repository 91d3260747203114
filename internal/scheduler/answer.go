package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/queue"
	"github.com/conorfennell/knolsched/internal/srs"
	"github.com/conorfennell/knolsched/internal/store"
)

// Answer records ease for a card handed out by NextCard. The read, the
// schedule update, sibling burying, the review log and the daily counters
// are written in one transaction.
func (s *Scheduler) Answer(ctx context.Context, id domain.CardID, ease domain.Ease, timeTaken time.Duration) error {
	if !ease.IsValid() {
		return fmt.Errorf("%w: ease %d", domain.ErrInvalidInput, int(ease))
	}
	mod, ok := s.inFlight[id]
	if !ok {
		return fmt.Errorf("%w: card %d was not handed out", domain.ErrStaleCard, id)
	}

	timing := s.Timing()
	var (
		res      srs.Result
		siblings []domain.CardID
	)
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		card, err := tx.Cards().Get(ctx, id)
		if err != nil {
			return err
		}
		if card.Mod != mod {
			return fmt.Errorf("%w: card %d changed since it was handed out", domain.ErrStaleCard, id)
		}

		conf, err := queue.ResolveConfig(ctx, tx.Configs(), card.HomeDeck(), s.logger)
		if err != nil {
			return err
		}
		if err := conf.Validate(); err != nil {
			return err
		}
		var filtered *domain.FilteredDeck
		if card.Filtered != nil {
			deck, err := tx.Decks().Get(ctx, card.DeckID)
			if err != nil {
				return err
			}
			filtered = deck.Filtered
		}

		res, err = srs.Answer(card, conf, ease, srs.Context{
			Timing:    timing,
			Rand:      s.rand,
			Filtered:  filtered,
			FuzzBands: s.opts.FuzzBands,
			TimeTaken: timeTaken,
		})
		if err != nil {
			return err
		}

		siblings, err = s.burySiblings(ctx, tx, card, conf, timing)
		if err != nil {
			return err
		}

		res.Card.Touch(timing.Now)
		if err := tx.Cards().Update(ctx, res.Card); err != nil {
			return err
		}
		if err := tx.ReviewLog().Append(ctx, res.Log); err != nil {
			return err
		}
		return s.countStudied(ctx, tx, card, timing.Today)
	})
	if errors.Is(err, domain.ErrStaleCard) {
		delete(s.inFlight, id)
		s.settle()
	}
	if errors.Is(err, domain.ErrInvalidConfig) {
		s.logger.Error("Cannot schedule card with invalid deck config", "card", id, "error", err)
	}
	if err != nil {
		return err
	}

	delete(s.inFlight, id)
	s.settle()
	s.reps++
	s.builder.Remove(siblings...)
	if s.builder.Built() {
		s.builder.Requeue(res.Card)
	}

	s.logger.Debug("Card answered",
		"card", id,
		"ease", ease,
		"queue", res.Card.Queue,
		"due", res.Card.Due,
		"interval", res.Card.Interval,
	)
	if res.Leech {
		s.logger.Info("Card became a leech", "card", id, "lapses", res.Card.Lapses, "suspended", res.Card.Queue == domain.QueueSuspended)
		if s.onLeech != nil {
			s.onLeech(res.Card)
		}
	}
	return nil
}

// burySiblings buries the other cards of the answered card's note that
// would otherwise be shown today, as the config asks. It returns every
// sibling that has to leave the in-memory queues, buried or not.
func (s *Scheduler) burySiblings(ctx context.Context, tx store.Repositories, card domain.Card, conf domain.DeckConfig, timing clock.Timing) ([]domain.CardID, error) {
	sibs, err := tx.Cards().Siblings(ctx, card.NoteID, card.ID)
	if err != nil {
		return nil, err
	}
	var out []domain.CardID
	for _, sib := range sibs {
		var bury bool
		switch {
		case sib.Queue == domain.QueueNew:
			bury = conf.BuryNew
		case sib.Queue == domain.QueueReview && sib.Due.Value <= timing.Today:
			bury = conf.BuryReviews
		default:
			continue
		}
		out = append(out, sib.ID)
		if !bury {
			continue
		}
		sib.Queue = domain.QueueSchedBuried
		sib.Touch(timing.Now)
		if err := tx.Cards().Update(ctx, sib); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// countStudied charges a new or review answer to the deck it was studied in
// and every ancestor.
func (s *Scheduler) countStudied(ctx context.Context, tx store.Repositories, card domain.Card, today int64) error {
	var delta domain.DailyCounts
	switch card.Queue {
	case domain.QueueNew:
		delta.New = 1
	case domain.QueueReview:
		delta.Review = 1
	default:
		return nil
	}

	decks, err := tx.Decks().All(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]domain.DeckID, len(decks))
	var studied domain.Deck
	for _, d := range decks {
		byName[d.Name] = d.ID
		if d.ID == card.DeckID {
			studied = d
		}
	}
	if studied.ID == 0 {
		return fmt.Errorf("%w: deck %d of card %d", domain.ErrNotFound, card.DeckID, card.ID)
	}

	ids := []domain.DeckID{studied.ID}
	for _, name := range studied.ParentNames() {
		if id, ok := byName[name]; ok {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if err := tx.Decks().AddStudied(ctx, id, today, delta); err != nil {
			return err
		}
	}
	return nil
}
