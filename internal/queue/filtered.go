package queue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/store"
)

// filteredDueStart keeps borrowed cards ahead of any home-deck position.
const filteredDueStart = -100000

// BuildFiltered empties a filtered deck and fills it again from its search
// terms. It returns the number of cards moved into the deck.
func BuildFiltered(ctx context.Context, repos store.Repositories, deckID domain.DeckID, timing clock.Timing, r *rand.Rand) (int, error) {
	deck, err := repos.Decks().Get(ctx, deckID)
	if err != nil {
		return 0, fmt.Errorf("failed to load filtered deck: %w", err)
	}
	if !deck.IsFiltered() {
		return 0, fmt.Errorf("%w: deck %s is not filtered", domain.ErrInvalidInput, deck.Name)
	}
	if _, err := EmptyFiltered(ctx, repos, deckID, timing.Now); err != nil {
		return 0, err
	}

	moved := 0
	for _, term := range deck.Filtered.Terms {
		if term.Limit < 1 {
			return moved, fmt.Errorf("%w: search %q has limit %d", domain.ErrInvalidInput, term.Search, term.Limit)
		}
		filter, err := domain.ParseFilter(term.Search)
		if err != nil {
			return moved, err
		}
		q := store.SearchQuery{
			Filter: filter,
			Order:  term.Order,
			Limit:  term.Limit,
			Now:    timing.Now,
			Today:  timing.Today,
		}
		if term.Order == domain.OrderRandom {
			q.Limit = 0
		}
		cards, err := repos.Cards().Search(ctx, q)
		if err != nil {
			return moved, fmt.Errorf("failed to search cards for deck %s: %w", deck.Name, err)
		}
		if term.Order == domain.OrderRandom {
			r.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
			if len(cards) > term.Limit {
				cards = cards[:term.Limit]
			}
		}

		for _, c := range cards {
			c.Filtered = &domain.FilteredContext{OriginalDeck: c.DeckID, OriginalDue: c.Due}
			c.DeckID = deck.ID
			c.Due = domain.PositionDue(int64(filteredDueStart + moved))
			if !deck.Filtered.Reschedule {
				c.Queue = domain.QueuePreview
			}
			c.Touch(timing.Now)
			if err := repos.Cards().Update(ctx, c); err != nil {
				return moved, fmt.Errorf("failed to move card %d into deck %s: %w", c.ID, deck.Name, err)
			}
			moved++
		}
	}
	return moved, nil
}

// EmptyFiltered sends every card of a filtered deck back to its home deck.
// It returns the number of cards returned.
func EmptyFiltered(ctx context.Context, repos store.Repositories, deckID domain.DeckID, now time.Time) (int, error) {
	cards, err := repos.Cards().InDeck(ctx, deckID)
	if err != nil {
		return 0, fmt.Errorf("failed to list cards of filtered deck: %w", err)
	}
	n := 0
	for _, c := range cards {
		if c.Filtered == nil {
			continue
		}
		c.ReturnHome()
		c.Touch(now)
		if err := repos.Cards().Update(ctx, c); err != nil {
			return n, fmt.Errorf("failed to return card %d home: %w", c.ID, err)
		}
		n++
	}
	return n, nil
}
