// Package queue assembles the day's study queues from the card store. Queues
// are filled lazily in small batches and honour the daily limits of every
// deck and its ancestors.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/rng"
	"github.com/conorfennell/knolsched/internal/store"
)

// NewSpread decides how new cards are mixed with reviews.
type NewSpread string

const (
	SpreadDistribute NewSpread = "distribute"
	SpreadLast       NewSpread = "last"
	SpreadFirst      NewSpread = "first"
)

// Options tune the builder. Zero values fall back to the defaults.
type Options struct {
	// QueueLimit is the batch size of one refill.
	QueueLimit int
	// ReportLimit caps counts and the size of filtered deck queues.
	ReportLimit int
	NewSpread   NewSpread
}

// DefaultOptions returns the standard batch sizes.
func DefaultOptions() Options {
	return Options{QueueLimit: 50, ReportLimit: 1000, NewSpread: SpreadDistribute}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.QueueLimit <= 0 {
		o.QueueLimit = d.QueueLimit
	}
	if o.ReportLimit <= 0 {
		o.ReportLimit = d.ReportLimit
	}
	if o.NewSpread == "" {
		o.NewSpread = d.NewSpread
	}
	return o
}

// Counts are the cards left to study, as shown to the user.
type Counts struct {
	New      int `json:"new"`
	Learning int `json:"learning"`
	Review   int `json:"review"`
}

// deckState is an active deck with what is left of its limits.
type deckState struct {
	deck       domain.Deck
	conf       domain.DeckConfig
	newLeft    int
	reviewLeft int
}

// Builder holds the in-memory queues of one study session.
type Builder struct {
	repos  store.Repositories
	rand   *rand.Rand
	logger *slog.Logger
	opts   Options

	built    bool
	timing   clock.Timing
	selected domain.Deck
	decks    []*deckState
	byID     map[domain.DeckID]*deckState
	// confs caches configs of decks outside the active set.
	confs map[domain.DeckID]domain.DeckConfig

	newCount    int
	reviewCount int
	dayCount    int
	newModulus  int

	newQueue    []domain.Card
	newCursor   int
	reviewQueue []domain.Card
	dayQueue    []domain.Card
	dayCursor   int
	dayRand     *rand.Rand
	learning    []domain.Card

	// skip holds cards handed out or removed since the last rebuild so a
	// refill does not return them again.
	skip map[domain.CardID]struct{}
}

// NewBuilder creates a builder reading from repos.
func NewBuilder(repos store.Repositories, r *rand.Rand, logger *slog.Logger, opts Options) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{repos: repos, rand: r, logger: logger, opts: opts.withDefaults()}
}

// Built reports whether Rebuild has run since the builder was created or invalidated.
func (b *Builder) Built() bool { return b.built }

// Invalidate forces the next caller to rebuild.
func (b *Builder) Invalidate() { b.built = false }

// Timing returns the snapshot the queues were built with.
func (b *Builder) Timing() clock.Timing { return b.timing }

// Selected returns the deck the queues were built for.
func (b *Builder) Selected() domain.Deck { return b.selected }

// Rebuild discards the queues and recomputes counts for the selected deck
// and its descendants. A zero selected ID studies the whole collection.
// timing is held fixed until the next rebuild.
func (b *Builder) Rebuild(ctx context.Context, timing clock.Timing, selected domain.DeckID) error {
	var sel domain.Deck
	if selected != 0 {
		var err error
		sel, err = b.repos.Decks().Get(ctx, selected)
		if err != nil {
			return fmt.Errorf("failed to load selected deck: %w", err)
		}
	}
	all, err := b.repos.Decks().All(ctx)
	if err != nil {
		return fmt.Errorf("failed to list decks: %w", err)
	}

	b.timing = timing
	b.selected = sel
	b.decks = nil
	b.byID = make(map[domain.DeckID]*deckState)
	b.confs = make(map[domain.DeckID]domain.DeckConfig)
	b.newQueue, b.reviewQueue, b.dayQueue, b.learning = nil, nil, nil, nil
	b.newCursor, b.dayCursor = 0, 0
	b.dayRand = rng.ForDay(timing.Today)
	b.skip = make(map[domain.CardID]struct{})

	limits, err := b.loadLimits(ctx, sel, all)
	if err != nil {
		return err
	}
	for _, d := range all {
		if !inScope(sel, d) {
			continue
		}
		st, ok := limits[d.ID]
		if !ok {
			continue
		}
		b.decks = append(b.decks, st)
		b.byID[d.ID] = st
	}

	if err := b.walkingCount(ctx, limits, domain.QueueNew); err != nil {
		return err
	}
	if err := b.walkingCount(ctx, limits, domain.QueueReview); err != nil {
		return err
	}
	if err := b.loadLearning(ctx); err != nil {
		return err
	}
	b.updateNewModulus()
	b.built = true

	b.logger.Debug("Queues rebuilt",
		"deck", sel.Name,
		"today", timing.Today,
		"new", b.newCount,
		"review", b.reviewCount,
		"learning", len(b.learning),
		"day_learning", b.dayCount,
	)
	return nil
}

// loadLimits resolves the config and remaining daily limits of the selected
// deck, its descendants and its ancestors. Decks with an unusable config are
// left out and logged.
func (b *Builder) loadLimits(ctx context.Context, sel domain.Deck, all []domain.Deck) (map[domain.DeckID]*deckState, error) {
	ancestors := make(map[string]bool)
	if sel.ID != 0 {
		for _, name := range sel.ParentNames() {
			ancestors[name] = true
		}
	}

	limits := make(map[domain.DeckID]*deckState)
	for _, d := range all {
		if !inScope(sel, d) && !ancestors[d.Name] {
			continue
		}
		st := &deckState{deck: d}
		if d.IsFiltered() {
			st.newLeft, st.reviewLeft = b.opts.ReportLimit, b.opts.ReportLimit
			limits[d.ID] = st
			continue
		}

		conf, err := ResolveConfig(ctx, b.repos.Configs(), d.ID, b.logger)
		if err == nil {
			err = conf.Validate()
		}
		if errors.Is(err, domain.ErrInvalidConfig) {
			b.logger.Warn("Skipping deck with invalid config", "deck", d.Name, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}

		studied, err := b.repos.Decks().Studied(ctx, d.ID, b.timing.Today)
		if err != nil {
			return nil, fmt.Errorf("failed to load studied counts of deck %s: %w", d.Name, err)
		}
		st.conf = conf
		st.newLeft = max(0, conf.NewPerDay-studied.New)
		st.reviewLeft = max(0, conf.ReviewsPerDay-studied.Review)
		limits[d.ID] = st
	}
	return limits, nil
}

// inScope reports whether d is the selected deck or below it. The zero deck
// selects everything.
func inScope(sel, d domain.Deck) bool {
	return sel.ID == 0 || d.ID == sel.ID || d.IsDescendantOf(sel.Name)
}

// ResolveConfig returns the config of a deck, falling back to the default
// preset when the deck's preset is missing.
func ResolveConfig(ctx context.Context, configs store.ConfigRepository, deck domain.DeckID, logger *slog.Logger) (domain.DeckConfig, error) {
	conf, err := configs.GetForDeck(ctx, deck)
	if errors.Is(err, domain.ErrNotFound) {
		if logger != nil {
			logger.Warn("Deck config missing, using default", "deck_id", deck)
		}
		return domain.DefaultDeckConfig(), nil
	}
	return conf, err
}

// ancestorsOf returns the states of the deck's ancestors known to limits.
func ancestorsOf(d domain.Deck, byName map[string]*deckState) []*deckState {
	var out []*deckState
	for _, name := range d.ParentNames() {
		if st, ok := byName[name]; ok {
			out = append(out, st)
		}
	}
	return out
}

// walkingCount counts the due cards of one queue deck by deck, charging each
// deck's cards against its own limit and those of its ancestors. Each active
// deck's share is kept as its allocation for the session.
func (b *Builder) walkingCount(ctx context.Context, limits map[domain.DeckID]*deckState, queue domain.Queue) error {
	left := make(map[domain.DeckID]int, len(limits))
	byName := make(map[string]*deckState, len(limits))
	for id, st := range limits {
		byName[st.deck.Name] = st
		if queue == domain.QueueNew {
			left[id] = st.newLeft
		} else {
			left[id] = st.reviewLeft
		}
	}

	total := 0
	for _, st := range b.decks {
		parents := ancestorsOf(st.deck, byName)
		lim := left[st.deck.ID]
		for _, p := range parents {
			lim = min(lim, left[p.deck.ID])
		}
		lim = min(lim, b.opts.ReportLimit)

		n := 0
		if lim > 0 {
			q := store.QueueQuery{Limit: lim}
			if queue == domain.QueueReview {
				q.DueBefore = store.DueAtMost(b.timing.Today)
			}
			var err error
			n, err = b.repos.Cards().CountDue(ctx, st.deck.ID, queue, q)
			if err != nil {
				return fmt.Errorf("failed to count %s cards in deck %s: %w", queue, st.deck.Name, err)
			}
		}

		left[st.deck.ID] -= n
		for _, p := range parents {
			left[p.deck.ID] -= n
		}
		total += n
		if queue == domain.QueueNew {
			st.newLeft = n
		} else {
			st.reviewLeft = n
		}
	}

	if queue == domain.QueueNew {
		b.newCount = total
	} else {
		b.reviewCount = total
	}
	return nil
}

func (b *Builder) updateNewModulus() {
	b.newModulus = 0
	if b.opts.NewSpread != SpreadDistribute || b.newCount == 0 {
		return
	}
	b.newModulus = (b.newCount + b.reviewCount) / b.newCount
	if b.reviewCount > 0 {
		b.newModulus = max(2, b.newModulus)
	}
}

// TimeForNew reports whether a new card should be shown before reviews,
// given how many cards were answered this session.
func (b *Builder) TimeForNew(reps int) bool {
	if b.newCount == 0 {
		return false
	}
	switch b.opts.NewSpread {
	case SpreadLast:
		return false
	case SpreadFirst:
		return true
	default:
		return b.newModulus > 0 && reps > 0 && reps%b.newModulus == 0
	}
}

// Counts returns what is left to study. Intraday learning cards count when
// due within collapse of now.
func (b *Builder) Counts(now time.Time, collapse time.Duration) Counts {
	limit := now.Add(collapse).Unix()
	learning := b.dayCount
	for _, c := range b.learning {
		if c.Due.Value <= limit {
			learning++
		}
	}
	return Counts{New: b.newCount, Learning: learning, Review: b.reviewCount}
}

func (b *Builder) fetch(ctx context.Context, deck domain.DeckID, queue domain.Queue, limit int, dueBefore *int64) ([]domain.Card, error) {
	cards, err := b.repos.Cards().FindByDeckAndQueue(ctx, deck, queue, store.QueueQuery{
		DueBefore: dueBefore,
		Limit:     limit + len(b.skip),
	})
	if err != nil {
		return nil, err
	}
	cards = slices.DeleteFunc(cards, func(c domain.Card) bool {
		_, skipped := b.skip[c.ID]
		return skipped
	})
	if len(cards) > limit {
		cards = cards[:limit]
	}
	return cards, nil
}

func (b *Builder) take(c domain.Card) domain.Card {
	b.skip[c.ID] = struct{}{}
	return c
}

func (b *Builder) fillNew(ctx context.Context) error {
	for len(b.newQueue) == 0 && b.newCount > 0 && b.newCursor < len(b.decks) {
		st := b.decks[b.newCursor]
		if st.newLeft > 0 {
			cards, err := b.fetchNew(ctx, st)
			if err != nil {
				return fmt.Errorf("failed to fill new queue from deck %s: %w", st.deck.Name, err)
			}
			if len(cards) > 0 {
				b.newQueue = cards
				return nil
			}
		}
		b.newCursor++
	}
	if len(b.newQueue) == 0 {
		b.newCount = 0
	}
	return nil
}

// fetchNew returns the next new cards of one deck. Decks ordered by
// position are read in batches. Random decks shuffle every candidate up to
// ReportLimit and take the whole day's allocation at once, so the shuffle
// decides which cards are introduced, not only their order.
func (b *Builder) fetchNew(ctx context.Context, st *deckState) ([]domain.Card, error) {
	if st.conf.NewOrder != domain.NewOrderRandom {
		return b.fetch(ctx, st.deck.ID, domain.QueueNew, min(b.opts.QueueLimit, st.newLeft), nil)
	}
	cards, err := b.fetch(ctx, st.deck.ID, domain.QueueNew, b.opts.ReportLimit, nil)
	if err != nil {
		return nil, err
	}
	b.rand.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
	if len(cards) > st.newLeft {
		cards = cards[:st.newLeft]
	}
	return cards, nil
}

// NextNew pops the next new card.
func (b *Builder) NextNew(ctx context.Context) (domain.Card, bool, error) {
	if err := b.fillNew(ctx); err != nil {
		return domain.Card{}, false, err
	}
	if len(b.newQueue) == 0 {
		return domain.Card{}, false, nil
	}
	c := b.newQueue[0]
	b.newQueue = b.newQueue[1:]
	b.newCount = max(0, b.newCount-1)
	if st, ok := b.byID[c.DeckID]; ok {
		st.newLeft--
	}
	return b.take(c), true, nil
}

func (b *Builder) fillReview(ctx context.Context) error {
	if len(b.reviewQueue) > 0 || b.reviewCount <= 0 {
		return nil
	}
	today := b.timing.Today
	var batch []domain.Card
	for _, st := range b.decks {
		lim := min(b.opts.QueueLimit, st.reviewLeft)
		if lim <= 0 {
			continue
		}
		cards, err := b.fetch(ctx, st.deck.ID, domain.QueueReview, lim, store.DueAtMost(today))
		if err != nil {
			return fmt.Errorf("failed to fill review queue from deck %s: %w", st.deck.Name, err)
		}
		batch = append(batch, cards...)
	}

	// Cards whose deck orders by interval sort on it within a due day. The
	// rest share key 0 and keep the shuffled order.
	tie := make(map[domain.CardID]int, len(batch))
	for _, c := range batch {
		conf, err := b.homeConf(ctx, c)
		if err != nil {
			return err
		}
		if conf.ReviewOrder == domain.ReviewOrderInterval {
			tie[c.ID] = c.Interval
		}
	}
	b.rand.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
	slices.SortStableFunc(batch, func(x, y domain.Card) int {
		if x.Due.Value != y.Due.Value {
			return cmpInt64(x.Due.Value, y.Due.Value)
		}
		return tie[x.ID] - tie[y.ID]
	})
	if len(batch) > b.opts.QueueLimit {
		batch = batch[:b.opts.QueueLimit]
	}
	b.reviewQueue = batch
	if len(batch) == 0 {
		b.reviewCount = 0
	}
	return nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// homeConf returns the config that orders c: its own deck's, or for a card
// borrowed by a filtered deck, the config of the deck it came from.
func (b *Builder) homeConf(ctx context.Context, c domain.Card) (domain.DeckConfig, error) {
	deck := c.HomeDeck()
	if st, ok := b.byID[deck]; ok && !st.deck.IsFiltered() {
		return st.conf, nil
	}
	if conf, ok := b.confs[deck]; ok {
		return conf, nil
	}
	conf, err := ResolveConfig(ctx, b.repos.Configs(), deck, b.logger)
	if err != nil {
		return domain.DeckConfig{}, fmt.Errorf("failed to load config of deck %d: %w", deck, err)
	}
	b.confs[deck] = conf
	return conf, nil
}

// NextReview pops the next review card due today.
func (b *Builder) NextReview(ctx context.Context) (domain.Card, bool, error) {
	if err := b.fillReview(ctx); err != nil {
		return domain.Card{}, false, err
	}
	if len(b.reviewQueue) == 0 {
		return domain.Card{}, false, nil
	}
	c := b.reviewQueue[0]
	b.reviewQueue = b.reviewQueue[1:]
	b.reviewCount = max(0, b.reviewCount-1)
	if st, ok := b.byID[c.DeckID]; ok {
		st.reviewLeft--
	}
	return b.take(c), true, nil
}

func (b *Builder) fillDayLearning(ctx context.Context) error {
	for len(b.dayQueue) == 0 && b.dayCount > 0 && b.dayCursor < len(b.decks) {
		st := b.decks[b.dayCursor]
		cards, err := b.fetch(ctx, st.deck.ID, domain.QueueDayLearning, b.opts.QueueLimit, store.DueAtMost(b.timing.Today))
		if err != nil {
			return fmt.Errorf("failed to fill day learning queue from deck %s: %w", st.deck.Name, err)
		}
		if len(cards) > 0 {
			b.dayRand.Shuffle(len(cards), func(i, j int) { cards[i], cards[j] = cards[j], cards[i] })
			b.dayQueue = cards
			return nil
		}
		b.dayCursor++
	}
	if len(b.dayQueue) == 0 {
		b.dayCount = 0
	}
	return nil
}

// NextDayLearning pops the next (re)learning card whose step ended on a
// previous day.
func (b *Builder) NextDayLearning(ctx context.Context) (domain.Card, bool, error) {
	if err := b.fillDayLearning(ctx); err != nil {
		return domain.Card{}, false, err
	}
	if len(b.dayQueue) == 0 {
		return domain.Card{}, false, nil
	}
	c := b.dayQueue[0]
	b.dayQueue = b.dayQueue[1:]
	b.dayCount = max(0, b.dayCount-1)
	return b.take(c), true, nil
}

// loadLearning reads today's intraday learning cards, and the repeating
// cards of preview decks, ordered by due time.
func (b *Builder) loadLearning(ctx context.Context) error {
	cutoff := store.DueAtMost(b.timing.NextCutoff.Unix() - 1)
	b.dayCount = 0
	for _, st := range b.decks {
		queues := []domain.Queue{domain.QueueLearning}
		if st.deck.IsFiltered() && !st.deck.Filtered.Reschedule {
			queues = append(queues, domain.QueuePreview)
		}
		for _, q := range queues {
			cards, err := b.repos.Cards().FindByDeckAndQueue(ctx, st.deck.ID, q, store.QueueQuery{
				DueBefore: cutoff,
				Limit:     b.opts.ReportLimit,
			})
			if err != nil {
				return fmt.Errorf("failed to load learning cards from deck %s: %w", st.deck.Name, err)
			}
			b.learning = append(b.learning, cards...)
		}

		n, err := b.repos.Cards().CountDue(ctx, st.deck.ID, domain.QueueDayLearning, store.QueueQuery{
			DueBefore: store.DueAtMost(b.timing.Today),
			Limit:     b.opts.ReportLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to count day learning cards in deck %s: %w", st.deck.Name, err)
		}
		b.dayCount += n
	}
	b.sortLearning()
	return nil
}

func (b *Builder) sortLearning() {
	slices.SortStableFunc(b.learning, func(x, y domain.Card) int {
		if c := cmpInt64(x.Due.Value, y.Due.Value); c != 0 {
			return c
		}
		return cmpInt64(int64(x.ID), int64(y.ID))
	})
}

// NextLearning pops the first intraday learning card due by now, or by
// now+collapse when collapse is positive.
func (b *Builder) NextLearning(now time.Time, collapse time.Duration) (domain.Card, bool) {
	if len(b.learning) == 0 {
		return domain.Card{}, false
	}
	limit := now
	if collapse > 0 {
		limit = now.Add(collapse)
	}
	head := b.learning[0]
	if head.Due.Value > limit.Unix() {
		return domain.Card{}, false
	}
	b.learning = b.learning[1:]
	return head, true
}

// Requeue puts an answered card back into the intraday learning queue when
// it is due again before the day cutoff in one of the active decks.
func (b *Builder) Requeue(c domain.Card) {
	if c.Queue != domain.QueueLearning && c.Queue != domain.QueuePreview {
		return
	}
	if _, ok := b.byID[c.DeckID]; !ok {
		return
	}
	if c.Due.Value >= b.timing.NextCutoff.Unix() {
		return
	}
	b.learning = slices.DeleteFunc(b.learning, func(x domain.Card) bool { return x.ID == c.ID })
	b.learning = append(b.learning, c)
	b.sortLearning()
}

// Remove drops cards from every in-memory queue until the next rebuild.
func (b *Builder) Remove(ids ...domain.CardID) {
	drop := make(map[domain.CardID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		if b.skip != nil {
			b.skip[id] = struct{}{}
		}
	}
	match := func(c domain.Card) bool { return drop[c.ID] }

	before := len(b.newQueue)
	b.newQueue = slices.DeleteFunc(b.newQueue, match)
	b.newCount = max(0, b.newCount-(before-len(b.newQueue)))

	before = len(b.reviewQueue)
	b.reviewQueue = slices.DeleteFunc(b.reviewQueue, match)
	b.reviewCount = max(0, b.reviewCount-(before-len(b.reviewQueue)))

	before = len(b.dayQueue)
	b.dayQueue = slices.DeleteFunc(b.dayQueue, match)
	b.dayCount = max(0, b.dayCount-(before-len(b.dayQueue)))

	b.learning = slices.DeleteFunc(b.learning, match)
}
