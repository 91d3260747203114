// Package scheduler runs a study session: it hands out the next card,
// applies answers transactionally and keeps the in-memory queues in step
// with the store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/queue"
	"github.com/conorfennell/knolsched/internal/rng"
	"github.com/conorfennell/knolsched/internal/srs"
	"github.com/conorfennell/knolsched/internal/store"
)

// lastUnburiedKey records the day buried cards were last released.
const lastUnburiedKey = "last_unburied"

// State is the session state.
type State int

const (
	Uninitialized State = iota
	Ready
	AnsweringInFlight
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case AnsweringInFlight:
		return "answering"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options are the session-wide scheduling knobs. Per-deck policy lives in
// domain.DeckConfig.
type Options struct {
	NewSpread     queue.NewSpread
	DayLearnFirst bool
	// CollapseTime lets learning cards due within this window be shown
	// early when nothing else is left.
	CollapseTime time.Duration
	QueueLimit   int
	ReportLimit  int
	FuzzBands    []srs.FuzzBand
}

// DefaultOptions returns the standard session options.
func DefaultOptions() Options {
	q := queue.DefaultOptions()
	return Options{
		NewSpread:    q.NewSpread,
		CollapseTime: 20 * time.Minute,
		QueueLimit:   q.QueueLimit,
		ReportLimit:  q.ReportLimit,
		FuzzBands:    srs.DefaultFuzzBands(),
	}
}

// LeechFunc is called after a lapse turns a card into a leech.
type LeechFunc func(card domain.Card)

// Config wires a Scheduler to its collaborators.
type Config struct {
	Clock   clock.Clock
	Rand    *rand.Rand
	Logger  *slog.Logger
	Cutoff  clock.DayCutoff
	Options Options
	OnLeech LeechFunc
	// Deck is the deck studied first. Zero studies every deck.
	Deck domain.DeckID
}

// Scheduler owns the state of one study session. It is not safe for
// concurrent use.
type Scheduler struct {
	store   store.Store
	clock   clock.Clock
	rand    *rand.Rand
	logger  *slog.Logger
	cutoff  clock.DayCutoff
	opts    Options
	onLeech LeechFunc

	builder  *queue.Builder
	selected domain.DeckID
	state    State
	reps     int
	// inFlight maps handed-out cards to the Mod they had when handed out.
	inFlight map[domain.CardID]int64
}

// New creates a scheduler over st. Missing collaborators default to the
// system clock, a time-seeded random source and slog.Default.
func New(st store.Store, cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rng.NewSource()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Options.FuzzBands == nil {
		cfg.Options.FuzzBands = srs.DefaultFuzzBands()
	}
	s := &Scheduler{
		store:    st,
		clock:    cfg.Clock,
		rand:     cfg.Rand,
		logger:   cfg.Logger,
		cutoff:   cfg.Cutoff,
		opts:     cfg.Options,
		onLeech:  cfg.OnLeech,
		selected: cfg.Deck,
		inFlight: make(map[domain.CardID]int64),
	}
	s.builder = queue.NewBuilder(st, cfg.Rand, cfg.Logger, queue.Options{
		QueueLimit:  cfg.Options.QueueLimit,
		ReportLimit: cfg.Options.ReportLimit,
		NewSpread:   cfg.Options.NewSpread,
	})
	return s
}

// State returns the session state.
func (s *Scheduler) State() State { return s.state }

// Selected returns the deck being studied. Zero means every deck.
func (s *Scheduler) Selected() domain.DeckID { return s.selected }

// Timing snapshots the clock against the day cutoff.
func (s *Scheduler) Timing() clock.Timing { return s.cutoff.Timing(s.clock.Now()) }

// Reset drops the in-memory queues. They are rebuilt by the next call that
// needs them. Buried cards stay buried until the day rolls over.
func (s *Scheduler) Reset() {
	s.builder.Invalidate()
	s.logger.Debug("Scheduler reset")
}

// SelectDeck switches the session to a deck and its children.
func (s *Scheduler) SelectDeck(ctx context.Context, id domain.DeckID) error {
	if id != 0 {
		if _, err := s.store.Decks().Get(ctx, id); err != nil {
			return fmt.Errorf("failed to select deck: %w", err)
		}
	}
	s.selected = id
	s.Reset()
	return nil
}

// ensureBuilt rebuilds the queues when they were never built, were reset or
// the day rolled over since the last build.
func (s *Scheduler) ensureBuilt(ctx context.Context) error {
	timing := s.Timing()
	if s.builder.Built() && s.builder.Timing().Today == timing.Today {
		return nil
	}
	if err := s.unburyOnNewDay(ctx, timing.Today); err != nil {
		return err
	}
	if err := s.builder.Rebuild(ctx, timing, s.selected); err != nil {
		return fmt.Errorf("failed to build queues: %w", err)
	}
	if s.state == Uninitialized {
		s.state = Ready
	}
	return nil
}

// unburyOnNewDay releases buried cards once per day.
func (s *Scheduler) unburyOnNewDay(ctx context.Context, today int64) error {
	last, err := s.store.Meta().Int(ctx, lastUnburiedKey)
	if err != nil {
		return err
	}
	if last >= today {
		return nil
	}
	n := 0
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		cards, err := tx.Cards().InQueues(ctx, domain.QueueSchedBuried, domain.QueueUserBuried)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for _, c := range cards {
			c.Queue = c.RestoredQueue()
			c.Touch(now)
			if err := tx.Cards().Update(ctx, c); err != nil {
				return err
			}
		}
		n = len(cards)
		return tx.Meta().SetInt(ctx, lastUnburiedKey, today)
	})
	if err != nil {
		return fmt.Errorf("failed to unbury cards: %w", err)
	}
	if n > 0 {
		s.logger.Info("Unburied cards for new day", "day", today, "count", n)
	}
	return nil
}

// Counts returns the cards left in the current session.
func (s *Scheduler) Counts(ctx context.Context) (queue.Counts, error) {
	if err := s.ensureBuilt(ctx); err != nil {
		return queue.Counts{}, err
	}
	return s.builder.Counts(s.clock.Now(), s.opts.CollapseTime), nil
}

// NextCard returns the next card to study, or nil when nothing is left for
// today. The returned card must be answered before its next modification.
func (s *Scheduler) NextCard(ctx context.Context) (*domain.Card, error) {
	if err := s.ensureBuilt(ctx); err != nil {
		return nil, err
	}
	for {
		c, ok, err := s.pick(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		fresh, err := s.store.Cards().Get(ctx, c.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if fresh.Queue != c.Queue || fresh.DeckID != c.DeckID {
			// Changed behind the session's back, for example by a sync.
			s.logger.Debug("Skipping card moved since queue build", "card", c.ID, "queue", fresh.Queue)
			continue
		}
		s.inFlight[fresh.ID] = fresh.Mod
		s.state = AnsweringInFlight
		return &fresh, nil
	}
}

// pick applies the queue precedence: learning due now, new when the spread
// asks for it, day learning when configured first, reviews, day learning,
// new, then learning due within the collapse window.
func (s *Scheduler) pick(ctx context.Context) (domain.Card, bool, error) {
	b := s.builder
	now := s.clock.Now()

	if c, ok := b.NextLearning(now, 0); ok {
		return c, true, nil
	}
	if b.TimeForNew(s.reps) {
		if c, ok, err := b.NextNew(ctx); err != nil || ok {
			return c, ok, err
		}
	}
	if s.opts.DayLearnFirst {
		if c, ok, err := b.NextDayLearning(ctx); err != nil || ok {
			return c, ok, err
		}
	}
	if c, ok, err := b.NextReview(ctx); err != nil || ok {
		return c, ok, err
	}
	if !s.opts.DayLearnFirst {
		if c, ok, err := b.NextDayLearning(ctx); err != nil || ok {
			return c, ok, err
		}
	}
	if c, ok, err := b.NextNew(ctx); err != nil || ok {
		return c, ok, err
	}
	if c, ok := b.NextLearning(now, s.opts.CollapseTime); ok {
		return c, true, nil
	}
	return domain.Card{}, false, nil
}

func (s *Scheduler) settle() {
	if len(s.inFlight) == 0 && s.state == AnsweringInFlight {
		s.state = Ready
	}
}
