package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/rng"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func testTiming() clock.Timing {
	cutoff := clock.DayCutoff{Created: testNow, RolloverHour: 4, Location: time.UTC}
	return cutoff.Timing(testNow)
}

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newBuilder(db *storage.DB, opts Options) *Builder {
	return NewBuilder(db, rng.New(1), nil, opts)
}

// addCards adds n single-card notes to deck and returns the cards in
// insertion order.
func addCards(t *testing.T, db *storage.DB, deck domain.DeckID, n int) []domain.Card {
	t.Helper()
	ctx := context.Background()
	var out []domain.Card
	for i := 0; i < n; i++ {
		q := fmt.Sprintf("q-%d-%d", deck, i)
		id, err := db.AddNote(ctx, domain.Note{Hash: "h-" + q, Question: q, Answer: "a"}, deck, testNow)
		require.NoError(t, err)
		cards, err := db.CardsOfNote(ctx, id)
		require.NoError(t, err)
		out = append(out, cards...)
	}
	return out
}

func setState(t *testing.T, db *storage.DB, c domain.Card, queue domain.Queue, typ domain.CardType, due domain.Due) domain.Card {
	t.Helper()
	c.Queue, c.Type, c.Due = queue, typ, due
	if typ == domain.TypeReview {
		c.Interval = 5
		c.EaseFactor = 2500
	}
	if typ.Learning() {
		c.Progress = domain.LearningProgress{Remaining: 1, Total: 2}
	}
	require.NoError(t, db.Cards().Update(context.Background(), c))
	return c
}

func saveConfig(t *testing.T, db *storage.DB, deck domain.DeckID, id domain.ConfigID, edit func(*domain.DeckConfig)) {
	t.Helper()
	ctx := context.Background()
	conf := domain.DefaultDeckConfig()
	conf.ID = id
	conf.Name = fmt.Sprintf("preset %d", id)
	edit(&conf)
	require.NoError(t, db.SaveConfig(ctx, conf))
	require.NoError(t, db.SetDeckConfig(ctx, deck, id))
}

func TestRebuildHonoursNewLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	addCards(t, db, deck, 5)
	saveConfig(t, db, deck, 2, func(c *domain.DeckConfig) { c.NewPerDay = 2 })

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), deck))
	assert.Equal(t, Counts{New: 2}, b.Counts(testNow, 0))

	first, ok, err := b.NextNew(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := b.NextNew(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Less(t, first.Due.Value, second.Due.Value)

	_, ok, err = b.NextNew(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, b.Counts(testNow, 0).New)
}

func TestStudiedTodayReducesLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	addCards(t, db, deck, 30)
	require.NoError(t, db.Decks().AddStudied(ctx, deck, 0, domain.DailyCounts{New: 15}))

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), deck))
	assert.Equal(t, 5, b.Counts(testNow, 0).New)
}

func TestParentLimitCapsChildren(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	child, err := db.EnsureDeck(ctx, "Lang::Spanish")
	require.NoError(t, err)
	other, err := db.EnsureDeck(ctx, "Lang::French")
	require.NoError(t, err)
	parent, err := db.DeckByName(ctx, "Lang")
	require.NoError(t, err)
	addCards(t, db, child, 4)
	addCards(t, db, other, 4)
	saveConfig(t, db, parent.ID, 2, func(c *domain.DeckConfig) { c.NewPerDay = 6 })

	t.Run("selected parent", func(t *testing.T) {
		b := newBuilder(db, Options{})
		require.NoError(t, b.Rebuild(ctx, testTiming(), parent.ID))
		assert.Equal(t, 6, b.Counts(testNow, 0).New)

		seen := 0
		for {
			_, ok, err := b.NextNew(ctx)
			require.NoError(t, err)
			if !ok {
				break
			}
			seen++
		}
		assert.Equal(t, 6, seen)
	})

	t.Run("selected child", func(t *testing.T) {
		saveConfig(t, db, parent.ID, 2, func(c *domain.DeckConfig) { c.NewPerDay = 3 })
		b := newBuilder(db, Options{})
		require.NoError(t, b.Rebuild(ctx, testTiming(), child))
		assert.Equal(t, 3, b.Counts(testNow, 0).New)
	})
}

func TestReviewsDueTodayInDueOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, deck, 3)
	setState(t, db, cards[0], domain.QueueReview, domain.TypeReview, domain.DayDue(0))
	setState(t, db, cards[1], domain.QueueReview, domain.TypeReview, domain.DayDue(-2))
	setState(t, db, cards[2], domain.QueueReview, domain.TypeReview, domain.DayDue(1))

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), deck))
	assert.Equal(t, Counts{Review: 2}, b.Counts(testNow, 0))

	got, ok, err := b.NextReview(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cards[1].ID, got.ID)

	got, ok, err = b.NextReview(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cards[0].ID, got.ID)

	_, ok, err = b.NextReview(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLearningHonoursCollapse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, deck, 3)
	soon := setState(t, db, cards[0], domain.QueueLearning, domain.TypeLearning, domain.TimeDue(testNow.Add(5*time.Minute)))
	later := setState(t, db, cards[1], domain.QueueLearning, domain.TypeLearning, domain.TimeDue(testNow.Add(time.Hour)))
	// due after the cutoff, so not part of today's queue
	setState(t, db, cards[2], domain.QueueLearning, domain.TypeLearning, domain.TimeDue(testNow.Add(20*time.Hour)))

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), deck))
	assert.Equal(t, 0, b.Counts(testNow, 0).Learning)
	assert.Equal(t, 1, b.Counts(testNow, 20*time.Minute).Learning)

	_, ok := b.NextLearning(testNow, 0)
	assert.False(t, ok)

	got, ok := b.NextLearning(testNow, 20*time.Minute)
	require.True(t, ok)
	assert.Equal(t, soon.ID, got.ID)

	_, ok = b.NextLearning(testNow, 20*time.Minute)
	assert.False(t, ok)

	got, ok = b.NextLearning(testNow.Add(2*time.Hour), 0)
	require.True(t, ok)
	assert.Equal(t, later.ID, got.ID)
}

func TestRequeueKeepsDueOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, deck, 2)
	waiting := setState(t, db, cards[0], domain.QueueLearning, domain.TypeLearning, domain.TimeDue(testNow.Add(10*time.Minute)))

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), deck))

	answered := cards[1]
	answered.Queue, answered.Type = domain.QueueLearning, domain.TypeLearning
	answered.Due = domain.TimeDue(testNow.Add(time.Minute))
	b.Requeue(answered)

	got, ok := b.NextLearning(testNow.Add(time.Hour), 0)
	require.True(t, ok)
	assert.Equal(t, answered.ID, got.ID)
	got, ok = b.NextLearning(testNow.Add(time.Hour), 0)
	require.True(t, ok)
	assert.Equal(t, waiting.ID, got.ID)

	answered.Due = domain.TimeDue(testNow.Add(30 * time.Hour))
	b.Requeue(answered)
	_, ok = b.NextLearning(testNow.Add(40*time.Hour), 0)
	assert.False(t, ok, "cards due after the cutoff are not requeued")

	answered.Queue = domain.QueueReview
	answered.Due = domain.DayDue(3)
	b.Requeue(answered)
	_, ok = b.NextLearning(testNow.Add(40*time.Hour), 0)
	assert.False(t, ok)
}

func TestDayLearningCountedAndServed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, deck, 3)
	for _, c := range cards[:2] {
		setState(t, db, c, domain.QueueDayLearning, domain.TypeRelearning, domain.DayDue(0))
	}
	setState(t, db, cards[2], domain.QueueDayLearning, domain.TypeLearning, domain.DayDue(2))

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), deck))
	assert.Equal(t, 2, b.Counts(testNow, 0).Learning)

	got := map[domain.CardID]bool{}
	for {
		c, ok, err := b.NextDayLearning(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got[c.ID] = true
	}
	assert.Equal(t, map[domain.CardID]bool{cards[0].ID: true, cards[1].ID: true}, got)
	assert.Equal(t, 0, b.Counts(testNow, 0).Learning)
}

func TestRemoveDropsCards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, deck, 3)

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), deck))
	first, ok, err := b.NextNew(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cards[0].ID, first.ID)

	b.Remove(cards[1].ID)
	assert.Equal(t, 1, b.Counts(testNow, 0).New)

	next, ok, err := b.NextNew(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cards[2].ID, next.ID)
}

func TestRefillSkipsHandedOutCards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	addCards(t, db, deck, 5)

	b := newBuilder(db, Options{QueueLimit: 2})
	require.NoError(t, b.Rebuild(ctx, testTiming(), deck))

	seen := map[domain.CardID]bool{}
	for {
		c, ok, err := b.NextNew(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		assert.False(t, seen[c.ID], "card %d handed out twice", c.ID)
		seen[c.ID] = true
	}
	assert.Len(t, seen, 5)
}

func TestTimeForNew(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, deck, 6)
	for _, c := range cards[:4] {
		setState(t, db, c, domain.QueueReview, domain.TypeReview, domain.DayDue(0))
	}

	tests := []struct {
		spread NewSpread
		reps   int
		want   bool
	}{
		{SpreadDistribute, 0, false},
		{SpreadDistribute, 1, false},
		{SpreadDistribute, 3, true},
		{SpreadDistribute, 6, true},
		{SpreadLast, 3, false},
		{SpreadFirst, 1, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.spread, tt.reps), func(t *testing.T) {
			b := newBuilder(db, Options{NewSpread: tt.spread})
			require.NoError(t, b.Rebuild(ctx, testTiming(), deck))
			assert.Equal(t, tt.want, b.TimeForNew(tt.reps))
		})
	}
}

func TestInvalidConfigDeckIsSkipped(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	good, err := db.EnsureDeck(ctx, "Lang::Good")
	require.NoError(t, err)
	bad, err := db.EnsureDeck(ctx, "Lang::Bad")
	require.NoError(t, err)
	parent, err := db.DeckByName(ctx, "Lang")
	require.NoError(t, err)
	addCards(t, db, good, 2)
	addCards(t, db, bad, 2)
	saveConfig(t, db, bad, 3, func(c *domain.DeckConfig) { c.LearnSteps = nil })

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), parent.ID))
	assert.Equal(t, 2, b.Counts(testNow, 0).New)
}

func TestResolveConfigFallsBackToDefault(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	require.NoError(t, db.SetDeckConfig(ctx, deck, 99))

	conf, err := ResolveConfig(ctx, db.Configs(), deck, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultDeckConfig(), conf)
}

func TestBuildAndEmptyFiltered(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	home, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, home, 4)
	review := setState(t, db, cards[0], domain.QueueReview, domain.TypeReview, domain.DayDue(5))
	suspended := setState(t, db, cards[1], domain.QueueSuspended, domain.TypeReview, domain.DayDue(0))

	filtered, err := db.CreateFilteredDeck(ctx, "Cram", domain.FilteredDeck{
		Terms:      []domain.FilterTerm{{Search: "deck:Spanish", Limit: 10, Order: domain.OrderAdded}},
		Reschedule: true,
	})
	require.NoError(t, err)

	n, err := BuildFiltered(ctx, db, filtered, testTiming(), rng.New(1))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	moved, err := db.Cards().InDeck(ctx, filtered)
	require.NoError(t, err)
	require.Len(t, moved, 3)
	for _, c := range moved {
		require.NotNil(t, c.Filtered)
		assert.Equal(t, home, c.Filtered.OriginalDeck)
		assert.Equal(t, domain.DuePosition, c.Due.Kind)
		assert.Less(t, c.Due.Value, int64(0))
		assert.NotEqual(t, suspended.ID, c.ID)
	}

	// rebuilding does not duplicate or lose cards
	n, err = BuildFiltered(ctx, db, filtered, testTiming(), rng.New(1))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = EmptyFiltered(ctx, db, filtered, testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := db.Cards().Get(ctx, review.ID)
	require.NoError(t, err)
	assert.Equal(t, home, got.DeckID)
	assert.Nil(t, got.Filtered)
	assert.Equal(t, domain.DayDue(5), got.Due)
	assert.Equal(t, domain.QueueReview, got.Queue)
}

func TestPreviewDeckQueuesCardsAsPreview(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	home, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	addCards(t, db, home, 2)
	filtered, err := db.CreateFilteredDeck(ctx, "Peek", domain.FilteredDeck{
		Terms: []domain.FilterTerm{{Search: "is:new", Limit: 1, Order: domain.OrderAdded}},
	})
	require.NoError(t, err)

	n, err := BuildFiltered(ctx, db, filtered, testTiming(), rng.New(1))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), filtered))
	c, ok := b.NextLearning(testNow, 0)
	require.True(t, ok)
	assert.Equal(t, domain.QueuePreview, c.Queue)

	_, err = EmptyFiltered(ctx, db, filtered, testNow)
	require.NoError(t, err)
	back, err := db.Cards().Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueNew, back.Queue)
}

func TestBuildFilteredRejectsBadTerms(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	home, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)

	_, err = BuildFiltered(ctx, db, home, testTiming(), rng.New(1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	filtered, err := db.CreateFilteredDeck(ctx, "Cram", domain.FilteredDeck{
		Terms: []domain.FilterTerm{{Search: "is:new", Limit: 0}},
	})
	require.NoError(t, err)
	_, err = BuildFiltered(ctx, db, filtered, testTiming(), rng.New(1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRebuildWholeCollection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	spanish, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	french, err := db.EnsureDeck(ctx, "French::Verbs")
	require.NoError(t, err)
	addCards(t, db, spanish, 2)
	addCards(t, db, french, 3)

	b := newBuilder(db, Options{})
	require.NoError(t, b.Rebuild(ctx, testTiming(), 0))
	assert.Equal(t, 5, b.Counts(testNow, 0).New)
}

// drainReviews pops every review card and returns their intervals.
func drainReviews(t *testing.T, b *Builder) []int {
	t.Helper()
	var ivls []int
	for {
		c, ok, err := b.NextReview(context.Background())
		require.NoError(t, err)
		if !ok {
			return ivls
		}
		ivls = append(ivls, c.Interval)
	}
}

// drainNew pops every new card and returns their IDs.
func drainNew(t *testing.T, b *Builder) []domain.CardID {
	t.Helper()
	var ids []domain.CardID
	for {
		c, ok, err := b.NextNew(context.Background())
		require.NoError(t, err)
		if !ok {
			return ids
		}
		ids = append(ids, c.ID)
	}
}

func addReviews(t *testing.T, db *storage.DB, deck domain.DeckID, ivls ...int) {
	t.Helper()
	for i, c := range addCards(t, db, deck, len(ivls)) {
		c.Queue, c.Type, c.Due = domain.QueueReview, domain.TypeReview, domain.DayDue(0)
		c.Interval, c.EaseFactor = ivls[i], 2500
		require.NoError(t, db.Cards().Update(context.Background(), c))
	}
}

func TestReviewOrderInterval(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		pick func(deck domain.DeckID) domain.DeckID
	}{
		{name: "whole collection", pick: func(domain.DeckID) domain.DeckID { return 0 }},
		{name: "selected deck", pick: func(deck domain.DeckID) domain.DeckID { return deck }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			db := newTestDB(t)
			deck, err := db.EnsureDeck(ctx, "Spanish")
			require.NoError(t, err)
			saveConfig(t, db, deck, domain.DefaultConfigID, func(c *domain.DeckConfig) {
				c.ReviewOrder = domain.ReviewOrderInterval
			})
			addReviews(t, db, deck, 30, 5, 15, 40, 2, 9)

			b := newBuilder(db, Options{})
			require.NoError(t, b.Rebuild(ctx, testTiming(), tc.pick(deck)))
			assert.Equal(t, []int{2, 5, 9, 15, 30, 40}, drainReviews(t, b))
		})
	}
}

func TestReviewOrderRandomIsSeeded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	addReviews(t, db, deck, 30, 5, 15, 40, 2, 9, 11, 23)

	order := func(seed uint64) []int {
		b := NewBuilder(db, rng.New(seed), nil, Options{})
		require.NoError(t, b.Rebuild(ctx, testTiming(), 0))
		return drainReviews(t, b)
	}

	first := order(1)
	assert.ElementsMatch(t, []int{30, 5, 15, 40, 2, 9, 11, 23}, first)
	assert.Equal(t, first, order(1))

	differs := false
	for seed := uint64(2); seed < 8; seed++ {
		if !assert.ObjectsAreEqual(first, order(seed)) {
			differs = true
		}
	}
	assert.True(t, differs, "expected another seed to break ties differently")
}

func TestNewOrderRandom(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, deck, 20)
	saveConfig(t, db, deck, 2, func(c *domain.DeckConfig) {
		c.NewPerDay = 5
		c.NewOrder = domain.NewOrderRandom
	})
	inDeck := map[domain.CardID]bool{}
	for _, c := range cards {
		inDeck[c.ID] = true
	}
	firstFive := []domain.CardID{cards[0].ID, cards[1].ID, cards[2].ID, cards[3].ID, cards[4].ID}

	for _, sel := range []domain.DeckID{0, deck} {
		t.Run(fmt.Sprintf("selected %d", sel), func(t *testing.T) {
			introduce := func(seed uint64) []domain.CardID {
				b := NewBuilder(db, rng.New(seed), nil, Options{QueueLimit: 2})
				require.NoError(t, b.Rebuild(ctx, testTiming(), sel))
				return drainNew(t, b)
			}

			first := introduce(1)
			require.Len(t, first, 5)
			seen := map[domain.CardID]bool{}
			for _, id := range first {
				assert.True(t, inDeck[id])
				assert.False(t, seen[id], "card %d introduced twice", id)
				seen[id] = true
			}
			assert.Equal(t, first, introduce(1))

			// The shuffle picks which cards are introduced, not only
			// their order among the lowest positions.
			beyond := false
			for seed := uint64(1); seed < 6; seed++ {
				for _, id := range introduce(seed) {
					if !slices.Contains(firstFive, id) {
						beyond = true
					}
				}
			}
			assert.True(t, beyond, "expected random order to reach past the first positions")
		})
	}
}

func TestNewOrderDueFollowsPosition(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, deck, 6)
	saveConfig(t, db, deck, 2, func(c *domain.DeckConfig) { c.NewPerDay = 4 })

	b := newBuilder(db, Options{QueueLimit: 3})
	require.NoError(t, b.Rebuild(ctx, testTiming(), 0))
	assert.Equal(t, []domain.CardID{cards[0].ID, cards[1].ID, cards[2].ID, cards[3].ID}, drainNew(t, b))
}

func TestBuildFilteredRandomOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	home, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	cards := addCards(t, db, home, 20)
	filtered, err := db.CreateFilteredDeck(ctx, "Cram", domain.FilteredDeck{
		Terms:      []domain.FilterTerm{{Search: "deck:Spanish", Limit: 5, Order: domain.OrderRandom}},
		Reschedule: true,
	})
	require.NoError(t, err)

	lowest := map[domain.CardID]bool{}
	for _, c := range cards[:5] {
		lowest[c.ID] = true
	}
	build := func(seed uint64) []domain.CardID {
		n, err := BuildFiltered(ctx, db, filtered, testTiming(), rng.New(seed))
		require.NoError(t, err)
		require.Equal(t, 5, n)
		moved, err := db.Cards().InDeck(ctx, filtered)
		require.NoError(t, err)
		var ids []domain.CardID
		for _, c := range moved {
			ids = append(ids, c.ID)
		}
		slices.Sort(ids)
		return ids
	}

	first := build(1)
	require.Len(t, first, 5)
	assert.Equal(t, first, build(1))

	beyond := false
	for seed := uint64(1); seed < 6; seed++ {
		for _, id := range build(seed) {
			if !lowest[id] {
				beyond = true
			}
		}
	}
	assert.True(t, beyond, "expected random order to pick beyond the oldest cards")
}
