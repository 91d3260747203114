// Package store defines the narrow repository interfaces the scheduler
// consumes. internal/storage provides the SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

// Order is the ordering of a queue query.
type Order int

const (
	// OrderByDue sorts by due, then ordinal, then id.
	OrderByDue Order = iota
	// OrderByID sorts by id only.
	OrderByID
)

// QueueQuery narrows FindByDeckAndQueue and CountDue.
type QueueQuery struct {
	// DueBefore, when set, keeps cards whose raw due value is <= DueBefore.
	DueBefore *int64
	Limit     int
	Order     Order
}

// DueAtMost is a helper for QueueQuery.DueBefore.
func DueAtMost(v int64) *int64 {
	return &v
}

// SearchQuery asks for filtered deck candidates.
type SearchQuery struct {
	Filter domain.Filter
	Order  domain.FilterOrder
	// Limit of 0 means no limit.
	Limit int
	Now   time.Time
	Today int64
}

// CardRepository reads and writes cards.
type CardRepository interface {
	Get(ctx context.Context, id domain.CardID) (domain.Card, error)
	Update(ctx context.Context, card domain.Card) error
	Insert(ctx context.Context, card domain.Card) (domain.CardID, error)
	FindByDeckAndQueue(ctx context.Context, deck domain.DeckID, queue domain.Queue, q QueueQuery) ([]domain.Card, error)
	CountDue(ctx context.Context, deck domain.DeckID, queue domain.Queue, q QueueQuery) (int, error)
	// Siblings returns the other cards of a note.
	Siblings(ctx context.Context, note domain.NoteID, except domain.CardID) ([]domain.Card, error)
	// Search returns home-deck cards that are neither suspended nor buried.
	Search(ctx context.Context, q SearchQuery) ([]domain.Card, error)
	InDeck(ctx context.Context, deck domain.DeckID) ([]domain.Card, error)
	InQueues(ctx context.Context, queues ...domain.Queue) ([]domain.Card, error)
	// MaxNewPosition returns the highest due position of any new card.
	MaxNewPosition(ctx context.Context) (int64, error)
}

// DeckRepository reads decks and their daily study counters.
type DeckRepository interface {
	Get(ctx context.Context, id domain.DeckID) (domain.Deck, error)
	All(ctx context.Context) ([]domain.Deck, error)
	Studied(ctx context.Context, deck domain.DeckID, day int64) (domain.DailyCounts, error)
	AddStudied(ctx context.Context, deck domain.DeckID, day int64, delta domain.DailyCounts) error
}

// ConfigRepository resolves the config preset of a deck.
type ConfigRepository interface {
	GetForDeck(ctx context.Context, deck domain.DeckID) (domain.DeckConfig, error)
}

// ReviewLog is the append-only answer history.
type ReviewLog interface {
	Append(ctx context.Context, entry domain.ReviewLogEntry) error
	ForCard(ctx context.Context, card domain.CardID) ([]domain.ReviewLogEntry, error)
}

// MetaRepository stores small collection-wide integers.
type MetaRepository interface {
	Int(ctx context.Context, key string) (int64, error)
	SetInt(ctx context.Context, key string, value int64) error
}

// Repositories bundles the repositories visible inside or outside a transaction.
type Repositories interface {
	Cards() CardRepository
	Decks() DeckRepository
	Configs() ConfigRepository
	ReviewLog() ReviewLog
	Meta() MetaRepository
}

// TxFn runs inside a transaction. Returning an error rolls it back.
type TxFn func(ctx context.Context, tx Repositories) error

// Store is a transactional set of repositories.
type Store interface {
	Repositories
	RunInTx(ctx context.Context, fn TxFn) error
}
