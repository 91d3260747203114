package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/store"
)

const cardColumns = `c.id, c.note_id, c.deck_id, c.ord, c.queue, c.type, c.due_kind, c.due,
	c.ivl, c.factor, c.reps, c.lapses, c.steps_remaining, c.steps_total,
	c.original_deck_id, c.original_due_kind, c.original_due, c.mod`

type cardRepo struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (domain.Card, error) {
	var (
		c            domain.Card
		origDeck     int64
		origDueKind  int
		origDueValue int64
	)
	err := s.Scan(
		&c.ID, &c.NoteID, &c.DeckID, &c.Ordinal, &c.Queue, &c.Type, &c.Due.Kind, &c.Due.Value,
		&c.Interval, &c.EaseFactor, &c.Reps, &c.Lapses, &c.Progress.Remaining, &c.Progress.Total,
		&origDeck, &origDueKind, &origDueValue, &c.Mod,
	)
	if err != nil {
		return c, err
	}
	if origDeck != 0 {
		c.Filtered = &domain.FilteredContext{
			OriginalDeck: domain.DeckID(origDeck),
			OriginalDue:  domain.Due{Kind: domain.DueKind(origDueKind), Value: origDueValue},
		}
	}
	return c, nil
}

func filteredColumns(c domain.Card) (deck int64, kind int, value int64) {
	if c.Filtered == nil {
		return 0, 0, 0
	}
	return int64(c.Filtered.OriginalDeck), int(c.Filtered.OriginalDue.Kind), c.Filtered.OriginalDue.Value
}

// collectCards drains rows so the connection is free before the caller
// issues another query.
func collectCards(rows *sql.Rows, op string) ([]domain.Card, error) {
	defer rows.Close()
	var cards []domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return cards, nil
}

// Get retrieves a card by its ID.
func (r cardRepo) Get(ctx context.Context, id domain.CardID) (domain.Card, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards c WHERE c.id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		return domain.Card{}, notFound(fmt.Sprintf("get card %d", id), fmt.Sprintf("card %d", id), err)
	}
	return c, nil
}

// Insert stores a new card and returns its ID.
func (r cardRepo) Insert(ctx context.Context, c domain.Card) (domain.CardID, error) {
	origDeck, origKind, origDue := filteredColumns(c)
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO cards (note_id, deck_id, ord, queue, type, due_kind, due, ivl, factor, reps, lapses,
			steps_remaining, steps_total, original_deck_id, original_due_kind, original_due, mod)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.NoteID, c.DeckID, c.Ordinal, c.Queue, c.Type, c.Due.Kind, c.Due.Value, c.Interval, c.EaseFactor,
		c.Reps, c.Lapses, c.Progress.Remaining, c.Progress.Total, origDeck, origKind, origDue, c.Mod,
	)
	if err != nil {
		return 0, wrap(fmt.Sprintf("insert card for note %d", c.NoteID), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("last insert id for card", err)
	}
	return domain.CardID(id), nil
}

// Update writes every scheduling field of an existing card.
func (r cardRepo) Update(ctx context.Context, c domain.Card) error {
	origDeck, origKind, origDue := filteredColumns(c)
	res, err := r.q.ExecContext(ctx, `
		UPDATE cards
		SET deck_id = ?, queue = ?, type = ?, due_kind = ?, due = ?, ivl = ?, factor = ?, reps = ?, lapses = ?,
			steps_remaining = ?, steps_total = ?, original_deck_id = ?, original_due_kind = ?, original_due = ?, mod = ?
		WHERE id = ?
	`,
		c.DeckID, c.Queue, c.Type, c.Due.Kind, c.Due.Value, c.Interval, c.EaseFactor, c.Reps, c.Lapses,
		c.Progress.Remaining, c.Progress.Total, origDeck, origKind, origDue, c.Mod,
		c.ID,
	)
	if err != nil {
		return wrap(fmt.Sprintf("update card %d", c.ID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(fmt.Sprintf("update card %d", c.ID), err)
	}
	if n == 0 {
		return fmt.Errorf("card %d: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

func queueWhere(deck domain.DeckID, queue domain.Queue, q store.QueueQuery) (string, []any) {
	where := `c.deck_id = ? AND c.queue = ?`
	args := []any{deck, queue}
	if q.DueBefore != nil {
		where += ` AND c.due <= ?`
		args = append(args, *q.DueBefore)
	}
	return where, args
}

func limitValue(n int) int {
	if n <= 0 {
		return -1 // no limit
	}
	return n
}

// FindByDeckAndQueue lists the cards of one deck and queue.
func (r cardRepo) FindByDeckAndQueue(ctx context.Context, deck domain.DeckID, queue domain.Queue, q store.QueueQuery) ([]domain.Card, error) {
	where, args := queueWhere(deck, queue, q)
	order := `c.due, c.ord, c.id`
	if q.Order == store.OrderByID {
		order = `c.id`
	}
	args = append(args, limitValue(q.Limit))
	op := fmt.Sprintf("find cards in deck %d queue %s", deck, queue)
	rows, err := r.q.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards c WHERE `+where+` ORDER BY `+order+` LIMIT ?`, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	return collectCards(rows, op)
}

// CountDue counts the cards FindByDeckAndQueue would return, up to q.Limit.
func (r cardRepo) CountDue(ctx context.Context, deck domain.DeckID, queue domain.Queue, q store.QueueQuery) (int, error) {
	where, args := queueWhere(deck, queue, q)
	args = append(args, limitValue(q.Limit))
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM (SELECT 1 FROM cards c WHERE `+where+` LIMIT ?)`, args...).Scan(&n)
	if err != nil {
		return 0, wrap(fmt.Sprintf("count cards in deck %d queue %s", deck, queue), err)
	}
	return n, nil
}

// Siblings returns the other cards generated from the same note.
func (r cardRepo) Siblings(ctx context.Context, note domain.NoteID, except domain.CardID) ([]domain.Card, error) {
	op := fmt.Sprintf("siblings of card %d", except)
	rows, err := r.q.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards c WHERE c.note_id = ? AND c.id != ? ORDER BY c.ord, c.id`, note, except)
	if err != nil {
		return nil, wrap(op, err)
	}
	return collectCards(rows, op)
}

// InDeck returns every card currently in a deck.
func (r cardRepo) InDeck(ctx context.Context, deck domain.DeckID) ([]domain.Card, error) {
	op := fmt.Sprintf("cards in deck %d", deck)
	rows, err := r.q.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards c WHERE c.deck_id = ? ORDER BY c.id`, deck)
	if err != nil {
		return nil, wrap(op, err)
	}
	return collectCards(rows, op)
}

// InQueues returns every card in any of the given queues.
func (r cardRepo) InQueues(ctx context.Context, queues ...domain.Queue) ([]domain.Card, error) {
	if len(queues) == 0 {
		return nil, nil
	}
	args := make([]any, len(queues))
	for i, q := range queues {
		args[i] = q
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(queues)), ", ")
	op := "cards in queues"
	rows, err := r.q.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards c WHERE c.queue IN (`+placeholders+`) ORDER BY c.id`, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	return collectCards(rows, op)
}

// MaxNewPosition returns the highest position held by a new card, including
// positions saved by filtered decks.
func (r cardRepo) MaxNewPosition(ctx context.Context) (int64, error) {
	var pos int64
	err := r.q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(v), 0) FROM (
			SELECT MAX(due) AS v FROM cards WHERE type = ? AND due_kind = ? AND original_deck_id = 0
			UNION ALL
			SELECT MAX(original_due) AS v FROM cards WHERE type = ? AND original_due_kind = ? AND original_deck_id != 0
		)
	`, domain.TypeNew, domain.DuePosition, domain.TypeNew, domain.DuePosition).Scan(&pos)
	if err != nil {
		return 0, wrap("max new position", err)
	}
	return pos, nil
}
