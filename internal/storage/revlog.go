package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
)

type revlogRepo struct {
	q querier
}

// Append writes one review log entry. Entries are never updated.
func (r revlogRepo) Append(ctx context.Context, e domain.ReviewLogEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO revlog (id, card_id, reviewed_at, ease, ivl, last_ivl, factor, time_taken, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID.String(), e.CardID, e.ReviewedAt.UnixMilli(), e.Ease,
		int64(e.Interval/time.Second), int64(e.LastInterval/time.Second),
		e.EaseFactor, e.TimeTaken.Milliseconds(), e.Kind,
	)
	if err != nil {
		return wrap(fmt.Sprintf("append review of card %d", e.CardID), err)
	}
	return nil
}

// ForCard returns a card's review history, oldest first.
func (r revlogRepo) ForCard(ctx context.Context, card domain.CardID) ([]domain.ReviewLogEntry, error) {
	op := fmt.Sprintf("reviews of card %d", card)
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, card_id, reviewed_at, ease, ivl, last_ivl, factor, time_taken, kind
		FROM revlog WHERE card_id = ? ORDER BY reviewed_at, rowid
	`, card)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	var entries []domain.ReviewLogEntry
	for rows.Next() {
		var (
			e                         domain.ReviewLogEntry
			at, ivl, lastIvl, takenMs int64
		)
		if err := rows.Scan(&e.ID, &e.CardID, &at, &e.Ease, &ivl, &lastIvl, &e.EaseFactor, &takenMs, &e.Kind); err != nil {
			return nil, wrap(op, err)
		}
		e.ReviewedAt = time.UnixMilli(at)
		e.Interval = time.Duration(ivl) * time.Second
		e.LastInterval = time.Duration(lastIvl) * time.Second
		e.TimeTaken = time.Duration(takenMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return entries, nil
}
