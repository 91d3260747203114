package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

type deckRepo struct {
	q querier
}

func scanDeck(s scanner) (domain.Deck, error) {
	var (
		d        domain.Deck
		filtered sql.NullString
	)
	if err := s.Scan(&d.ID, &d.Name, &d.ConfigID, &filtered); err != nil {
		return d, err
	}
	if filtered.Valid {
		var opts domain.FilteredDeck
		if err := json.Unmarshal([]byte(filtered.String), &opts); err != nil {
			return d, fmt.Errorf("failed to decode filtered options of deck %d: %w", d.ID, err)
		}
		d.Filtered = &opts
	}
	return d, nil
}

// Get retrieves a deck by its ID.
func (r deckRepo) Get(ctx context.Context, id domain.DeckID) (domain.Deck, error) {
	row := r.q.QueryRowContext(ctx, `SELECT id, name, config_id, filtered FROM decks WHERE id = ?`, id)
	d, err := scanDeck(row)
	if err != nil {
		return domain.Deck{}, notFound(fmt.Sprintf("get deck %d", id), fmt.Sprintf("deck %d", id), err)
	}
	return d, nil
}

// All returns every deck ordered by name, so parents come before children.
func (r deckRepo) All(ctx context.Context) ([]domain.Deck, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, config_id, filtered FROM decks ORDER BY name`)
	if err != nil {
		return nil, wrap("list decks", err)
	}
	defer rows.Close()

	var decks []domain.Deck
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, wrap("list decks", err)
		}
		decks = append(decks, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list decks", err)
	}
	return decks, nil
}

// Studied returns the cards studied in a deck on a day.
func (r deckRepo) Studied(ctx context.Context, deck domain.DeckID, day int64) (domain.DailyCounts, error) {
	var c domain.DailyCounts
	err := r.q.QueryRowContext(ctx, `
		SELECT new_count, review_count FROM deck_counters WHERE deck_id = ? AND day = ?
	`, deck, day).Scan(&c.New, &c.Review)
	if err == sql.ErrNoRows {
		return domain.DailyCounts{}, nil
	}
	if err != nil {
		return c, wrap(fmt.Sprintf("studied counts of deck %d", deck), err)
	}
	return c, nil
}

// AddStudied adds delta to a deck's counters for a day.
func (r deckRepo) AddStudied(ctx context.Context, deck domain.DeckID, day int64, delta domain.DailyCounts) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO deck_counters (deck_id, day, new_count, review_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(deck_id, day) DO UPDATE SET
			new_count = new_count + excluded.new_count,
			review_count = review_count + excluded.review_count
	`, deck, day, delta.New, delta.Review)
	if err != nil {
		return wrap(fmt.Sprintf("add studied counts to deck %d", deck), err)
	}
	return nil
}

// EnsureDeck returns the ID of the home deck with the given name, creating
// it and any missing parents.
func (db *DB) EnsureDeck(ctx context.Context, name string) (domain.DeckID, error) {
	d := domain.Deck{Name: name}
	var id domain.DeckID
	for _, n := range append(d.ParentNames(), name) {
		_, err := db.conn.ExecContext(ctx, `INSERT OR IGNORE INTO decks (name, config_id) VALUES (?, ?)`, n, domain.DefaultConfigID)
		if err != nil {
			return 0, wrap(fmt.Sprintf("create deck %q", n), err)
		}
		if err := db.conn.QueryRowContext(ctx, `SELECT id FROM decks WHERE name = ?`, n).Scan(&id); err != nil {
			return 0, wrap(fmt.Sprintf("find deck %q", n), err)
		}
	}
	return id, nil
}

// DeckByName retrieves a deck by its full name.
func (db *DB) DeckByName(ctx context.Context, name string) (domain.Deck, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT id, name, config_id, filtered FROM decks WHERE name = ?`, name)
	d, err := scanDeck(row)
	if err != nil {
		return domain.Deck{}, notFound(fmt.Sprintf("get deck %q", name), fmt.Sprintf("deck %q", name), err)
	}
	return d, nil
}

// CreateFilteredDeck creates a filtered deck with the given options.
func (db *DB) CreateFilteredDeck(ctx context.Context, name string, opts domain.FilteredDeck) (domain.DeckID, error) {
	body, err := json.Marshal(opts)
	if err != nil {
		return 0, fmt.Errorf("failed to encode filtered options: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, `INSERT INTO decks (name, config_id, filtered) VALUES (?, ?, ?)`,
		name, domain.DefaultConfigID, string(body))
	if err != nil {
		return 0, wrap(fmt.Sprintf("create filtered deck %q", name), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("last insert id for deck", err)
	}
	return domain.DeckID(id), nil
}

// SetDeckConfig points a deck at a config preset.
func (db *DB) SetDeckConfig(ctx context.Context, deck domain.DeckID, conf domain.ConfigID) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE decks SET config_id = ? WHERE id = ?`, conf, deck); err != nil {
		return wrap(fmt.Sprintf("set config of deck %d", deck), err)
	}
	return nil
}
