package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
)

type configRepo struct {
	q querier
}

// GetForDeck returns the config preset a deck points at. A deck whose preset
// row is missing yields domain.ErrNotFound.
func (r configRepo) GetForDeck(ctx context.Context, deck domain.DeckID) (domain.DeckConfig, error) {
	var body string
	err := r.q.QueryRowContext(ctx, `
		SELECT dc.body FROM decks d JOIN deck_configs dc ON dc.id = d.config_id WHERE d.id = ?
	`, deck).Scan(&body)
	if err != nil {
		return domain.DeckConfig{}, notFound(fmt.Sprintf("config of deck %d", deck), fmt.Sprintf("config of deck %d", deck), err)
	}
	var conf domain.DeckConfig
	if err := json.Unmarshal([]byte(body), &conf); err != nil {
		return domain.DeckConfig{}, fmt.Errorf("%w: failed to decode config of deck %d: %v", domain.ErrInvalidConfig, deck, err)
	}
	return conf, nil
}

// SaveConfig inserts or replaces a config preset. The preset is not
// validated here; the scheduler skips decks with invalid presets.
func (db *DB) SaveConfig(ctx context.Context, conf domain.DeckConfig) error {
	body, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to encode config %d: %w", conf.ID, err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO deck_configs (id, name, body) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, body = excluded.body
	`, conf.ID, conf.Name, string(body))
	if err != nil {
		return wrap(fmt.Sprintf("save config %d", conf.ID), err)
	}
	return nil
}
