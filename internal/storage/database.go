// Package storage is the SQLite implementation of the store interfaces.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/store"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
	repos
}

var _ store.Store = (*DB)(nil)

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases shared between queries.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	db := &DB{conn: conn, repos: repos{q: conn}}
	if err := db.seedDefaultConfig(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) seedDefaultConfig() error {
	conf := domain.DefaultDeckConfig()
	body, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	_, err = db.conn.Exec(`INSERT OR IGNORE INTO deck_configs (id, name, body) VALUES (?, ?, ?)`,
		conf.ID, conf.Name, string(body))
	if err != nil {
		return fmt.Errorf("failed to seed default config: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a transaction. The transaction is committed if fn
// returns nil and rolled back otherwise; fn's error is returned unchanged.
func (db *DB) RunInTx(ctx context.Context, fn store.TxFn) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrap("begin transaction", err)
	}

	if err := fn(ctx, repos{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, wrap("rollback", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrap("commit", err)
	}
	return nil
}

// repos implements store.Repositories over a connection or a transaction.
type repos struct {
	q querier
}

func (r repos) Cards() store.CardRepository     { return cardRepo{q: r.q} }
func (r repos) Decks() store.DeckRepository     { return deckRepo{q: r.q} }
func (r repos) Configs() store.ConfigRepository { return configRepo{q: r.q} }
func (r repos) ReviewLog() store.ReviewLog      { return revlogRepo{q: r.q} }
func (r repos) Meta() store.MetaRepository      { return metaRepo{q: r.q} }

// wrap turns a driver error into a *domain.StoreError.
func wrap(op string, err error) error {
	return &domain.StoreError{Op: op, Err: err}
}

// notFound maps sql.ErrNoRows to domain.ErrNotFound and wraps anything else.
func notFound(op string, what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return wrap(op, err)
}
