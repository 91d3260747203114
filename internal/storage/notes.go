package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/store"
)

// Source represents a note source, either a local path or a Git URL.
type Source struct {
	ID          int64
	Path        string
	LastScanned sql.NullTime
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `INSERT INTO sources (path) VALUES (?)`, path)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, wrap("insert source", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, wrap("insert source", err))
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path. It returns nil when the
// source is unknown.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var s Source
	err := db.conn.QueryRowContext(ctx, `SELECT id, path, last_scanned FROM sources WHERE path = ?`, path).
		Scan(&s.ID, &s.Path, &s.LastScanned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(fmt.Sprintf("find source %s", path), err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, path, last_scanned FROM sources ORDER BY id`)
	if err != nil {
		return nil, wrap("list sources", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.LastScanned); err != nil {
			return nil, wrap("scan source", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sources", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned records when a source was last synced.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE sources SET last_scanned = ? WHERE id = ?`, at, sourceID); err != nil {
		return wrap(fmt.Sprintf("update last scanned for source %d", sourceID), err)
	}
	return nil
}

// NotesBySource returns every note imported from a source.
func (db *DB) NotesBySource(ctx context.Context, sourceID int64) ([]domain.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, hash, question, answer, context, reversible, source_id
		FROM notes WHERE source_id = ? ORDER BY id
	`, sourceID)
	if err != nil {
		return nil, wrap(fmt.Sprintf("notes of source %d", sourceID), err)
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.Hash, &n.Question, &n.Answer, &n.Context, &n.Reversible, &n.SourceID); err != nil {
			return nil, wrap("scan note", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(fmt.Sprintf("notes of source %d", sourceID), err)
	}
	return notes, nil
}

// NoteByID retrieves a note.
func (db *DB) NoteByID(ctx context.Context, id domain.NoteID) (domain.Note, error) {
	var n domain.Note
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, hash, question, answer, context, reversible, COALESCE(source_id, 0)
		FROM notes WHERE id = ?
	`, id).Scan(&n.ID, &n.Hash, &n.Question, &n.Answer, &n.Context, &n.Reversible, &n.SourceID)
	if err != nil {
		return domain.Note{}, notFound(fmt.Sprintf("get note %d", id), fmt.Sprintf("note %d", id), err)
	}
	return n, nil
}

// AddNote stores a note and creates its cards in deck, appended to the end
// of the new-card order.
func (db *DB) AddNote(ctx context.Context, note domain.Note, deck domain.DeckID, now time.Time) (domain.NoteID, error) {
	var id domain.NoteID
	err := db.RunInTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		q := tx.(repos).q
		res, err := q.ExecContext(ctx, `
			INSERT INTO notes (hash, question, answer, context, reversible, source_id)
			VALUES (?, ?, ?, ?, ?, ?)
		`, note.Hash, note.Question, note.Answer, note.Context, note.Reversible, nullID(note.SourceID))
		if err != nil {
			return wrap(fmt.Sprintf("insert note %s", note.Hash), err)
		}
		n, err := res.LastInsertId()
		if err != nil {
			return wrap("last insert id for note", err)
		}
		id = domain.NoteID(n)

		pos, err := tx.Cards().MaxNewPosition(ctx)
		if err != nil {
			return err
		}
		for ord := 0; ord < note.CardCount(); ord++ {
			pos++
			card := domain.Card{
				NoteID:  id,
				DeckID:  deck,
				Ordinal: ord,
				Queue:   domain.QueueNew,
				Type:    domain.TypeNew,
				Due:     domain.PositionDue(pos),
			}
			card.Touch(now)
			if _, err := tx.Cards().Insert(ctx, card); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add note %s: %w", note.Hash, err)
	}
	return id, nil
}

// DeleteNote removes a note together with its cards and their history.
func (db *DB) DeleteNote(ctx context.Context, id domain.NoteID) error {
	err := db.RunInTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		q := tx.(repos).q
		stmts := []string{
			`DELETE FROM revlog WHERE card_id IN (SELECT id FROM cards WHERE note_id = ?)`,
			`DELETE FROM cards WHERE note_id = ?`,
			`DELETE FROM notes WHERE id = ?`,
		}
		for _, s := range stmts {
			if _, err := q.ExecContext(ctx, s, id); err != nil {
				return wrap(fmt.Sprintf("delete note %d", id), err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete note %d: %w", id, err)
	}
	return nil
}

// CardsOfNote returns the cards generated from a note.
func (db *DB) CardsOfNote(ctx context.Context, id domain.NoteID) ([]domain.Card, error) {
	return db.Cards().Siblings(ctx, id, 0)
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
