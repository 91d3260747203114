package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/config"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/storage"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	cfg.Scheduler.Seed = 1
	cfg.Scheduler.Timezone = "UTC"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(ctx, cfg, db, clock.NewManual(testNow), logger)
	require.NoError(t, err)

	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	_, err = db.AddNote(ctx, domain.Note{Hash: "h-hola", Question: "hola", Answer: "hello", Context: "greeting"}, deck, testNow)
	require.NoError(t, err)
	return a
}

func TestStudySession(t *testing.T) {
	a := newTestApp(t)
	var out bytes.Buffer

	err := study(context.Background(), a.sched, a.db, a.clock, strings.NewReader("\n3\n\n3\n"), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[1 new, 0 learning, 0 review]")
	assert.Contains(t, text, "Q: hola")
	assert.Contains(t, text, "A: hello")
	assert.Contains(t, text, "C: greeting")
	assert.Contains(t, text, "Congratulations!")
}

func TestStudyRejectsBadEaseAndQuits(t *testing.T) {
	a := newTestApp(t)
	var out bytes.Buffer

	err := study(context.Background(), a.sched, a.db, a.clock, strings.NewReader("\nx\n9\n1\nq\n"), &out)
	require.NoError(t, err)

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, "Please answer 1, 2, 3 or 4."))
	assert.Equal(t, 2, strings.Count(text, "Q: hola"), "the lapsed card comes straight back")
	assert.NotContains(t, text, "Congratulations!")
}

func TestNewAppSavesDeckDefaults(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	cfg.DeckDefaults.NewPerDay = 7
	_, err = newApp(ctx, cfg, db, clock.NewManual(testNow), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	deck, err := db.EnsureDeck(ctx, "Spanish")
	require.NoError(t, err)
	conf, err := db.Configs().GetForDeck(ctx, deck)
	require.NoError(t, err)
	assert.Equal(t, 7, conf.NewPerDay)

	cfg.DeckDefaults.LearnSteps = nil
	_, err = newApp(ctx, cfg, db, clock.NewManual(testNow), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestRunCommands(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes")
	require.NoError(t, os.MkdirAll(notes, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(notes, "a.md"), []byte("Q: one\nA: 1\n"), 0o644))

	base := []string{"--config", "", "--db", filepath.Join(dir, "test.db"), "--repos-dir", filepath.Join(dir, "repos"), "--log-level", "error"}
	cmd := func(args ...string) (string, error) {
		var out bytes.Buffer
		err := run(ctx, append(append([]string(nil), base...), args...), strings.NewReader(""), &out)
		return out.String(), err
	}

	out, err := cmd("add-source", notes)
	require.NoError(t, err)
	assert.Contains(t, out, notes)

	out, err = cmd("sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Synced 1 sources: 1 notes added, 0 deleted, 0 errors.")

	out, err = cmd("decks")
	require.NoError(t, err)
	assert.Contains(t, out, "notes::a")

	_, err = cmd("filtered", "rebuild", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = cmd("frobnicate")
	assert.ErrorContains(t, err, "unknown command")

	_, err = cmd()
	assert.ErrorContains(t, err, "no command given")

	_, err = cmd("--help")
	assert.NoError(t, err)
}
