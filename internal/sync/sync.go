// Package sync reconciles card sources with the store: new notes get new
// cards at the end of the new-card order, vanished notes are deleted.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/knolsched/internal/clock"
	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/gitsource"
	"github.com/conorfennell/knolsched/internal/knol"
	"github.com/conorfennell/knolsched/internal/parser"
	"github.com/conorfennell/knolsched/internal/storage"
)

// Options configure Run.
type Options struct {
	// ReposDir holds the clones of git sources.
	ReposDir string
	Clock    clock.Clock
	Logger   *slog.Logger
	// Progress receives git clone and pull output. It may be nil.
	Progress io.Writer
}

// Report summarises one sync.
type Report struct {
	Sources int     `json:"sources"`
	Added   int     `json:"added"`
	Deleted int     `json:"deleted"`
	Errors  []error `json:"-"`
}

// AddSource registers a local directory or a git URL. Local paths are
// stored absolute.
func AddSource(ctx context.Context, db *storage.DB, path string) (int64, error) {
	if !gitsource.IsRemote(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve source path: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return 0, fmt.Errorf("failed to read source: %w", err)
		}
		if !info.IsDir() {
			return 0, fmt.Errorf("%w: source %s is not a directory", domain.ErrInvalidInput, abs)
		}
		path = abs
	}
	existing, err := db.FindSourceByPath(ctx, path)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}
	return db.InsertSource(ctx, path)
}

// Run syncs every registered source. Failures of single sources are
// logged and collected in the report; only failures that stop the whole
// run are returned.
func Run(ctx context.Context, db *storage.DB, opts Options) (Report, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Starting sync process for all sources...")
	sources, err := db.GetAllSources(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to get sources: %w", err)
	}
	var report Report
	if len(sources) == 0 {
		logger.Info("No sources configured. Add one with knolsched add-source <path/or/url.git>")
		return report, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logger.Info("Syncing source", "id", source.ID, "path", source.Path)

		root := source.Path
		if gitsource.IsRemote(source.Path) {
			local, err := gitsource.LocalPath(opts.ReposDir, source.Path)
			if err == nil {
				err = os.MkdirAll(filepath.Dir(local), 0o755)
			}
			if err == nil {
				err = gitsource.Sync(ctx, source.Path, local, opts.Progress)
			}
			if err != nil {
				logger.Error("Error syncing git repo", "url", source.Path, "error", err)
				report.Errors = append(report.Errors, err)
				continue
			}
			root = local
		}

		r := reconciler{db: db, source: source, root: root, logger: logger, now: opts.Clock}
		if err := r.run(ctx); err != nil {
			logger.Error("Error reconciling source", "path", source.Path, "error", err)
			report.Errors = append(report.Errors, err)
		}
		report.Sources++
		report.Added += r.added
		report.Deleted += r.deleted
		report.Errors = append(report.Errors, r.errs...)
	}

	logger.Info("Sync process complete.",
		"sources", report.Sources,
		"added", report.Added,
		"deleted", report.Deleted,
		"errors", len(report.Errors),
	)
	return report, nil
}

type reconciler struct {
	db     *storage.DB
	source storage.Source
	root   string
	logger *slog.Logger
	now    clock.Clock

	added   int
	deleted int
	errs    []error
}

// deckName maps a file below root to source::dir::file.
func deckName(root, path string) string {
	parts := []string{filepath.Base(filepath.Clean(root))}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	parts = append(parts, strings.Split(filepath.ToSlash(rel), "/")...)
	return strings.Join(parts, domain.DeckSeparator)
}

func (r *reconciler) run(ctx context.Context) error {
	existing, err := r.db.NotesBySource(ctx, r.source.ID)
	if err != nil {
		return fmt.Errorf("failed to load notes of source %d: %w", r.source.ID, err)
	}
	known := make(map[string]domain.Note, len(existing))
	for _, n := range existing {
		known[n.Hash] = n
	}
	seen := make(map[string]bool)

	walkErr := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}
		notes, err := parser.ParseFile(path)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("parsing %s: %w", path, err))
			return nil
		}
		for _, note := range notes {
			if err := r.addNote(ctx, deckName(r.root, path), note, known, seen); err != nil {
				r.errs = append(r.errs, err)
			}
		}
		return ctx.Err()
	})
	if walkErr != nil {
		return fmt.Errorf("failed to walk %s: %w", r.root, walkErr)
	}

	for hash, note := range known {
		if seen[hash] {
			continue
		}
		r.logger.Info("Orphaned note, deleting", "hash", hash)
		if err := r.db.DeleteNote(ctx, note.ID); err != nil {
			r.logger.Warn("Failed to delete orphaned note", "hash", hash, "error", err)
			r.errs = append(r.errs, err)
			continue
		}
		r.deleted++
	}

	if err := r.db.UpdateSourceLastScanned(ctx, r.source.ID, r.now.Now()); err != nil {
		r.logger.Warn("Failed to update last scanned for source", "source_id", r.source.ID, "error", err)
	}
	r.logger.Info("Reconciliation complete",
		"path", r.root,
		"added", r.added,
		"deleted", r.deleted,
		"errors", len(r.errs),
	)
	return nil
}

var errDuplicate = errors.New("duplicate note")

func (r *reconciler) addNote(ctx context.Context, deck string, note domain.Note, known map[string]domain.Note, seen map[string]bool) error {
	note.Hash = knol.Hash(note)
	note.SourceID = r.source.ID
	if seen[note.Hash] {
		return fmt.Errorf("%w in %s: %q", errDuplicate, deck, note.Question)
	}
	seen[note.Hash] = true
	if _, ok := known[note.Hash]; ok {
		return nil
	}

	deckID, err := r.db.EnsureDeck(ctx, deck)
	if err != nil {
		return err
	}
	r.logger.Info("New note found, inserting...", "hash", note.Hash, "deck", deck)
	if _, err := r.db.AddNote(ctx, note, deckID, r.now.Now()); err != nil {
		return err
	}
	r.added++
	return nil
}
