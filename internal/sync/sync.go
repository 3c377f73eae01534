// Package sync loads decks from the configured sources into storage.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/coursedeck/internal/domain"
	"github.com/conorfennell/coursedeck/internal/gitsource"
	"github.com/conorfennell/coursedeck/internal/knol"
	"github.com/conorfennell/coursedeck/internal/parser"
	"github.com/conorfennell/coursedeck/internal/storage"
)

// Store is the part of storage the syncer writes to.
type Store interface {
	InsertSource(ctx context.Context, path, sourceType string) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (*storage.Source, error)
	GetAllSources(ctx context.Context) ([]storage.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64) error
	ReplaceDeck(ctx context.Context, sourceID int64, name string, cards []domain.Card) (int, error)
	DeleteStaleDecks(ctx context.Context, sourceID int64, keep []string) (int, error)
}

// Report summarizes one sync run.
type Report struct {
	Sources int
	Decks   int
	Cards   int
	Removed int
	Errors  []error
}

// Syncer reconciles sources with stored decks. Runs never overlap.
type Syncer struct {
	db       Store
	log      *slog.Logger
	reposDir string
	running  chan struct{}
}

// New creates a syncer that checks git sources out under reposDir.
func New(db Store, reposDir string, log *slog.Logger) *Syncer {
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		db:       db,
		log:      log.With("component", "sync"),
		reposDir: reposDir,
		running:  make(chan struct{}, 1),
	}
}

// AddSource registers a local directory or git URL. Adding a known path
// returns the existing source.
func (s *Syncer) AddSource(ctx context.Context, path string) (*storage.Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("source path cannot be empty")
	}

	sourceType := storage.SourceLocal
	if gitsource.IsURL(path) {
		sourceType = storage.SourceGit
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		path = abs
	}

	existing, err := s.db.FindSourceByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	id, err := s.db.InsertSource(ctx, path, sourceType)
	if err != nil {
		return nil, err
	}
	s.log.Info("source added", "id", id, "type", sourceType, "path", path)
	return &storage.Source{ID: id, Path: path, Type: sourceType}, nil
}

// Run iterates over all sources and reconciles them.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.log.Info("starting sync for all sources")
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	report := &Report{Sources: len(sources)}
	if len(sources) == 0 {
		s.log.Info("no sources configured, add one with --add-source <path/or/url.git>")
		return report, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.log.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		root := source.Path
		if source.Type == storage.SourceGit {
			root, err = s.checkout(ctx, source.Path)
			if err != nil {
				report.Errors = append(report.Errors, err)
				s.log.Error("error syncing git repo", "url", source.Path, "error", err)
				continue
			}
		}
		s.reconcile(ctx, source.ID, root, report)
	}

	s.log.Info("sync complete",
		"sources", report.Sources,
		"decks", report.Decks,
		"cards", report.Cards,
		"removed_decks", report.Removed,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *Syncer) checkout(ctx context.Context, repoURL string) (string, error) {
	localPath, err := gitsource.LocalPath(s.reposDir, repoURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create repos directory: %w", err)
	}
	if err := gitsource.Sync(ctx, s.log, repoURL, localPath); err != nil {
		return "", err
	}
	return localPath, nil
}

// reconcile replaces every deck found under root and drops decks of the
// source whose files are gone.
func (s *Syncer) reconcile(ctx context.Context, sourceID int64, root string, report *Report) {
	var found []string

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !parser.IsDeckFile(path) {
			return nil
		}

		name := DeckName(root, path)
		cards, err := parser.ParseFile(path)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("parsing %s: %w", path, err))
			return nil
		}
		if len(cards) == 0 {
			return nil
		}

		stored, err := s.db.ReplaceDeck(ctx, sourceID, name, knol.Stamp(cards))
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("storing deck %s: %w", name, err))
			return nil
		}
		found = append(found, name)
		report.Decks++
		report.Cards += stored
		return nil
	})
	if walkErr != nil {
		report.Errors = append(report.Errors, fmt.Errorf("walking %s: %w", root, walkErr))
		s.log.Error("error walking directory", "path", root, "error", walkErr)
		return
	}

	removed, err := s.db.DeleteStaleDecks(ctx, sourceID, found)
	if err != nil {
		report.Errors = append(report.Errors, err)
		s.log.Warn("failed to delete stale decks", "source_id", sourceID, "error", err)
	}
	report.Removed += removed

	if err := s.db.UpdateSourceLastScanned(ctx, sourceID); err != nil {
		s.log.Warn("failed to update last scanned for source", "source_id", sourceID, "error", err)
	}
}

// DeckName is the deck file's path relative to root, without extension,
// using forward slashes.
func DeckName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.ToSlash(rel)
}
