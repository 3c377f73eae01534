package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Source types.
const (
	SourceLocal = "local"
	SourceGit   = "git"
)

// Source represents a deck source, either a local path or a Git URL.
type Source struct {
	ID          int64        `db:"id"`
	Path        string       `db:"path"`
	Type        string       `db:"type"`
	LastScanned sql.NullTime `db:"last_scanned"`
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(ctx context.Context, path, sourceType string) (int64, error) {
	var id int64
	err := db.conn.GetContext(ctx, &id, db.conn.Rebind(`
		INSERT INTO sources (path, type) VALUES (?, ?)
		RETURNING id
	`), path, sourceType)
	if err != nil {
		return 0, unavailable(fmt.Sprintf("insert source %s", path), err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var s Source
	err := db.conn.GetContext(ctx, &s, db.conn.Rebind(`
		SELECT id, path, type, last_scanned FROM sources WHERE path = ?
	`), path)
	if isNoRows(err) {
		return nil, nil // Source not found
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("find source by path %s", path), err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	var sources []Source
	err := db.conn.SelectContext(ctx, &sources, `
		SELECT id, path, type, last_scanned FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, unavailable("get all sources", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64) error {
	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(`
		UPDATE sources SET last_scanned = ? WHERE id = ?
	`), time.Now().UTC(), sourceID)
	if err != nil {
		return unavailable(fmt.Sprintf("update last scanned for source ID %d", sourceID), err)
	}
	return nil
}

// DeleteSource removes a source together with its decks.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		var decks []int64
		if err := tx.SelectContext(ctx, &decks, tx.Rebind(`SELECT id FROM decks WHERE source_id = ?`), sourceID); err != nil {
			return unavailable("find decks of source", err)
		}
		if len(decks) > 0 {
			if err := deleteDecks(ctx, tx, decks); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sources WHERE id = ?`), sourceID); err != nil {
			return unavailable(fmt.Sprintf("delete source %d", sourceID), err)
		}
		return nil
	})
}
