package storage

import (
	"context"
	"time"

	"github.com/conorfennell/coursedeck/internal/progress"
)

var (
	_ progress.Store        = (*DB)(nil)
	_ progress.AtomicScorer = (*DB)(nil)
)

// Get returns the score recorded for (user, cardID).
func (db *DB) Get(ctx context.Context, user, cardID string) (int, bool, error) {
	var score int
	err := db.conn.GetContext(ctx, &score, db.conn.Rebind(`
		SELECT score FROM progress WHERE user_id = ? AND card_hash = ?
	`), user, cardID)
	if isNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("read progress", err)
	}
	return score, true, nil
}

// Put records score for (user, cardID), creating the entry if needed.
func (db *DB) Put(ctx context.Context, user, cardID string, score int) error {
	_, err := db.conn.ExecContext(ctx, db.conn.Rebind(`
		INSERT INTO progress (user_id, card_hash, score, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, card_hash) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at
	`), user, cardID, progress.Clamp(score), time.Now().UTC())
	if err != nil {
		return unavailable("write progress", err)
	}
	return nil
}

// LoadAll returns every score recorded for user.
func (db *DB) LoadAll(ctx context.Context, user string) (progress.Snapshot, error) {
	var rows []struct {
		CardHash string `db:"card_hash"`
		Score    int    `db:"score"`
	}
	err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(`
		SELECT card_hash, score FROM progress WHERE user_id = ?
	`), user)
	if err != nil {
		return nil, unavailable("load progress", err)
	}

	snap := make(progress.Snapshot, len(rows))
	for _, r := range rows {
		snap[r.CardHash] = r.Score
	}
	return snap, nil
}

// ApplyVote increments or resets a score in a single upsert statement, so
// concurrent votes from several processes cannot lose an update.
func (db *DB) ApplyVote(ctx context.Context, user, cardID string, known bool) (int, error) {
	query := `
		INSERT INTO progress (user_id, card_hash, score, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, card_hash) DO UPDATE SET
			score = CASE WHEN progress.score >= ? THEN ? ELSE progress.score + 1 END,
			updated_at = excluded.updated_at
		RETURNING score
	`
	args := []any{user, cardID, progress.NextScore(progress.MinScore, true), time.Now().UTC(), progress.MaxScore, progress.MaxScore}
	if !known {
		query = `
			INSERT INTO progress (user_id, card_hash, score, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, card_hash) DO UPDATE SET
				score = excluded.score,
				updated_at = excluded.updated_at
			RETURNING score
		`
		args = []any{user, cardID, progress.MinScore, time.Now().UTC()}
	}

	var score int
	if err := db.conn.GetContext(ctx, &score, db.conn.Rebind(query), args...); err != nil {
		return 0, unavailable("apply vote", err)
	}
	return score, nil
}
