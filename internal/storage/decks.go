package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/coursedeck/internal/domain"
)

// DeckSummary describes a deck without its cards.
type DeckSummary struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	SourceID  int64  `db:"source_id"`
	CardCount int    `db:"card_count"`
}

// Key is the reference used to address the deck in ListCards and FindCard.
// Names repeat across sources; keys do not.
func (d DeckSummary) Key() string {
	return strconv.FormatInt(d.ID, 10)
}

func parseDeckKey(deck string) (int64, bool) {
	id, err := strconv.ParseInt(deck, 10, 64)
	return id, err == nil && id > 0
}

type cardRow struct {
	Hash     string `db:"hash"`
	Question string `db:"question"`
	Answer   string `db:"answer"`
	Context  string `db:"context"`
}

func (r cardRow) card() domain.Card {
	return domain.Card{Question: r.Question, Answer: r.Answer, Context: r.Context, Hash: r.Hash}
}

// ListCards returns the cards of the deck with the given key in file order.
// An unknown deck has no cards.
func (db *DB) ListCards(ctx context.Context, deck string) ([]domain.Card, error) {
	id, ok := parseDeckKey(deck)
	if !ok {
		return []domain.Card{}, nil
	}
	var rows []cardRow
	err := db.conn.SelectContext(ctx, &rows, db.conn.Rebind(`
		SELECT hash, question, answer, context
		FROM cards
		WHERE deck_id = ?
		ORDER BY position
	`), id)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("list cards of deck %s", deck), err)
	}

	cards := make([]domain.Card, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, r.card())
	}
	return cards, nil
}

// FindCard returns a card of deck by its hash, or nil if there is none.
func (db *DB) FindCard(ctx context.Context, deck, hash string) (*domain.Card, error) {
	id, ok := parseDeckKey(deck)
	if !ok {
		return nil, nil
	}
	var row cardRow
	err := db.conn.GetContext(ctx, &row, db.conn.Rebind(`
		SELECT hash, question, answer, context
		FROM cards
		WHERE deck_id = ? AND hash = ?
	`), id, hash)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(fmt.Sprintf("find card %s", hash), err)
	}
	card := row.card()
	return &card, nil
}

// ListDecks returns every deck ordered by name, then source.
func (db *DB) ListDecks(ctx context.Context) ([]DeckSummary, error) {
	var decks []DeckSummary
	err := db.conn.SelectContext(ctx, &decks, `
		SELECT d.id, d.name, d.source_id, COUNT(c.hash) AS card_count
		FROM decks d LEFT JOIN cards c ON c.deck_id = d.id
		GROUP BY d.id, d.name, d.source_id
		ORDER BY d.name, d.source_id
	`)
	if err != nil {
		return nil, unavailable("list decks", err)
	}
	return decks, nil
}

// ReplaceDeck creates or overwrites the deck name of sourceID with cards and
// returns how many cards were stored. Cards must carry their hash; repeated
// hashes keep the first occurrence.
func (db *DB) ReplaceDeck(ctx context.Context, sourceID int64, name string, cards []domain.Card) (int, error) {
	stored := 0
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		var deckID int64
		err := tx.GetContext(ctx, &deckID, tx.Rebind(`
			INSERT INTO decks (name, source_id) VALUES (?, ?)
			ON CONFLICT (source_id, name) DO UPDATE SET name = excluded.name
			RETURNING id
		`), name, sourceID)
		if err != nil {
			return unavailable(fmt.Sprintf("upsert deck %s", name), err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cards WHERE deck_id = ?`), deckID); err != nil {
			return unavailable(fmt.Sprintf("clear deck %s", name), err)
		}

		seen := make(map[string]bool, len(cards))
		insert := tx.Rebind(`
			INSERT INTO cards (deck_id, hash, position, question, answer, context)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		for i, c := range cards {
			if c.Hash == "" {
				return fmt.Errorf("card %q in deck %s has no hash", c.Question, name)
			}
			if seen[c.Hash] {
				db.log.Warn("duplicate question in deck, keeping first", "deck", name, "hash", c.Hash)
				continue
			}
			seen[c.Hash] = true
			if _, err := tx.ExecContext(ctx, insert, deckID, c.Hash, i, c.Question, c.Answer, c.Context); err != nil {
				return unavailable(fmt.Sprintf("insert card %s", c.Hash), err)
			}
			stored++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

// DeleteStaleDecks removes the decks of sourceID whose names are not in
// keep, and returns how many were removed. Progress is left untouched.
func (db *DB) DeleteStaleDecks(ctx context.Context, sourceID int64, keep []string) (int, error) {
	var stale []int64
	query, args := `SELECT id FROM decks WHERE source_id = ?`, []any{sourceID}
	if len(keep) > 0 {
		var err error
		query, args, err = sqlx.In(`SELECT id FROM decks WHERE source_id = ? AND name NOT IN (?)`, sourceID, keep)
		if err != nil {
			return 0, fmt.Errorf("failed to build stale deck query: %w", err)
		}
	}
	if err := db.conn.SelectContext(ctx, &stale, db.conn.Rebind(query), args...); err != nil {
		return 0, unavailable("find stale decks", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		return deleteDecks(ctx, tx, stale)
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

func deleteDecks(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	for _, stmt := range []string{
		`DELETE FROM cards WHERE deck_id IN (?)`,
		`DELETE FROM decks WHERE id IN (?)`,
	} {
		query, args, err := sqlx.In(stmt, ids)
		if err != nil {
			return fmt.Errorf("failed to build delete query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return unavailable("delete decks", err)
		}
	}
	return nil
}
