package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/coursedeck/internal/domain"
)

// Normalize returns the canonical form of a card's question: trimmed, with
// CRLF line endings folded to LF. Case is significant.
// Answer and context do not take part, so editing an answer keeps the
// card's progress.
func Normalize(card domain.Card) string {
	q := strings.ReplaceAll(card.Question, "\r\n", "\n")
	return strings.TrimSpace(q)
}

// Hash takes a card, normalizes its question, and returns the SHA-256 hash
// as a hex string. The result is the card identity used for progress.
func Hash(card domain.Card) string {
	normalized := Normalize(card)
	hashBytes := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", hashBytes)
}

// Stamp fills in the Hash field of every card and returns the slice.
func Stamp(cards []domain.Card) []domain.Card {
	for i := range cards {
		cards[i].Hash = Hash(cards[i])
	}
	return cards
}
