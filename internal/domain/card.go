package domain

import (
	"fmt"
	"strings"
)

// Card represents a single question-answer-context entry.
// Hash is the card's identity and is derived from the question alone.
type Card struct {
	Question string
	Answer   string
	Context  string
	Hash     string
}

// Deck is a named, ordered collection of cards.
type Deck struct {
	ID       int64
	Name     string
	SourceID int64
	Cards    []Card
}

// Outcome is the result of a single practice vote.
type Outcome string

const (
	Known   Outcome = "known"
	Unknown Outcome = "unknown"
)

// ParseOutcome accepts "known" or "unknown", ignoring case and surrounding space.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(strings.ToLower(strings.TrimSpace(s))); o {
	case Known, Unknown:
		return o, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
	}
}

// IsKnown reports whether the vote counts as a successful recall.
func (o Outcome) IsKnown() bool {
	return o == Known
}
