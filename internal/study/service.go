// Package study is the practice flow: draw the next card for a user and
// record their votes.
package study

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conorfennell/coursedeck/internal/domain"
	"github.com/conorfennell/coursedeck/internal/progress"
	"github.com/conorfennell/coursedeck/internal/selector"
)

// CardLister supplies the cards of a deck.
type CardLister interface {
	ListCards(ctx context.Context, deck string) ([]domain.Card, error)
}

// Service composes deck content, the progress tracker and the selector.
type Service struct {
	cards    CardLister
	tracker  *progress.Tracker
	selector *selector.Selector
	log      *slog.Logger
}

// NewService wires a practice service.
func NewService(cards CardLister, tracker *progress.Tracker, sel *selector.Selector, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cards:    cards,
		tracker:  tracker,
		selector: sel,
		log:      log.With("component", "study"),
	}
}

// NextCard draws the next card of deck for user. It returns nil when the
// deck has no cards.
func (s *Service) NextCard(ctx context.Context, user, deck string) (*domain.Card, error) {
	cards, err := s.cards.ListCards(ctx, deck)
	if err != nil {
		return nil, fmt.Errorf("list cards of %s: %w", deck, err)
	}
	return s.draw(ctx, user, cards)
}

// RecordVote stores the outcome of user's vote on cardID, then draws the
// next card of deck. A vote for a card outside the deck is still recorded.
func (s *Service) RecordVote(ctx context.Context, user, deck, cardID string, outcome domain.Outcome) (*domain.Card, error) {
	if outcome != domain.Known && outcome != domain.Unknown {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOutcome, outcome)
	}

	score, err := s.tracker.UpdateScore(ctx, user, cardID, outcome.IsKnown())
	if err != nil {
		return nil, err
	}

	cards, err := s.cards.ListCards(ctx, deck)
	if err != nil {
		return nil, fmt.Errorf("list cards of %s: %w", deck, err)
	}
	if !contains(cards, cardID) {
		s.log.Debug("vote for card outside deck", "user", user, "deck", deck, "card", cardID)
	}
	s.log.Info("vote", "user", user, "deck", deck, "card", cardID, "outcome", outcome, "score", score)

	return s.draw(ctx, user, cards)
}

// CardProgress is one card with the user's score and resulting weight.
type CardProgress struct {
	Card   domain.Card
	Score  int
	Weight float64
}

// DeckProgress reports every card of deck with user's current score.
func (s *Service) DeckProgress(ctx context.Context, user, deck string) ([]CardProgress, error) {
	cards, err := s.cards.ListCards(ctx, deck)
	if err != nil {
		return nil, fmt.Errorf("list cards of %s: %w", deck, err)
	}
	snap, err := s.tracker.LoadSnapshot(ctx, user)
	if err != nil {
		return nil, err
	}

	out := make([]CardProgress, 0, len(cards))
	for _, c := range cards {
		score := snap.Score(c.Hash)
		out = append(out, CardProgress{Card: c, Score: score, Weight: selector.Weight(score)})
	}
	return out, nil
}

func (s *Service) draw(ctx context.Context, user string, cards []domain.Card) (*domain.Card, error) {
	snap, err := s.tracker.LoadSnapshot(ctx, user)
	if err != nil {
		return nil, err
	}
	card, ok := s.selector.Pick(cards, snap)
	if !ok {
		return nil, nil
	}
	return &card, nil
}

func contains(cards []domain.Card, hash string) bool {
	for _, c := range cards {
		if c.Hash == hash {
			return true
		}
	}
	return false
}
