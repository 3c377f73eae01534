// Package selector draws the next card to practice, biased toward cards
// the user knows least.
package selector

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/conorfennell/coursedeck/internal/domain"
	"github.com/conorfennell/coursedeck/internal/progress"
)

// MaxWeight is the weight of an unseen or failed card.
const MaxWeight = 10.0

// Weight maps a mastery score to a draw weight: 10 at score 0 down to 10/6
// at score 5. It never reaches zero, so every card stays drawable.
func Weight(score int) float64 {
	return MaxWeight / float64(progress.Clamp(score)+1)
}

// Selector performs independent weighted draws. It is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a selector drawing from src.
func New(src rand.Source) *Selector {
	return &Selector{rng: rand.New(src)}
}

// NewSeeded returns a selector whose draws are reproducible for a given seed.
func NewSeeded(seed uint64) *Selector {
	return New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewRandom returns a selector seeded from the clock.
func NewRandom() *Selector {
	return NewSeeded(uint64(time.Now().UnixNano()))
}

// Pick draws one card from cards with probability proportional to the
// weight of its score in snap. It returns false when cards is empty.
func (s *Selector) Pick(cards []domain.Card, snap progress.Snapshot) (domain.Card, bool) {
	if len(cards) == 0 {
		return domain.Card{}, false
	}

	cumulative := make([]float64, len(cards))
	total := 0.0
	for i, c := range cards {
		total += Weight(snap.Score(c.Hash))
		cumulative[i] = total
	}

	s.mu.Lock()
	u := s.rng.Float64() * total
	s.mu.Unlock()

	for i, edge := range cumulative {
		if u < edge {
			return cards[i], true
		}
	}
	// Float rounding can leave u == total.
	return cards[len(cards)-1], true
}
