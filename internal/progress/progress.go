// Package progress keeps the per-user mastery score of every card a user
// has voted on, and serializes the read-modify-write of a vote.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/conorfennell/coursedeck/internal/domain"
)

const (
	// MinScore is the score of an unseen or failed card.
	MinScore = 0
	// MaxScore is the best mastery a card can reach.
	MaxScore = 5
)

// Snapshot is a read-only view of one user's scores keyed by card identity.
// Cards absent from the snapshot have score MinScore.
type Snapshot map[string]int

// Score returns the recorded score for cardID, or MinScore if there is none.
func (s Snapshot) Score(cardID string) int {
	if score, ok := s[cardID]; ok {
		return Clamp(score)
	}
	return MinScore
}

// Store is a keyed progress store. Implementations must treat a missing
// backing store as empty.
type Store interface {
	Get(ctx context.Context, user, cardID string) (score int, ok bool, err error)
	Put(ctx context.Context, user, cardID string, score int) error
	LoadAll(ctx context.Context, user string) (Snapshot, error)
}

// AtomicScorer is implemented by stores that can apply a vote to a single
// entry atomically, without a separate read and write.
type AtomicScorer interface {
	ApplyVote(ctx context.Context, user, cardID string, known bool) (int, error)
}

// Clamp bounds a score to [MinScore, MaxScore].
func Clamp(score int) int {
	return max(MinScore, min(score, MaxScore))
}

// NextScore is the scoring rule of a vote: a known card moves up one step
// and saturates at MaxScore, an unknown card drops back to MinScore.
func NextScore(current int, known bool) int {
	if !known {
		return MinScore
	}
	return Clamp(current + 1)
}

// Tracker answers snapshot queries and applies votes against a Store.
type Tracker struct {
	store Store
	log   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker on top of store.
func NewTracker(store Store, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store: store,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// LoadSnapshot returns every recorded score for user. A user who never
// voted gets an empty snapshot.
func (t *Tracker) LoadSnapshot(ctx context.Context, user string) (Snapshot, error) {
	if user == "" {
		return nil, domain.ErrMissingUser
	}
	snap, err := t.store.LoadAll(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("load progress for %s: %w", user, err)
	}
	if snap == nil {
		snap = Snapshot{}
	}
	return snap, nil
}

// UpdateScore applies one vote and returns the new score. Votes of the same
// user are serialized, so concurrent votes never lose an increment.
func (t *Tracker) UpdateScore(ctx context.Context, user, cardID string, known bool) (int, error) {
	if user == "" {
		return 0, domain.ErrMissingUser
	}

	lock := t.userLock(user)
	lock.Lock()
	defer lock.Unlock()

	if atomic, ok := t.store.(AtomicScorer); ok {
		score, err := atomic.ApplyVote(ctx, user, cardID, known)
		if err != nil {
			return 0, fmt.Errorf("apply vote for %s: %w", user, err)
		}
		t.log.Debug("vote recorded", "user", user, "card", cardID, "known", known, "score", score)
		return score, nil
	}

	current, _, err := t.store.Get(ctx, user, cardID)
	if err != nil {
		return 0, fmt.Errorf("read score for %s: %w", user, err)
	}
	score := NextScore(current, known)
	if err := t.store.Put(ctx, user, cardID, score); err != nil {
		return 0, fmt.Errorf("write score for %s: %w", user, err)
	}
	t.log.Debug("vote recorded", "user", user, "card", cardID, "known", known, "score", score)
	return score, nil
}

func (t *Tracker) userLock(user string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[user]
	if !ok {
		l = &sync.Mutex{}
		t.locks[user] = l
	}
	return l
}
