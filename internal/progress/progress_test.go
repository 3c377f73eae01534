package progress

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/coursedeck/internal/domain"
)

func TestNextScore(t *testing.T) {
	testCases := []struct {
		name    string
		current int
		known   bool
		want    int
	}{
		{name: "fresh card known", current: 0, known: true, want: 1},
		{name: "mid card known", current: 3, known: true, want: 4},
		{name: "saturates at max", current: 5, known: true, want: 5},
		{name: "out of range clamps", current: 9, known: true, want: 5},
		{name: "unknown resets fresh", current: 0, known: false, want: 0},
		{name: "unknown resets mastered", current: 5, known: false, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextScore(tc.current, tc.known))
		})
	}
}

func TestSnapshotScore(t *testing.T) {
	snap := Snapshot{"q1": 3, "q2": 7, "q3": -2}
	assert.Equal(t, 3, snap.Score("q1"))
	assert.Equal(t, MaxScore, snap.Score("q2"))
	assert.Equal(t, MinScore, snap.Score("q3"))
	assert.Equal(t, MinScore, snap.Score("missing"))

	var empty Snapshot
	assert.Equal(t, MinScore, empty.Score("anything"))
}

func newTestTracker(t *testing.T) (*Tracker, *FileStore) {
	t.Helper()
	store := NewFileStore(t.TempDir() + "/progress.json")
	return NewTracker(store, nil), store
}

func TestTrackerKnownVotesClimbAndSaturate(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	for want := 1; want <= 3; want++ {
		got, err := tracker.UpdateScore(ctx, "alice", "Q1", true)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for range 10 {
		_, err := tracker.UpdateScore(ctx, "alice", "Q1", true)
		require.NoError(t, err)
	}
	snap, err := tracker.LoadSnapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, MaxScore, snap.Score("Q1"))
	assert.Equal(t, MinScore, snap.Score("Q2"))
}

func TestTrackerUnknownResets(t *testing.T) {
	ctx := context.Background()
	tracker, store := newTestTracker(t)
	require.NoError(t, store.Put(ctx, "alice", "Q1", 5))

	got, err := tracker.UpdateScore(ctx, "alice", "Q1", false)
	require.NoError(t, err)
	assert.Equal(t, 0, got)

	score, ok, err := store.Get(ctx, "alice", "Q1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, score)
}

func TestTrackerScopesUsers(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	_, err := tracker.UpdateScore(ctx, "alice", "Q1", true)
	require.NoError(t, err)

	bob, err := tracker.LoadSnapshot(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, bob)
	assert.Empty(t, bob)
}

func TestTrackerRequiresUser(t *testing.T) {
	tracker, _ := newTestTracker(t)

	_, err := tracker.LoadSnapshot(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrMissingUser)

	_, err = tracker.UpdateScore(context.Background(), "", "Q1", true)
	assert.ErrorIs(t, err, domain.ErrMissingUser)
}

func TestTrackerConcurrentVotesDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestTracker(t)

	var wg sync.WaitGroup
	for _, user := range []string{"alice", "alice", "bob", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.UpdateScore(ctx, user, "Q1", true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, user := range []string{"alice", "bob"} {
		snap, err := tracker.LoadSnapshot(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Score("Q1"), "user %s", user)
	}
}

type scriptedStore struct {
	Store
	applied int
	err     error
}

func (s *scriptedStore) ApplyVote(ctx context.Context, user, cardID string, known bool) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.applied++
	return 4, nil
}

func TestTrackerPrefersAtomicScorer(t *testing.T) {
	store := &scriptedStore{}
	tracker := NewTracker(store, nil)

	score, err := tracker.UpdateScore(context.Background(), "alice", "Q1", true)
	require.NoError(t, err)
	assert.Equal(t, 4, score)
	assert.Equal(t, 1, store.applied)

	store.err = errors.New("disk on fire")
	_, err = tracker.UpdateScore(context.Background(), "alice", "Q1", true)
	assert.ErrorContains(t, err, "disk on fire")
}
