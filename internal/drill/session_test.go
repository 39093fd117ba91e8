package drill

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/planner"
	"github.com/conorfennell/repeat/internal/storage"
	"github.com/conorfennell/repeat/internal/sync"
)

var day1 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type memStore struct {
	saved []domain.CardRecord
	err   error
}

func (m *memStore) UpsertRecord(_ context.Context, rec domain.CardRecord) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rec)
	return nil
}

func setup(t *testing.T, fronts ...string) (*sync.WorkingSet, *fsrs.Scheduler, []domain.Identity) {
	t.Helper()
	sched, err := fsrs.NewScheduler(fsrs.DefaultParams())
	require.NoError(t, err)
	var cards []domain.RawCard
	for _, f := range fronts {
		cards = append(cards, domain.RawCard{Content: domain.Basic{Front: f, Back: "answer to " + f}})
	}
	ws, _ := sync.Reconcile(cards, nil, sched)
	return ws, sched, ws.Order()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func clock(t time.Time) Option {
	return WithClock(func() time.Time { return t })
}

func TestSessionRatesAndCommitsEachCard(t *testing.T) {
	ws, sched, plan := setup(t, "one", "two")
	store := &memStore{}
	s := New(ws, plan, sched, store, clock(day1))

	e, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, plan[0], e.Record.Identity)

	_, err := s.Rate(context.Background(), domain.Pass)
	require.ErrorIs(t, err, ErrNotRevealed)
	assert.Empty(t, store.saved)

	s.Reveal()
	rec, err := s.Rate(context.Background(), domain.Pass)
	require.NoError(t, err)
	assert.Equal(t, domain.Review, rec.State)
	require.Len(t, store.saved, 1, "committed before moving on")
	assert.False(t, s.Revealed())

	updated, _ := ws.Get(plan[0])
	assert.Equal(t, rec, updated.Record, "working set sees the new record")

	s.Reveal()
	_, err = s.Rate(context.Background(), domain.Pass)
	require.NoError(t, err)
	assert.True(t, s.Done())
	assert.Equal(t, Progress{Reviewed: 2}, s.Progress())

	_, err = s.Rate(context.Background(), domain.Pass)
	assert.ErrorIs(t, err, ErrSessionDone)
}

func TestSessionRedoesFailedCards(t *testing.T) {
	ws, sched, plan := setup(t, "one", "two", "three")
	store := &memStore{}
	s := New(ws, plan, sched, store, clock(day1))

	rate := func(r domain.Rating) domain.Identity {
		e, ok := s.Current()
		require.True(t, ok)
		s.Reveal()
		_, err := s.Rate(context.Background(), r)
		require.NoError(t, err)
		return e.Record.Identity
	}

	assert.Equal(t, plan[0], rate(domain.Fail))
	assert.Equal(t, plan[1], rate(domain.Pass))
	assert.Equal(t, 2, s.Progress().Remaining, "third card plus one redo")
	assert.Equal(t, plan[2], rate(domain.Fail))

	assert.Equal(t, plan[0], rate(domain.Fail), "failed again in the redo pass")
	assert.Equal(t, plan[2], rate(domain.Pass))
	assert.Equal(t, plan[0], rate(domain.Pass))
	assert.True(t, s.Done())

	p := s.Progress()
	assert.Equal(t, 6, p.Reviewed)
	assert.Equal(t, 3, p.Failed)
	assert.Zero(t, p.Remaining)

	e, _ := ws.Get(plan[0])
	assert.Equal(t, 3, e.Record.Reps)
	assert.Equal(t, domain.Review, e.Record.State)
}

func TestSessionWithoutRedo(t *testing.T) {
	ws, sched, plan := setup(t, "one")
	s := New(ws, plan, sched, &memStore{}, clock(day1), WithoutRedo())
	s.Reveal()
	_, err := s.Rate(context.Background(), domain.Fail)
	require.NoError(t, err)
	assert.True(t, s.Done())
}

func TestSessionCommitFailureDoesNotAdvance(t *testing.T) {
	ws, sched, plan := setup(t, "one", "two")
	boom := errors.New("disk full")
	store := &memStore{err: boom}
	s := New(ws, plan, sched, store, clock(day1))

	s.Reveal()
	_, err := s.Rate(context.Background(), domain.Pass)
	require.ErrorIs(t, err, boom)

	e, _ := s.Current()
	assert.Equal(t, plan[0], e.Record.Identity)
	assert.Equal(t, domain.New, e.Record.State, "working set unchanged")
	assert.Zero(t, s.Progress().Reviewed)

	store.err = nil
	_, err = s.Rate(context.Background(), domain.Pass)
	require.NoError(t, err, "the card is still revealed and can be rated again")
}

func TestSessionSkipsUnknownIdentities(t *testing.T) {
	ws, sched, plan := setup(t, "one")
	s := New(ws, append([]domain.Identity{{0xff}}, plan...), sched, &memStore{})
	assert.Equal(t, 1, s.Progress().Remaining)
	assert.NotEqual(t, s.ID(), New(ws, plan, sched, &memStore{}).ID())
}

func TestEmptySessionIsDone(t *testing.T) {
	ws, sched, _ := setup(t)
	s := New(ws, nil, sched, &memStore{})
	assert.True(t, s.Done())
	_, ok := s.Current()
	assert.False(t, ok)
}

// A deck with one card: pass it on day one, see it due later, fail it on
// the next day and find one lapse persisted.
func TestPassThenFailAcrossSessions(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "repeat.db"))
	require.NoError(t, err)
	defer db.Close()

	sched, err := fsrs.NewScheduler(fsrs.DefaultParams())
	require.NoError(t, err)
	r := sync.NewReconciler(db, sched, discardLogger())
	cards := []domain.RawCard{{Content: domain.Basic{Front: "2+2?", Back: "4"}}}

	ws, err := r.Run(ctx, cards)
	require.NoError(t, err)
	today := domain.DateOf(day1)
	plan := planner.Plan(ws, sched, today, planner.Limits{})
	require.Len(t, plan, 1)

	s := New(ws, plan, sched, db, clock(day1))
	s.Reveal()
	first, err := s.Rate(ctx, domain.Pass)
	require.NoError(t, err)
	assert.True(t, first.Due.After(today))
	assert.Equal(t, 1, first.Reps)

	day2 := day1.Add(24 * time.Hour)
	ws, err = r.Run(ctx, cards)
	require.NoError(t, err)
	assert.Empty(t, planner.Plan(ws, sched, domain.DateOf(day2), planner.Limits{}), "not due yet")

	// Drill it anyway, as a user re-running an explicit review would.
	s = New(ws, ws.Order(), sched, db, clock(day2))
	s.Reveal()
	second, err := s.Rate(ctx, domain.Fail)
	require.NoError(t, err)

	stored, err := db.FindRecord(ctx, second.Identity)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Lapses)
	assert.Equal(t, domain.Relearning, stored.State)
	assert.Less(t, stored.Stability, first.Stability)
}
