package sync

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
	"github.com/conorfennell/repeat/internal/knol"
	"github.com/conorfennell/repeat/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func scheduler(t *testing.T) *fsrs.Scheduler {
	t.Helper()
	s, err := fsrs.NewScheduler(fsrs.DefaultParams())
	require.NoError(t, err)
	return s
}

func basic(front, back string) domain.RawCard {
	return domain.RawCard{Content: domain.Basic{Front: front, Back: back}, Location: domain.Location{Path: "deck.md"}}
}

func asMap(recs []domain.CardRecord) map[domain.Identity]domain.CardRecord {
	m := make(map[domain.Identity]domain.CardRecord, len(recs))
	for _, r := range recs {
		m[r.Identity] = r
	}
	return m
}

func TestReconcileInsertsNewCards(t *testing.T) {
	sched := scheduler(t)
	cards := []domain.RawCard{basic("2+2?", "4"), basic("capital of France?", "Paris")}

	ws, mutations := Reconcile(cards, nil, sched)
	require.Equal(t, 2, ws.Len())
	require.Len(t, mutations, 2)
	for i, m := range mutations {
		assert.Equal(t, MutationInsert, m.Kind)
		assert.Equal(t, domain.New, m.Record.State)
		assert.Equal(t, knol.Hash(cards[i]), m.Record.Identity)
	}
	assert.Equal(t, []domain.Identity{knol.Hash(cards[0]), knol.Hash(cards[1])}, ws.Order())
}

func TestReconcileIsIdempotent(t *testing.T) {
	sched := scheduler(t)
	cards := []domain.RawCard{basic("a?", "b"), basic("c?", "d")}

	ws, first := Reconcile(cards, nil, sched)
	require.Len(t, first, 2)

	again, second := Reconcile(cards, asMap(ws.Records()), sched)
	assert.Empty(t, second)
	assert.Equal(t, ws.Records(), again.Records())
}

func TestReconcileAttachesExistingRecordUnchanged(t *testing.T) {
	sched := scheduler(t)
	card := basic("2+2?", "4")
	id := knol.Hash(card)

	reviewed, err := sched.Review(domain.ReviewEvent{
		Identity:   id,
		Rating:     domain.Pass,
		ReviewedAt: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		Prior:      sched.NewRecord(id),
	})
	require.NoError(t, err)

	ws, mutations := Reconcile([]domain.RawCard{card}, asMap([]domain.CardRecord{reviewed}), sched)
	assert.Empty(t, mutations)
	e, ok := ws.Get(id)
	require.True(t, ok)
	assert.Equal(t, reviewed, e.Record)
}

// Editing a card's answer gives it a new identity and a fresh history; the
// old record is left alone.
func TestReconcileEditedCardStartsNewHistory(t *testing.T) {
	sched := scheduler(t)
	original := basic("2+2?", "4")
	edited := basic("2+2?", "4, i.e. 2+2")
	h1, h2 := knol.Hash(original), knol.Hash(edited)
	require.NotEqual(t, h1, h2)

	old, err := sched.Review(domain.ReviewEvent{
		Identity: h1, Rating: domain.Pass,
		ReviewedAt: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		Prior:      sched.NewRecord(h1),
	})
	require.NoError(t, err)

	ws, mutations := Reconcile([]domain.RawCard{edited}, asMap([]domain.CardRecord{old}), sched)
	require.Len(t, mutations, 1)
	assert.Equal(t, MutationInsert, mutations[0].Kind)
	assert.Equal(t, h2, mutations[0].Record.Identity)

	_, ok := ws.Get(h1)
	assert.False(t, ok, "orphaned record is excluded from the working set")
	e, ok := ws.Get(h2)
	require.True(t, ok)
	assert.Equal(t, domain.New, e.Record.State)
}

func TestReconcileResetsCorruptRecord(t *testing.T) {
	sched := scheduler(t)
	card := basic("q?", "a")
	id := knol.Hash(card)
	corrupt := domain.CardRecord{Identity: id, State: domain.Review, Stability: -3, Difficulty: 42}

	ws, mutations := Reconcile([]domain.RawCard{card}, asMap([]domain.CardRecord{corrupt}), sched)
	require.Len(t, mutations, 1)
	assert.Equal(t, MutationReset, mutations[0].Kind)
	assert.ErrorIs(t, mutations[0].Reason, domain.ErrInvalidRecord)

	e, _ := ws.Get(id)
	assert.Equal(t, sched.NewRecord(id), e.Record)
}

func TestReconcileCollapsesDuplicates(t *testing.T) {
	sched := scheduler(t)
	first := basic("Same?", "Yes")
	first.Location = domain.Location{Path: "a.md", StartLine: 1}
	second := basic("same?", "YES")
	second.Location = domain.Location{Path: "b.md", StartLine: 9}

	ws, mutations := Reconcile([]domain.RawCard{first, second}, nil, sched)
	assert.Equal(t, 1, ws.Len())
	assert.Len(t, mutations, 1)
	e, _ := ws.Get(knol.Hash(first))
	assert.Equal(t, "a.md", e.Card.Location.Path, "first location wins")
}

func TestWorkingSetUpdate(t *testing.T) {
	sched := scheduler(t)
	card := basic("q?", "a")
	ws, _ := Reconcile([]domain.RawCard{card}, nil, sched)

	rec := sched.NewRecord(knol.Hash(card))
	rec.Reps = 3
	require.NoError(t, ws.Update(rec))
	e, _ := ws.Get(rec.Identity)
	assert.Equal(t, 3, e.Record.Reps)

	assert.Error(t, ws.Update(sched.NewRecord(domain.Identity{9})))
}

func TestReconcilerRunPersistsMutations(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "repeat.db"))
	require.NoError(t, err)
	defer db.Close()

	r := NewReconciler(db, scheduler(t), discard)
	cards := []domain.RawCard{basic("a?", "b"), basic("c?", "d"), basic("a?", "b")}

	ws, err := r.Run(ctx, cards)
	require.NoError(t, err)
	assert.Equal(t, 2, ws.Len())

	n, err := db.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Dropping a card from the deck leaves its record stored.
	ws, err = r.Run(ctx, cards[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, ws.Len())
	n, err = db.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type failingStore struct {
	loadErr, upsertErr error
}

func (f failingStore) LoadRecords(context.Context) (map[domain.Identity]domain.CardRecord, []error, error) {
	return nil, nil, f.loadErr
}

func (f failingStore) UpsertRecords(context.Context, []domain.CardRecord) error {
	return f.upsertErr
}

func TestReconcilerRunReportsStoreFailures(t *testing.T) {
	boom := errors.New("disk on fire")
	cards := []domain.RawCard{basic("a?", "b")}

	_, err := NewReconciler(failingStore{loadErr: boom}, scheduler(t), discard).Run(context.Background(), cards)
	assert.ErrorIs(t, err, boom)

	_, err = NewReconciler(failingStore{upsertErr: boom}, scheduler(t), discard).Run(context.Background(), cards)
	assert.ErrorIs(t, err, boom)
}
