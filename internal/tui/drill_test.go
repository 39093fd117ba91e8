package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/drill"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/sync"
)

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

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newDrill(t *testing.T, store *memStore, contents ...domain.Content) DrillModel {
	t.Helper()
	sched, err := fsrs.NewScheduler(fsrs.DefaultParams())
	require.NoError(t, err)
	var cards []domain.RawCard
	for _, c := range contents {
		cards = append(cards, domain.RawCard{Content: c, Location: domain.Location{Path: "deck.md"}})
	}
	ws, _ := sync.Reconcile(cards, nil, sched)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := drill.New(ws, ws.Order(), sched, store,
		drill.WithClock(func() time.Time { return now }),
		drill.WithoutRedo(),
	)
	return NewDrillModel(context.Background(), s)
}

func send(t *testing.T, m tea.Model, msgs ...tea.Msg) (tea.Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		m, cmd = m.Update(msg)
	}
	return m, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestDrillRevealThenRate(t *testing.T) {
	store := &memStore{}
	m := newDrill(t, store,
		domain.Basic{Front: "Capital of France?", Back: "Paris"},
		domain.Basic{Front: "Capital of Spain?", Back: "Madrid"},
	)
	require.Nil(t, m.Init())

	view := m.View()
	assert.Contains(t, view, "Capital of France?")
	assert.NotContains(t, view, "Paris")
	assert.Contains(t, view, "space reveal")

	next, cmd := send(t, m, runes("2"))
	assert.Nil(t, cmd)
	assert.Empty(t, store.saved, "ratings are ignored until the answer is shown")

	next, _ = send(t, next, tea.KeyMsg{Type: tea.KeySpace})
	view = next.View()
	assert.Contains(t, view, "Paris")
	assert.Contains(t, view, "1 fail")

	next, cmd = send(t, next, runes("2"))
	assert.False(t, isQuit(cmd))
	require.Len(t, store.saved, 1)
	assert.Equal(t, domain.Review, store.saved[0].State)
	assert.Contains(t, next.View(), "Capital of Spain?")

	next, cmd = send(t, next, tea.KeyMsg{Type: tea.KeyEnter}, runes("1"))
	assert.True(t, isQuit(cmd), "the last rating ends the program")
	require.Len(t, store.saved, 2)
	assert.Equal(t, domain.Learning, store.saved[1].State)
	assert.Contains(t, next.View(), "Reviewed 2 cards (1 failed)")
}

func TestDrillClozeMasksUntilRevealed(t *testing.T) {
	text := "The [mitochondria] is the powerhouse"
	m := newDrill(t, &memStore{}, domain.Cloze{
		Text:  text,
		Spans: []domain.Span{{Start: 4, End: 18}},
	})

	view := m.View()
	assert.Contains(t, view, "The [____________] is the powerhouse")
	assert.NotContains(t, view, "mitochondria")

	next, _ := send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	assert.Contains(t, next.View(), text)
}

func TestDrillCommitFailureStaysOnCard(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	m := newDrill(t, store, domain.Basic{Front: "Q1", Back: "A1"})

	next, cmd := send(t, m, tea.KeyMsg{Type: tea.KeySpace}, runes("2"))
	assert.Nil(t, cmd)
	dm := next.(DrillModel)
	require.Error(t, dm.Err())
	view := dm.View()
	assert.Contains(t, view, "Could not save review")
	assert.Contains(t, view, "Q1")
}

func TestDrillQuit(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		runes("q"),
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		t.Run(key.String(), func(t *testing.T) {
			store := &memStore{}
			m := newDrill(t, store, domain.Basic{Front: "Q1", Back: "A1"})
			next, cmd := send(t, m, key)
			assert.True(t, isQuit(cmd))
			assert.Empty(t, store.saved)
			assert.Contains(t, next.View(), "Reviewed 0 cards")
		})
	}
}

func TestDrillEmptySessionQuitsImmediately(t *testing.T) {
	m := newDrill(t, &memStore{})
	assert.True(t, isQuit(m.Init()))
}
