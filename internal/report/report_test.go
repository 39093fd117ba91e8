package report

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/knol"
	"github.com/conorfennell/repeat/internal/sync"
)

var today = domain.Date{Year: 2025, Month: time.July, Day: 20}

// workingSet builds a set with one new card per entry of newCards and one
// reviewed card per entry of dueIn, due that many days from today.
func workingSet(t *testing.T, newCards int, dueIn ...int) *sync.WorkingSet {
	t.Helper()
	sched, err := fsrs.NewScheduler(fsrs.DefaultParams())
	require.NoError(t, err)

	var cards []domain.RawCard
	persisted := map[domain.Identity]domain.CardRecord{}
	at := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < newCards; i++ {
		cards = append(cards, domain.RawCard{Content: domain.Basic{Front: fmt.Sprintf("new %d", i), Back: "x"}})
	}
	for i, d := range dueIn {
		c := domain.RawCard{Content: domain.Basic{Front: fmt.Sprintf("seen %d", i), Back: "x"}}
		cards = append(cards, c)
		rec := sched.NewRecord(knol.Hash(c))
		rec.State = domain.Review
		rec.Due = today.AddDays(d)
		rec.LastReviewedAt = &at
		rec.Reps = 2
		persisted[rec.Identity] = rec
	}

	ws, _ := sync.Reconcile(cards, persisted, sched)
	return ws
}

func TestBuild(t *testing.T) {
	ws := workingSet(t, 3, -10, -1, 0, 0, 1, 1, 7, 8, 30, 31)
	r := Build(ws, today, 42)

	assert.Equal(t, 13, r.Total)
	assert.Equal(t, 3, r.New)
	assert.Equal(t, 10, r.Reviewed)
	assert.Equal(t, 4, r.Due, "overdue cards are due too")
	assert.Equal(t, 2, r.Overdue)
	assert.Equal(t, 3, r.UpcomingWeek())
	assert.Equal(t, 5, r.UpcomingMonth)
	assert.Equal(t, 42, r.TotalInStore)

	assert.Equal(t, today.AddDays(1), r.Upcoming[0].Date)
	assert.Equal(t, 2, r.Upcoming[0].Count)
	assert.Equal(t, today.AddDays(7), r.Upcoming[6].Date)
	assert.Equal(t, 1, r.Upcoming[6].Count)
}

func TestBuildEmpty(t *testing.T) {
	r := Build(workingSet(t, 0), today, 0)
	assert.Zero(t, r.Total)
	assert.Zero(t, r.UpcomingWeek())
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Build(workingSet(t, 1, -2, 0, 3), today, 9)))

	out := buf.String()
	assert.Contains(t, out, "Number of cards 4 • new 1 • reviewed 3")
	assert.Contains(t, out, "Due now: 2 (1 overdue)")
	assert.Contains(t, out, "Due in next 7 days: 1")
	assert.Contains(t, out, "2025-07-23   1 ")
	assert.Contains(t, out, "Due in next 30 days: 1")
	assert.Contains(t, out, "Total number of cards indexed in DB: 9")
	assert.NotContains(t, out, "\x1b[", "no colour when not writing to a terminal")
}
