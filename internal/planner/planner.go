package planner

import (
	"cmp"
	"slices"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/sync"
)

// Limits caps a session. A nil field means no cap.
type Limits struct {
	Cards    *int // total cards
	NewCards *int // cards never reviewed before
}

// Plan orders the cards to drill on today: due cards first, most overdue
// first, then new cards in deck order. The new-card cap is applied to the
// new cards and the total cap by cutting the tail of the whole sequence.
func Plan(ws *sync.WorkingSet, sched *fsrs.Scheduler, today domain.Date, limits Limits) []domain.Identity {
	var due []domain.CardRecord
	var fresh []domain.Identity

	for _, rec := range ws.Records() {
		switch {
		case rec.State == domain.New:
			fresh = append(fresh, rec.Identity)
		case sched.IsDue(rec, today):
			due = append(due, rec)
		}
	}

	slices.SortFunc(due, func(a, b domain.CardRecord) int {
		// An earlier due date is further overdue.
		if c := cmp.Compare(today.DaysSince(b.Due), today.DaysSince(a.Due)); c != 0 {
			return c
		}
		return a.Identity.Compare(b.Identity)
	})

	if limits.NewCards != nil {
		fresh = fresh[:clamp(*limits.NewCards, len(fresh))]
	}

	plan := make([]domain.Identity, 0, len(due)+len(fresh))
	for _, rec := range due {
		plan = append(plan, rec.Identity)
	}
	plan = append(plan, fresh...)

	if limits.Cards != nil {
		plan = plan[:clamp(*limits.Cards, len(plan))]
	}
	return plan
}

func clamp(n, length int) int {
	return min(max(n, 0), length)
}
