package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/sync"
)

const (
	weekDays  = 7
	monthDays = 30
)

// DayCount is the number of cards falling due on one day.
type DayCount struct {
	Date  domain.Date
	Count int
}

// Report summarises the cards in the current decks as of one day.
type Report struct {
	Today         domain.Date
	Total         int // cards in the decks
	New           int
	Reviewed      int
	Due           int // due today or earlier
	Overdue       int // due before today
	Upcoming      [weekDays]DayCount
	UpcomingMonth int // due in the 30 days after today
	TotalInStore  int // records kept in storage, orphans included
}

// UpcomingWeek is the number of cards due in the 7 days after today.
func (r Report) UpcomingWeek() int {
	n := 0
	for _, d := range r.Upcoming {
		n += d.Count
	}
	return n
}

// Build counts the working set as of today.
func Build(ws *sync.WorkingSet, today domain.Date, totalInStore int) Report {
	r := Report{Today: today, TotalInStore: totalInStore}
	for i := range r.Upcoming {
		r.Upcoming[i].Date = today.AddDays(i + 1)
	}

	for _, rec := range ws.Records() {
		r.Total++
		if rec.State == domain.New {
			r.New++
			continue
		}
		r.Reviewed++

		ahead := rec.Due.DaysSince(today)
		switch {
		case ahead < 0:
			r.Overdue++
			r.Due++
		case ahead == 0:
			r.Due++
		default:
			if ahead <= weekDays {
				r.Upcoming[ahead-1].Count++
			}
			if ahead <= monthDays {
				r.UpcomingMonth++
			}
		}
	}
	return r
}

// Render prints the report. Colours are used only when w is a terminal.
func Render(w io.Writer, r Report) error {
	re := lipgloss.NewRenderer(w)
	var (
		heading = re.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
		label   = re.NewStyle().Foreground(lipgloss.Color("250"))
		due     = re.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
		overdue = re.NewStyle().Foreground(lipgloss.Color("196"))
		bar     = re.NewStyle().Foreground(lipgloss.Color("42"))
		muted   = re.NewStyle().Foreground(lipgloss.Color("241"))
	)

	peak := 0
	for _, d := range r.Upcoming {
		peak = max(peak, d.Count)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %d • new %d • reviewed %d\n",
		heading.Render("Number of cards"), r.Total, r.New, r.Reviewed)
	fmt.Fprintf(&b, "%s %s %s\n",
		label.Render("Due now:"), due.Render(fmt.Sprint(r.Due)), overdue.Render(fmt.Sprintf("(%d overdue)", r.Overdue)))

	fmt.Fprintf(&b, "%s %d\n", label.Render("Due in next 7 days:"), r.UpcomingWeek())
	for _, d := range r.Upcoming {
		width := 0
		if peak > 0 {
			width = (d.Count*20 + peak - 1) / peak
		}
		fmt.Fprintf(&b, "  %s %3d %s\n", d.Date, d.Count, bar.Render(strings.Repeat("█", width)))
	}

	fmt.Fprintf(&b, "%s %d\n", label.Render("Due in next 30 days:"), r.UpcomingMonth)
	fmt.Fprintf(&b, "%s\n", muted.Render(fmt.Sprintf("Total number of cards indexed in DB: %d", r.TotalInStore)))

	_, err := io.WriteString(w, b.String())
	return err
}
