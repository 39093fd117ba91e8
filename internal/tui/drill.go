package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/conorfennell/repeat/internal/domain"
	"github.com/conorfennell/repeat/internal/drill"
)

// DrillModel shows the cards of a drill session one at a time.
//
// Space or Enter reveals the answer; once revealed, 1 rates the card Fail
// and 2 rates it Pass. Esc, q or Ctrl+C leave the session. Each rating is
// committed before the next card is drawn.
type DrillModel struct {
	ctx     context.Context
	session *drill.Session

	err      error
	quitting bool
}

func NewDrillModel(ctx context.Context, session *drill.Session) DrillModel {
	return DrillModel{ctx: ctx, session: session}
}

// Init implements tea.Model.
func (m DrillModel) Init() tea.Cmd {
	if m.session.Done() {
		return tea.Quit
	}
	return nil
}

// Update implements tea.Model.
func (m DrillModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "esc", "q":
		m.quitting = true
		return m, tea.Quit
	case " ", "enter":
		m.session.Reveal()
	case "1":
		return m.rate(domain.Fail)
	case "2":
		return m.rate(domain.Pass)
	}
	return m, nil
}

func (m DrillModel) rate(r domain.Rating) (tea.Model, tea.Cmd) {
	if !m.session.Revealed() {
		return m, nil
	}
	if _, err := m.session.Rate(m.ctx, r); err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	if m.session.Done() {
		return m, tea.Quit
	}
	return m, nil
}

// Err is the last commit failure, if any.
func (m DrillModel) Err() error { return m.err }

// View implements tea.Model.
func (m DrillModel) View() string {
	if m.quitting || m.session.Done() {
		p := m.session.Progress()
		return fmt.Sprintf("Reviewed %d cards (%d failed).\n", p.Reviewed, p.Failed)
	}

	entry, ok := m.session.Current()
	if !ok {
		return ""
	}
	revealed := m.session.Revealed()
	p := m.session.Progress()

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d left • %d reviewed", p.Remaining, p.Reviewed)))
	b.WriteString(helpStyle.Render("  " + entry.Card.Location.Path))
	b.WriteString("\n\n")

	switch c := entry.Card.Content.(type) {
	case domain.Basic:
		b.WriteString(promptStyle.Render(c.Front))
		b.WriteString("\n\n")
		if revealed {
			b.WriteString(answerStyle.Render(c.Back))
			b.WriteString("\n")
		}
	case domain.Cloze:
		if revealed {
			b.WriteString(answerStyle.Render(c.Text))
		} else {
			b.WriteString(promptStyle.Render(c.Masked()))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render("Could not save review: " + m.err.Error()))
		b.WriteString("\n")
	}
	if revealed {
		b.WriteString(helpStyle.Render("1 fail • 2 pass • esc quit"))
	} else {
		b.WriteString(helpStyle.Render("space reveal • esc quit"))
	}
	b.WriteString("\n")
	return b.String()
}
