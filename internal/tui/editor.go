package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
)

// Saver validates and stores the text written in the editor.
type Saver interface {
	Save(ctx context.Context, text string) (int, error)
	Path() string
}

// EditorModel is a text area for writing new cards into a deck. Ctrl+S
// saves and clears the editor; Esc or Ctrl+C leaves.
type EditorModel struct {
	ctx   context.Context
	saver Saver
	input textarea.Model

	status string
	err    error
	saved  int
}

func NewEditorModel(ctx context.Context, saver Saver) EditorModel {
	ta := textarea.New()
	ta.Placeholder = "Q: question\nA: answer\n\nC: text with a [hidden] part"
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetWidth(80)
	ta.SetHeight(12)
	ta.Focus()
	return EditorModel{ctx: ctx, saver: saver, input: ta}
}

// Init implements tea.Model.
func (m EditorModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model.
func (m EditorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.input.SetWidth(max(20, msg.Width-2))
		m.input.SetHeight(max(5, msg.Height-6))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+s":
			return m.save(), nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m EditorModel) save() EditorModel {
	n, err := m.saver.Save(m.ctx, m.input.Value())
	if err != nil {
		m.err = err
		m.status = ""
		return m
	}
	m.err = nil
	m.saved += n
	m.status = fmt.Sprintf("Saved %d card(s) to %s", n, m.saver.Path())
	m.input.Reset()
	return m
}

// Saved is the number of cards saved during the session.
func (m EditorModel) Saved() int { return m.saved }

// Value is the text currently in the editor.
func (m EditorModel) Value() string { return m.input.Value() }

// View implements tea.Model.
func (m EditorModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("New cards for " + m.saver.Path()))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("ctrl+s save • esc quit"))
	b.WriteString("\n")
	return b.String()
}
