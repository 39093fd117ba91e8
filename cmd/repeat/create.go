package main

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/conorfennell/repeat/internal/create"
	"github.com/conorfennell/repeat/internal/tui"
)

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <deck.md>",
		Short: "Write new cards into a deck",
		Long: `Open an editor for new cards. Ctrl+S checks the text and appends it to
the deck; a card that already exists in the deck or the database is
rejected. Esc leaves the editor.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return create.ValidateDeckPath(args[0])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			defer a.close()

			saver, err := create.NewSaver(args[0], a.db, a.sched, a.sessionLogger())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			p := tea.NewProgram(tui.NewEditorModel(ctx, saver),
				tea.WithContext(ctx),
				tea.WithAltScreen(),
				tea.WithOutput(out),
			)
			final, err := p.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("editor: %w", err)
			}
			if m, ok := final.(tui.EditorModel); ok {
				fmt.Fprintf(out, "Saved %d card(s) to %s.\n", m.Saved(), saver.Path())
			}
			return nil
		},
	}
}
