package main

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/conorfennell/repeat/internal/drill"
	"github.com/conorfennell/repeat/internal/fsrs"
	"github.com/conorfennell/repeat/internal/planner"
	"github.com/conorfennell/repeat/internal/tui"
)

func newDrillCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drill [paths...]",
		Short: "Review the cards that are due",
		Long: `Review the cards that are due in the given decks. A path is a Markdown
file, a directory searched for .md files, or a git URL. Every rating is
saved as soon as it is given, so quitting early keeps the progress made.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			defer a.close()
			return runDrill(cmd, a, args)
		},
	}
	cmd.Flags().Int("card-limit", 0, "maximum number of cards in the session")
	cmd.Flags().Int("new-card-limit", 0, "maximum number of new cards in the session")
	def := fsrs.DefaultParams()
	cmd.Flags().Float64("desired-retention", def.DesiredRetention, "target probability of recall when a card is due")
	cmd.Flags().Int("max-interval", def.MaxInterval, "longest interval in days between reviews")
	return cmd
}

func runDrill(cmd *cobra.Command, a *app, roots []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	ws, err := a.workingSet(ctx, cmd.ErrOrStderr(), roots)
	if err != nil {
		return err
	}

	plan := planner.Plan(ws, a.sched, a.today(), planner.Limits{
		Cards:    a.cfg.Drill.CardLimit,
		NewCards: a.cfg.Drill.NewCardLimit,
	})
	if len(plan) == 0 {
		fmt.Fprintln(out, "No cards to review.")
		return nil
	}

	session := drill.New(ws, plan, a.sched, a.db,
		drill.WithClock(a.now),
		drill.WithLogger(a.sessionLogger()),
	)

	p := tea.NewProgram(tui.NewDrillModel(ctx, session),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("drill session: %w", err)
	}

	progress := session.Progress()
	fmt.Fprintf(out, "Reviewed %d card(s), %d failed, %d left.\n",
		progress.Reviewed, progress.Failed, progress.Remaining)
	if m, ok := final.(tui.DrillModel); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}
