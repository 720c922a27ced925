package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/speedlesen/internal/stats"
	"github.com/verte-zerg/speedlesen/internal/statsui"
)

var (
	reportPlot  bool
	reportWidth int
	reportColor bool
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [group]",
		Short: "Print group standings, or one group in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReportCmd,
	}
	cmd.Flags().BoolVar(&reportPlot, "plot", true, "draw the points chart for a single group")
	cmd.Flags().IntVar(&reportWidth, "width", 0, "chart width (default: terminal width)")
	cmd.Flags().BoolVar(&reportColor, "color", false, "force colored output")
	return cmd
}

func runReportCmd(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		reports, err := stats.BuildReports(cmd.Context(), st)
		if err != nil {
			return err
		}
		return stats.RenderSummary(out, reports)
	}

	r, err := stats.BuildGroupReport(cmd.Context(), st, args[0])
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "Group %s: %.1f points, level %s\n\n", r.GroupID, r.Cumulative, r.Level); err != nil {
		return err
	}
	if reportPlot {
		if err := stats.PlotPoints(out, r, reportWidth, reportColor); err != nil {
			return err
		}
	}
	if err := stats.RenderWeeks(out, r); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return err
	}
	return stats.RenderReaders(out, r)
}

func newBoardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Open the interactive group board",
		Args:  cobra.NoArgs,
		RunE:  runBoardCmd,
	}
}

func runBoardCmd(cmd *cobra.Command, _ []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	model := statsui.NewModel(cmd.Context(), st)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run board TUI: %w", err)
	}
	return nil
}
