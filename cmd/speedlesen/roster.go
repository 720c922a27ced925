package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/speedlesen/internal/model"
	"github.com/verte-zerg/speedlesen/internal/scoring"
	"github.com/verte-zerg/speedlesen/internal/stats"
	"github.com/verte-zerg/speedlesen/internal/store"
)

var (
	memberName  string
	memberAlias string

	weekFile string
)

func newGroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <id>",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE:  runGroupAddCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE:  runGroupListCmd,
	})
	return cmd
}

func runGroupAddCmd(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	if err := st.AddGroup(cmd.Context(), model.Group{ID: args[0]}); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Group %s saved.\n", model.CleanID(args[0]))
	return err
}

func runGroupListCmd(cmd *cobra.Command, _ []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	groups, err := st.Groups(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(groups) == 0 {
		_, err := fmt.Fprintln(out, "No groups found.")
		return err
	}
	for _, g := range groups {
		if _, err := fmt.Fprintf(out, "%s\t%d members\n", g.ID, len(g.Members)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newMemberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage group rosters",
	}
	add := &cobra.Command{
		Use:   "add <group> <pid>",
		Short: "Add a reader to a group roster",
		Args:  cobra.ExactArgs(2),
		RunE:  runMemberAddCmd,
	}
	add.Flags().StringVar(&memberName, "name", "", "display name")
	add.Flags().StringVar(&memberAlias, "alias", "", "alias shown in exports")
	cmd.AddCommand(add)
	cmd.AddCommand(&cobra.Command{
		Use:   "list <group>",
		Short: "List a group roster",
		Args:  cobra.ExactArgs(1),
		RunE:  runMemberListCmd,
	})
	return cmd
}

func runMemberAddCmd(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	in := store.MemberInput{GroupID: args[0], PID: args[1], Name: memberName, Alias: memberAlias}
	if err := st.AddMember(cmd.Context(), in); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Member %s added to %s.\n", model.CleanID(args[1]), model.CleanID(args[0]))
	return err
}

func runMemberListCmd(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	members, err := st.MembersByGroup(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(members) == 0 {
		_, err := fmt.Fprintln(out, "No members found.")
		return err
	}
	for _, m := range members {
		line := []string{m.PID, m.Name}
		if m.Alias != "" {
			line = append(line, m.Alias)
		}
		if _, err := fmt.Fprintln(out, strings.Join(line, "\t")); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newWeekCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "week",
		Short: "Record and list weekly measurements",
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Score a week sheet and save it",
		Long: `Score a week sheet and save it.

The sheet is YAML (or JSON) with the keys group, week, coaching, mission and
readers; each reader has pid, name, woerter3 and fehler. Use --file - to read
the sheet from stdin.`,
		Args: cobra.NoArgs,
		RunE: runWeekAddCmd,
	}
	add.Flags().StringVarP(&weekFile, "file", "f", "", "week sheet path")
	_ = add.MarkFlagRequired("file")
	cmd.AddCommand(add)
	cmd.AddCommand(&cobra.Command{
		Use:   "list <group>",
		Short: "List the weeks of a group",
		Args:  cobra.ExactArgs(1),
		RunE:  runWeekListCmd,
	})
	return cmd
}

func runWeekAddCmd(cmd *cobra.Command, _ []string) error {
	var (
		in  scoring.WeekInput
		err error
	)
	if weekFile == "-" {
		in, err = scoring.DecodeWeekInput(cmd.InOrStdin())
	} else {
		in, err = scoring.LoadWeekInput(weekFile)
	}
	if err != nil {
		return err
	}
	groupID := model.CleanID(in.GroupID)
	if groupID == "" {
		return &model.ValidationError{Op: "week add", Field: "group"}
	}
	if in.WeekNumber < 1 {
		return &model.ValidationError{Op: "week add", Field: "week", Msg: "must be at least 1"}
	}
	in.GroupID = groupID

	ctx := cmd.Context()
	st, closeFn, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	mode, err := st.Mode(ctx, scoringMode)
	if err != nil {
		return err
	}
	stored, err := st.GroupWeeks(ctx, groupID)
	if err != nil {
		return err
	}
	saved, err := st.WriteWeek(ctx, scoring.BuildWeek(stored, in, mode))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"Saved %s (%s mode): flags %s, raw %.1f, normalized %.2f, cumulative %.2f, level %s\n",
		saved.Key, mode, stats.FlagString(saved.Flags),
		saved.PointsRaw, saved.PointsNormalized, saved.PointsCumulative,
		scoring.LevelFor(saved.PointsCumulative))
	return err
}

func runWeekListCmd(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	r, err := stats.BuildGroupReport(cmd.Context(), st, args[0])
	if err != nil {
		return err
	}
	return stats.RenderWeeks(cmd.OutOrStdout(), r)
}

func newModeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show or change the scoring mode",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the scoring mode",
		Args:  cobra.NoArgs,
		RunE:  runModeGetCmd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "set <standard|strikt>",
		Short:     "Store the scoring mode",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{model.ModeStandard, model.ModeStrict},
		RunE:      runModeSetCmd,
	})
	return cmd
}

func runModeGetCmd(cmd *cobra.Command, _ []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	mode, err := st.Mode(cmd.Context(), scoringMode)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), mode)
	return err
}

func runModeSetCmd(cmd *cobra.Command, args []string) error {
	st, closeFn, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	if err := st.SetMode(cmd.Context(), strings.TrimSpace(args[0])); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Scoring mode set to %s.\n", strings.TrimSpace(args[0]))
	return err
}
