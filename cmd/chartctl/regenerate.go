package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/tunechart/internal/domain/aggregate"
	"github.com/okian/tunechart/internal/domain/types"
)

func newRegenerateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Rebuild charts from the listening source",
	}

	var exclude []string
	week := &cobra.Command{
		Use:   "week <group-id> <YYYY-MM-DD>",
		Short: "Regenerate the week containing the given date",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(types.DateLayout, args[1])
			if err != nil {
				return fmt.Errorf("invalid week %q: %w", args[1], err)
			}
			lock, err := ctx.lockGroup(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			res, err := ctx.svc.RegenerateWeek(cmd.Context(), args[0], day, exclude)
			if err != nil {
				return explainAbort(err)
			}
			printWeeks(cmd, []types.WeekResult{res})
			fmt.Fprintf(cmd.OutOrStdout(), "records: %s\n", res.RecordsStatus)
			return nil
		},
	}
	week.Flags().StringSliceVar(&exclude, "exclude", nil, "Member ids to skip for this run")

	rng := &cobra.Command{
		Use:   "range <group-id> <weeks-back>",
		Short: "Regenerate the most recent complete weeks, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid weeks-back %q: %w", args[1], err)
			}
			lock, err := ctx.lockGroup(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			res, err := ctx.svc.RegenerateRange(cmd.Context(), args[0], n)
			printWeeks(cmd, res.Weeks)
			if res.RecordsStatus != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "records: %s\n", res.RecordsStatus)
			}
			if err != nil {
				return explainAbort(err)
			}
			return nil
		},
	}

	cmd.AddCommand(week, rng)
	return cmd
}

func printWeeks(cmd *cobra.Command, weeks []types.WeekResult) {
	if len(weeks) == 0 {
		return
	}
	rows := make([][]string, 0, len(weeks))
	for _, w := range weeks {
		rows = append(rows, []string{
			w.Week,
			strconv.Itoa(w.Entries["artists"]),
			strconv.Itoa(w.Entries["tracks"]),
			strconv.Itoa(w.Entries["albums"]),
			fmt.Sprint(w.Failed),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Week", "Artists", "Tracks", "Albums", "Failed"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
}

// explainAbort points the operator at --exclude when members failed.
func explainAbort(err error) error {
	var abort *aggregate.AbortError
	if errors.As(err, &abort) {
		return fmt.Errorf("%w\nretry with --exclude to skip them", err)
	}
	return err
}
