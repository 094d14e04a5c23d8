package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/types"
)

func newChartCommand(ctx *commandContext) *cobra.Command {
	var (
		week   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "chart <group-id> <artists|tracks|albums>",
		Short: "Print a group chart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := model.ParseCategory(args[1])
			if err != nil {
				return err
			}
			var at time.Time
			if week != "" {
				if at, err = time.Parse(types.DateLayout, week); err != nil {
					return fmt.Errorf("invalid week %q: %w", week, err)
				}
			}
			chart, err := ctx.svc.GetChartSnapshot(cmd.Context(), args[0], at, c)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, chart)
			}

			rows := make([][]string, 0, len(chart.Entries))
			for _, e := range chart.Entries {
				rows = append(rows, []string{
					strconv.Itoa(e.Position), movement(e), e.Name, e.Artist,
					strconv.Itoa(e.Playcount), strconv.FormatFloat(e.Score, 'f', 2, 64),
					strconv.Itoa(e.Peak), strconv.Itoa(e.TotalWeeks),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s, week of %s\n", chart.GroupID, chart.Category, chart.Week)
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"#", "Move", "Name", "Artist", "Plays", "Score", "Peak", "Wks"}, rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&week, "week", "", "Any date in the week (defaults to the latest chart)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// movement renders a row's change marker.
func movement(e types.ChartRow) string {
	switch {
	case e.EntryType == string(model.EntryTypeNew):
		return "NEW"
	case e.EntryType == string(model.EntryTypeReEntry):
		return "RE"
	case e.PositionChange == nil:
		return ""
	case *e.PositionChange > 0:
		return "+" + strconv.Itoa(*e.PositionChange)
	case *e.PositionChange < 0:
		return strconv.Itoa(*e.PositionChange)
	}
	return "="
}

func newEntryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "entry <group-id> <artists|tracks|albums> <key>",
		Short: "Print an entry's chart stats",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := model.ParseCategory(args[1])
			if err != nil {
				return err
			}
			key, err := url.PathUnescape(args[2])
			if err != nil {
				return err
			}
			st, err := ctx.svc.GetEntryStats(cmd.Context(), args[0], c, key)
			if err != nil {
				return err
			}
			return writeJSON(cmd, st)
		},
	}
}

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "records <group-id>",
		Short: "Print a group's records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if refresh {
				snap, err := ctx.svc.RefreshRecords(cmd.Context(), args[0], true)
				if err != nil {
					return err
				}
				return writeJSON(cmd, snap)
			}
			snap, err := ctx.svc.GetRecords(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, snap)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Recompute records in full before printing")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
