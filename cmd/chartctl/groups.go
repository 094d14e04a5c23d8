package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/tunechart/internal/adapters/repository"
	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/scoring"
	"github.com/okian/tunechart/internal/domain/types"
)

func newGroupCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Create and list groups",
	}
	cmd.AddCommand(newGroupSetCommand(ctx), newGroupListCommand(ctx))
	return cmd
}

func newGroupSetCommand(ctx *commandContext) *cobra.Command {
	var (
		name string
		size int
		day  string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "set <group-id>",
		Short: "Create a group or update its chart settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			weekday, err := parseWeekday(day)
			if err != nil {
				return err
			}
			g := model.Group{
				ID:                args[0],
				Name:              name,
				ChartSize:         size,
				TrackingDayOfWeek: weekday,
				ScoringMode:       model.ScoringMode(mode),
			}
			if g.Name == "" {
				g.Name = g.ID
			}
			if _, err := scoring.ModeFor(g.ScoringMode); err != nil {
				return err
			}
			if g.ChartSize < 1 {
				return fmt.Errorf("%w: chart size must be positive", repository.ErrInvalidGroup)
			}
			if err := ctx.store.UpsertGroup(cmd.Context(), g); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "group %s saved\n", g.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the id)")
	cmd.Flags().IntVar(&size, "size", 10, "Chart size per category")
	cmd.Flags().StringVar(&day, "day", "monday", "Weekday the chart week starts on")
	cmd.Flags().StringVar(&mode, "mode", string(model.ModeVS), "Scoring mode: plays_only, vs or vs_weighted")
	return cmd
}

func newGroupListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			groups, err := ctx.store.ListGroups(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(groups))
			for _, g := range groups {
				rows = append(rows, []string{
					g.ID, g.Name, strconv.Itoa(g.ChartSize),
					strings.ToLower(g.TrackingDayOfWeek.String()), string(g.ScoringMode),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Size", "Week Starts", "Mode"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newMemberCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage group members",
	}

	var sessionKey string
	add := &cobra.Command{
		Use:   "add <group-id> <user-id> <username>",
		Short: "Add a member or update their source credentials",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.store.GetGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			m := model.Member{GroupID: args[0], UserID: args[1], Username: args[2], SessionKey: sessionKey, JoinedAt: time.Now().UTC()}
			if err := ctx.store.AddMember(cmd.Context(), m); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "member %s added to %s\n", m.UserID, m.GroupID)
			return nil
		},
	}
	add.Flags().StringVar(&sessionKey, "session-key", "", "Listening source session key")

	remove := &cobra.Command{
		Use:   "remove <group-id> <user-id>",
		Short: "Remove a member; their past contributions stay in history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.store.RemoveMember(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "member %s removed from %s\n", args[1], args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list <group-id>",
		Short: "List a group's members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := ctx.store.Members(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(members))
			for _, m := range members {
				auth := "no"
				if m.SessionKey != "" {
					auth = "yes"
				}
				rows = append(rows, []string{m.UserID, m.Username, m.JoinedAt.Format(types.DateLayout), auth})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"User", "Username", "Joined", "Session"}, rows, nil))
			return nil
		},
	}

	cmd.AddCommand(add, remove, list)
	return cmd
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) || strings.EqualFold(d.String()[:3], s) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", repository.ErrInvalidGroup, s)
}
