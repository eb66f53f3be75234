package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"biliticket/invitehub/internal/model"
	"biliticket/invitehub/internal/service"
)

func newCodesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage invite codes (create, bulk, list, delete, stats)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if root := cmd.Root(); root.PersistentPreRunE != nil {
				if err := root.PersistentPreRunE(cmd, args); err != nil {
					return err
				}
			}
			return c.requirePersistent()
		},
	}
	cmd.AddCommand(
		newCodesCreateCmd(c),
		newCodesBulkCmd(c),
		newCodesListCmd(c),
		newCodesDeleteCmd(c),
		newCodesStatsCmd(c),
	)
	return cmd
}

// parseExpiry accepts a duration from now ("72h") or an absolute time.
func parseExpiry(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		t := now.Add(d).UTC()
		return &t, nil
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --expires %q: use a duration like 72h or a timestamp", s)
	}
	t = t.UTC()
	return &t, nil
}

func newCodesCreateCmd(c *cli) *cobra.Command {
	var (
		uses    int
		role    string
		expires string
	)
	cmd := &cobra.Command{
		Use:   "create <code>",
		Short: "Create an invite code with a chosen text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := parseExpiry(expires, time.Now())
			if err != nil {
				return err
			}
			return c.withApp(func(a *app) error {
				id, err := a.invites.CreateCode(cmd.Context(), service.CreateCodeInput{
					Code:       args[0],
					UsageLimit: uses,
					ExpiryDate: expiry,
					Role:       role,
				})
				if err != nil {
					return fmt.Errorf("create code: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&uses, "uses", 1, "number of registrations the code allows")
	cmd.Flags().StringVar(&role, "role", "", "role granted to users of the code (default from settings)")
	cmd.Flags().StringVar(&expires, "expires", "", "expiry as a duration from now (72h) or a timestamp")
	return cmd
}

func newCodesBulkCmd(c *cli) *cobra.Command {
	var (
		count   int
		uses    int
		role    string
		prefix  string
		expires string
	)
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Generate random invite codes; plaintexts are printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			expiry, err := parseExpiry(expires, time.Now())
			if err != nil {
				return err
			}
			return c.withApp(func(a *app) error {
				if !cmd.Flags().Changed("prefix") {
					prefix = a.cfg.Invite.DefaultPrefix
				}
				codes, err := a.invites.BulkGenerate(cmd.Context(), service.BulkGenerateInput{
					Count:      count,
					UsageLimit: uses,
					ExpiryDate: expiry,
					Role:       role,
					Prefix:     prefix,
				})
				for _, gc := range codes {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", gc.ID, gc.Code)
				}
				if err != nil {
					return fmt.Errorf("bulk generate: %w", err)
				}
				if len(codes) < count {
					fmt.Fprintf(cmd.ErrOrStderr(), "only %d of %d codes could be generated\n", len(codes), count)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 10, "number of codes (max 1000)")
	cmd.Flags().IntVar(&uses, "uses", 1, "number of registrations each code allows")
	cmd.Flags().StringVar(&role, "role", "", "role granted to users of the codes")
	cmd.Flags().StringVar(&prefix, "prefix", "", "code prefix, letters and digits only")
	cmd.Flags().StringVar(&expires, "expires", "", "expiry as a duration from now (72h) or a timestamp")
	return cmd
}

func newCodesListCmd(c *cli) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invite codes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				codes, err := a.invites.ListCodes(cmd.Context(), all)
				if err != nil {
					return fmt.Errorf("list codes: %w", err)
				}
				if len(codes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No invite codes found.")
					return nil
				}
				printCodes(cmd.OutOrStdout(), codes)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include exhausted and suspended codes")
	return cmd
}

func printCodes(out io.Writer, codes []model.CodeView) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSES\tLIMIT\tROLE\tEXPIRES\tCREATED\tSTATUS")
	for _, code := range codes {
		expires := "-"
		if code.ExpiryDate != nil {
			expires = code.ExpiryDate.Format(time.RFC3339)
		}
		status := "active"
		switch {
		case code.UsesRemaining == 0:
			status = "exhausted"
		case !code.Active:
			status = "suspended"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			code.ID, code.TotalUses, code.UsageLimit, code.Role, expires,
			code.CreatedAt.Format(time.RFC3339), status)
	}
	w.Flush()
}

func newCodesDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete invite codes and their usage history",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, len(args))
			for i, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid id %q", arg)
				}
				ids[i] = id
			}
			return c.withApp(func(a *app) error {
				for _, id := range ids {
					if err := a.invites.DeleteCode(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d code(s).\n", len(ids))
				return nil
			})
		},
	}
}

func newCodesStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [id]",
		Short: "Show attempt counts per outcome, for one code or all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var codeID *uuid.UUID
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid id %q", args[0])
				}
				codeID = &id
			}
			return c.withApp(func(a *app) error {
				stats, err := a.ledger.StatsFor(cmd.Context(), codeID)
				if err != nil {
					return fmt.Errorf("stats: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), formatStats(stats))
				return nil
			})
		},
	}
}

func formatStats(stats model.UsageStats) string {
	var b strings.Builder
	for _, o := range model.AllOutcomes {
		fmt.Fprintf(&b, "%-10s %d\n", o, stats[o])
	}
	return b.String()
}
