package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"biliticket/invitehub/internal/service"
)

func newSettingsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or change runtime settings",
	}
	cmd.AddCommand(newSettingsGetCmd(c), newSettingsSetCmd(c))
	return cmd
}

func newSettingsGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(func(a *app) error {
				current, err := a.settings.Current(cmd.Context())
				if err != nil {
					return fmt.Errorf("load settings: %w", err)
				}
				values := current.Values()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				for _, key := range service.SettingKeys {
					raw, _ := json.Marshal(values[key])
					fmt.Fprintf(w, "%s\t%s\n", key, raw)
				}
				return w.Flush()
			})
		},
	}
}

func newSettingsSetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist one setting; value is parsed as JSON, falling back to a plain string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if !slices.Contains(service.SettingKeys, key) {
				return fmt.Errorf("unknown setting %q", key)
			}
			if err := c.requirePersistent(); err != nil {
				return err
			}
			var value any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				value = args[1]
			}
			return c.withApp(func(a *app) error {
				if err := a.settings.Set(cmd.Context(), key, value); err != nil {
					return fmt.Errorf("set %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
				return nil
			})
		},
	}
}
