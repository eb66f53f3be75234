package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"biliticket/invitehub/internal/config"
	"biliticket/invitehub/internal/model"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries state resolved by the root command for its subcommands.
type cli struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "invitehub",
		Short:         "Invite-code gated registration service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfgFile
			if !cmd.Flags().Changed("config") {
				if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
					path = ""
				}
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			c.cfg, c.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "config.yaml", "config file (env vars override it)")

	cmd.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newCodesCmd(c),
		newSettingsCmd(c),
		newTokenCmd(c),
	)
	return cmd
}

// withApp builds the service graph, runs fn and tears it down.
func (c *cli) withApp(fn func(a *app) error) error {
	a, err := buildApp(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// requirePersistent rejects one-shot commands against the memory driver,
// whose data would vanish when the command exits.
func (c *cli) requirePersistent() error {
	if c.cfg.Database.Driver == "memory" {
		return errors.New("this command needs a persistent database driver (postgres or mysql)")
	}
	return nil
}

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requirePersistent(); err != nil {
				return err
			}
			db, err := config.OpenDatabase(c.cfg.Database)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := model.AutoMigrate(db); err != nil {
				return fmt.Errorf("auto-migrate: %w", err)
			}
			c.logger.Info("database migration completed", zap.String("driver", c.cfg.Database.Driver))
			return nil
		},
	}
}
