package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // booking.timezone must resolve on hosts without zoneinfo

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/afiqaffendi/rbs/internal/config"
	"github.com/afiqaffendi/rbs/internal/database"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "rbsctl",
		Short:         "Operator tool for the restaurant booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "path to config.yaml")

	root.AddCommand(newSlotsCmd())
	root.AddCommand(newTokenCmd(opts))
	root.AddCommand(newSeedCmd(opts))
	root.AddCommand(newBackupCmd(opts))
	root.AddCommand(newOutboxCmd(opts))
	root.AddCommand(newAvailabilityCmd())
	root.AddCommand(newPayCmd())

	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openDB loads the config and opens the database it points to. Logs go to stderr.
func (o *rootOptions) openDB() (*config.Config, *database.DB, *zerolog.Logger, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, &logger, nil
}
