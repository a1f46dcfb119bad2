package main

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sdrshn-nmbr/tierledger/internal/config"
)

const envPrefix = "TIERLEDGER"

func newRootCommand() *cobra.Command {
	v := viper.New()
	state := &cliState{}

	root := &cobra.Command{
		Use:           "tierledger",
		Short:         "Loyalty tier and settlement ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.open(cmd.Context(), v)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			state.Close()
		},
	}

	flags := root.PersistentFlags()
	flags.String("mode", "local", "mode: local|http")
	flags.String("base-url", "http://localhost:8080", "server base url for http mode")
	flags.Duration("timeout", 10*time.Second, "request timeout")
	flags.Bool("json", false, "print raw JSON")
	flags.String("config", "", "config file for local mode")
	flags.String("storage-type", string(config.StorageMemory), "local storage: memory|disk|postgres")
	flags.String("data", "tierledger.data", "local disk data path")
	flags.String("wal", "", "local wal path")
	flags.String("postgres-url", "", "postgres connection url")

	bindings := map[string]string{
		"mode":                 "mode",
		"base_url":             "base-url",
		"timeout":              "timeout",
		"json":                 "json",
		"config":               "config",
		"storage.type":         "storage-type",
		"storage.data":         "data",
		"storage.wal":          "wal",
		"storage.postgres_url": "postgres-url",
	}
	config.SetDefaults(v)
	for key, name := range bindings {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newSettleCommand(state),
		newPreviewCommand(state),
		newVerifyCommand(state),
		newCustomerCommand(state),
		newImportCommand(state),
		newSeedCommand(state),
		newResetCommand(state),
		newSettingsCommand(state),
		newNotificationsCommand(state),
		newOverviewCommand(state),
		newAnalyticsCommand(state),
		newExportCommand(state),
		newSnapshotCommand(state),
		newBackupCommand(state),
		newCompactCommand(state),
	)
	return root
}

func requireArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.New("usage: " + cmd.CommandPath() + " " + usage)
		}
		return nil
	}
}
