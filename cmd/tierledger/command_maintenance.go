package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sdrshn-nmbr/tierledger/internal/db"
)

func newSnapshotCommand(state *cliState) *cobra.Command {
	var opts db.SnapshotOptions
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write a point-in-time copy of local storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Path == "" {
				return errors.New("snapshot requires --path")
			}
			local, err := state.requireLocal()
			if err != nil {
				return err
			}
			ctx, cancel := state.withContext()
			defer cancel()
			stats, err := local.Snapshot(ctx, opts)
			if err != nil {
				return err
			}
			return state.print(stats, func() {
				fmt.Printf("%s %d entries, %d bytes -> %s (%s)\n", green("✔"), stats.Entries, stats.Bytes, stats.Path, stats.Duration)
				if stats.WALPath != "" {
					fmt.Printf("  wal %d bytes -> %s\n", stats.WALBytes, stats.WALPath)
				}
			})
		},
	}
	cmd.Flags().StringVar(&opts.Path, "path", "", "snapshot path")
	cmd.Flags().BoolVar(&opts.IncludeWAL, "include-wal", false, "copy the wal alongside the snapshot")
	return cmd
}

func newBackupCommand(state *cliState) *cobra.Command {
	var opts db.BackupOptions
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a snapshot and manifest into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Directory == "" {
				return errors.New("backup requires --dir")
			}
			local, err := state.requireLocal()
			if err != nil {
				return err
			}
			ctx, cancel := state.withContext()
			defer cancel()
			stats, err := local.Backup(ctx, opts)
			if err != nil {
				return err
			}
			return state.print(stats, func() {
				fmt.Printf("%s backup %s (%d entries)\n", green("✔"), stats.ManifestPath, stats.Snapshot.Entries)
				for prefix, n := range stats.KeyCounts {
					fmt.Printf("  %-6s %d\n", prefix, n)
				}
			})
		},
	}
	cmd.Flags().StringVar(&opts.Directory, "dir", "", "existing backup directory")
	cmd.Flags().BoolVar(&opts.IncludeWAL, "include-wal", false, "copy the wal into the backup")
	return cmd
}

func newCompactCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Rewrite disk storage without stale records",
		RunE: func(cmd *cobra.Command, args []string) error {
			local, err := state.requireLocal()
			if err != nil {
				return err
			}
			ctx, cancel := state.withContext()
			defer cancel()
			stats, err := local.Compact(ctx)
			if err != nil {
				return err
			}
			return state.print(stats, func() {
				if stats.Skipped {
					fmt.Println(yellow("compaction skipped"))
					return
				}
				fmt.Printf("%s %d entries, %d -> %d bytes\n", green("✔"), stats.EntriesWritten, stats.BytesBefore, stats.BytesAfter)
			})
		},
	}
}
