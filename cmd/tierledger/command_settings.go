package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

func newSettingsCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or replace tier thresholds, discounts and expiry windows",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the active tier configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			cfg, err := state.client.Config(ctx)
			if err != nil {
				return err
			}
			return state.print(cfg, func() {
				printTierConfig(cfg)
			})
		},
	})

	var out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the tier configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := state.withContext()
			defer cancel()
			cfg, err := state.client.Config(ctx)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	exportCmd.Flags().StringVar(&out, "file", "", "output file; defaults to stdout")
	cmd.AddCommand(exportCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Replace the tier configuration from a YAML or JSON file",
		Args:  requireArgs(1, "<file>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readTierConfig(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := state.withContext()
			defer cancel()
			saved, err := state.client.SaveConfig(ctx, cfg)
			if err != nil {
				return err
			}
			return state.print(saved, func() {
				fmt.Printf("%s settings saved\n", green("✔"))
				printTierConfig(saved)
			})
		},
	})
	return cmd
}

func readTierConfig(path string) (loyalty.TierConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return loyalty.TierConfig{}, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxImportBytes))
	if err != nil {
		return loyalty.TierConfig{}, err
	}

	var cfg loyalty.TierConfig
	if strings.EqualFold(filepath.Ext(path), ".json") {
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		err = decoder.Decode(&cfg)
	} else {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		err = decoder.Decode(&cfg)
	}
	if err != nil {
		return loyalty.TierConfig{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

func printTierConfig(cfg loyalty.TierConfig) {
	rows := make([][]string, 0, len(loyalty.RankedTiers))
	for _, tier := range loyalty.RankedTiers {
		expiry := "never"
		if days := cfg.ExpiryDays.For(tier); days > 0 {
			expiry = strconv.Itoa(days) + " days"
		}
		rows = append(rows, []string{
			tier.String(),
			money(cfg.SpendThresholds.For(tier)),
			strconv.FormatInt(cfg.PointsThresholds.For(tier), 10),
			strconv.FormatFloat(cfg.Discounts.For(tier), 'f', -1, 64) + "%",
			expiry,
		})
	}
	printTable([]string{"TIER", "SPEND", "POINTS", "DISCOUNT", "EXPIRY"}, rows)
	fmt.Printf("1 point = %s\n", money(cfg.PointsConversionRate))
}
