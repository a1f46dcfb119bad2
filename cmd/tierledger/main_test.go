package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdrshn-nmbr/tierledger/internal/loyalty"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCommand()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestReadCustomersAcceptsArrayAndNDJSON(t *testing.T) {
	array := `[{"mobile":"9000000001","name":"A","pin":"1234","points":5,"totalSpent":10,"history":[]}]`
	customers, err := readCustomers(strings.NewReader("  \n" + array))
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.Equal(t, "9000000001", customers[0].Mobile)

	ndjson := `{"mobile":"9000000001","name":"A","pin":"1234"}
{"mobile":"9000000002","name":"B","pin":"5678"}
`
	customers, err = readCustomers(strings.NewReader(ndjson))
	require.NoError(t, err)
	require.Len(t, customers, 2)
	require.Equal(t, "B", customers[1].Name)

	customers, err = readCustomers(strings.NewReader("   "))
	require.NoError(t, err)
	require.Empty(t, customers)

	_, err = readCustomers(strings.NewReader(`{"mobile":`))
	require.Error(t, err)
}

func TestReadTierConfigYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "tiers.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
spend_thresholds: {bronze: 1000, silver: 2000, gold: 3000, platinum: 4000}
points_thresholds: {bronze: 10, silver: 20, gold: 30, platinum: 40}
discounts: {bronze: 1, silver: 2, gold: 3, platinum: 4}
expiry_days: {bronze: 30, silver: 60, gold: 90, platinum: 0}
points_conversion_rate: 0.5
`), 0o644))
	cfg, err := readTierConfig(yamlPath)
	require.NoError(t, err)
	require.Equal(t, 3000.0, cfg.SpendThresholds.Gold)
	require.Equal(t, 0, cfg.ExpiryDays.Platinum)
	require.Equal(t, 0.5, cfg.PointsConversionRate)

	jsonPath := filepath.Join(dir, "tiers.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"pointsConversionRate":2}`), 0o644))
	cfg, err = readTierConfig(jsonPath)
	require.NoError(t, err)
	require.Equal(t, 2.0, cfg.PointsConversionRate)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("unknown_key: 1\n"), 0o644))
	_, err = readTierConfig(badPath)
	require.Error(t, err)
}

func TestCLILocalSettleFlow(t *testing.T) {
	wal := filepath.Join(t.TempDir(), "cli.wal")
	base := []string{"--storage-type", "memory", "--wal", wal}

	require.NoError(t, runCLI(t, append(base, "seed")...))
	require.NoError(t, runCLI(t, append(base, "customer", "get", "7001002003")...))
	require.NoError(t, runCLI(t, append(base,
		"settle", "--mobile", "9000000030", "--name", "Dev", "--pin", "4321", "--bill", "900", "--cash", "1000")...))
	require.NoError(t, runCLI(t, append(base, "--json", "customer", "list")...))

	err := runCLI(t, append(base,
		"settle", "--mobile", "9000000031", "--pin", "12", "--bill", "100", "--cash", "100")...)
	require.EqualError(t, err, loyalty.UserMessage(loyalty.ErrInvalidPin))

	err = runCLI(t, append(base, "reset")...)
	require.ErrorContains(t, err, "--yes")
}

func TestCLIRejectsUnknownMode(t *testing.T) {
	err := runCLI(t, "--mode", "carrier-pigeon", "overview")
	require.ErrorContains(t, err, "invalid mode")
}

func TestCLIMaintenanceNeedsLocalMode(t *testing.T) {
	err := runCLI(t, "--mode", "http", "--base-url", "http://127.0.0.1:1", "compact")
	require.ErrorIs(t, err, errLocalOnly)
}
