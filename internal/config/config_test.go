package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
	require.Equal(t, StorageMemory, cfg.Storage.Type)
	require.Equal(t, 5, cfg.Notify.Workers)
	require.Equal(t, 100, cfg.Notify.QueueSize)
	require.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tierledger.yaml")
	body := []byte("storage:\n  type: disk\n  data: " + filepath.Join(dir, "ledger.data") + "\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))

	t.Setenv("TIERLEDGER_HTTP_ADDR", ":9999")
	t.Setenv("TIERLEDGER_CACHE_SIZE", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, StorageDisk, cfg.Storage.Type)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, ":9999", cfg.HTTP.Addr)
	require.Equal(t, 16, cfg.Cache.Size)
}

func TestValidateRejects(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("storage.type", "postgres")
	_, err := FromViper(v)
	require.ErrorIs(t, err, ErrInvalidConfig)

	v.Set("storage.type", "cassandra")
	_, err = FromViper(v)
	require.ErrorIs(t, err, ErrInvalidConfig)

	v = viper.New()
	SetDefaults(v)
	v.Set("notify.sms.url", "http://localhost:9000")
	_, err = FromViper(v)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
