package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/sdrshn-nmbr/tierledger/internal/config"
	"github.com/sdrshn-nmbr/tierledger/internal/logging"
	"github.com/sdrshn-nmbr/tierledger/pkg/client"
)

const maxResponseBytes = 8 << 20

var errLocalOnly = errors.New("command is only available in local mode")

type cliState struct {
	timeout time.Duration
	json    bool
	client  client.Client
	local   *client.LocalClient
}

func (c *cliState) open(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.timeout = v.GetDuration("timeout")
	c.json = v.GetBool("json")

	switch mode := v.GetString("mode"); mode {
	case "http":
		baseURL := v.GetString("base_url")
		if baseURL == "" {
			return errors.New("base-url is required for http mode")
		}
		httpClient, err := client.NewHTTPClient(client.HTTPOptions{
			BaseURL:          baseURL,
			HTTPClient:       &http.Client{Timeout: c.timeout},
			RetryPolicy:      client.DefaultRetryPolicy(),
			UserAgent:        "tierledger-cli",
			MaxResponseBytes: maxResponseBytes,
		})
		if err != nil {
			return err
		}
		c.client = httpClient
		return nil
	case "local":
	default:
		return fmt.Errorf("invalid mode %q", mode)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}

	openCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	local, err := client.OpenLocal(openCtx, client.LocalOptions{
		StorageType: client.StorageType(cfg.Storage.Type),
		DataPath:    cfg.Storage.DataPath,
		WALPath:     cfg.Storage.WALPath,
		PostgresURL: cfg.Storage.PostgresURL,
		CacheSize:   cfg.Cache.Size,
		Logger:      logging.New(logging.Config{Level: "warn", Format: cfg.Log.Format}),
	})
	if err != nil {
		return err
	}
	c.local = local
	c.client = local
	return nil
}

func (c *cliState) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
}

func (c *cliState) withContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *cliState) requireLocal() (*client.LocalClient, error) {
	if c.local == nil {
		return nil, errLocalOnly
	}
	return c.local, nil
}
