package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TIERLEDGER"

var ErrInvalidConfig = errors.New("invalid config")

type StorageType string

const (
	StorageMemory   StorageType = "memory"
	StorageDisk     StorageType = "disk"
	StoragePostgres StorageType = "postgres"
)

type Config struct {
	HTTP      HTTPConfig
	Storage   StorageConfig
	Log       LogConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type StorageConfig struct {
	Type               StorageType
	DataPath           string
	WALPath            string
	PostgresURL        string
	CompactionInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type NotifyConfig struct {
	Workers   int
	QueueSize int
	SMS       SMSConfig
}

// SMSConfig enables gateway delivery when URL is set.
type SMSConfig struct {
	URL     string
	Account string
	From    string
	Token   string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type CacheConfig struct {
	Size int
}

// Load reads .env (if present), an optional tierledger.yaml from the working
// directory or path, and TIERLEDGER_* environment variables, in increasing
// precedence.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tierledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return FromViper(v)
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 5*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 120*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("storage.type", string(StorageMemory))
	v.SetDefault("storage.data", "tierledger.data")
	v.SetDefault("storage.wal", "")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.compaction_interval", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("notify.workers", 5)
	v.SetDefault("notify.queue", 100)
	v.SetDefault("notify.sms.url", "")
	v.SetDefault("notify.sms.account", "")
	v.SetDefault("notify.sms.from", "")
	v.SetDefault("notify.sms.token", "")
	v.SetDefault("ratelimit.rps", 20.0)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("cache.size", 1024)
}

func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			AllowedOrigins:  v.GetStringSlice("http.allowed_origins"),
		},
		Storage: StorageConfig{
			Type:               StorageType(strings.ToLower(v.GetString("storage.type"))),
			DataPath:           v.GetString("storage.data"),
			WALPath:            v.GetString("storage.wal"),
			PostgresURL:        v.GetString("storage.postgres_url"),
			CompactionInterval: v.GetDuration("storage.compaction_interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Notify: NotifyConfig{
			Workers:   v.GetInt("notify.workers"),
			QueueSize: v.GetInt("notify.queue"),
			SMS: SMSConfig{
				URL:     v.GetString("notify.sms.url"),
				Account: v.GetString("notify.sms.account"),
				From:    v.GetString("notify.sms.from"),
				Token:   v.GetString("notify.sms.token"),
			},
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("ratelimit.rps"),
			Burst: v.GetInt("ratelimit.burst"),
		},
		Cache: CacheConfig{Size: v.GetInt("cache.size")},
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Storage.Type {
	case StorageMemory:
	case StorageDisk:
		if c.Storage.DataPath == "" {
			return fmt.Errorf("%w: storage.data is required for disk storage", ErrInvalidConfig)
		}
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("%w: storage.postgres_url is required for postgres storage", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.type %q", ErrInvalidConfig, c.Storage.Type)
	}
	if c.Notify.Workers <= 0 || c.Notify.QueueSize <= 0 {
		return fmt.Errorf("%w: notify.workers and notify.queue must be positive", ErrInvalidConfig)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("%w: cache.size must not be negative", ErrInvalidConfig)
	}
	if c.Notify.SMS.URL != "" && c.Notify.SMS.From == "" {
		return fmt.Errorf("%w: notify.sms.from is required with notify.sms.url", ErrInvalidConfig)
	}
	return nil
}
