package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

type Config struct {
	BotToken string `env:"BOT_TOKEN"`
	Storage  string `env:"STORAGE,default=postgres"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	RedisHost     string `env:"REDIS_HOST,default=localhost"`
	RedisPort     string `env:"REDIS_PORT,default=6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`
	RedisPrefix   string `env:"REDIS_PREFIX,default=mother_bot"`

	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresHost     string `env:"POSTGRES_HOST,default=localhost"`
	PostgresPort     string `env:"POSTGRES_PORT,default=5432"`
	PostgresDB       string `env:"POSTGRES_DB,default=mother_bot"`
	PostgresUser     string `env:"POSTGRES_USER,default=mother_bot"`
	PostgresPassword string `env:"POSTGRES_PASSWORD"`

	AdminUserIDs    string `env:"ADMIN_USER_IDS"`
	RequiredChannel string `env:"REQUIRED_CHANNEL"`
	PaymentCard     string `env:"PAYMENT_CARD"`

	SessionTimeout   time.Duration `env:"SESSION_TIMEOUT,default=30m"`
	SweepSpec        string        `env:"SWEEP_SPEC,default=@every 1m"`
	BroadcastRate    float64       `env:"BROADCAST_RATE,default=25"`
	BroadcastWorkers int           `env:"BROADCAST_WORKERS,default=4"`

	NATSURL     string `env:"NATS_URL"`
	MetricsAddr string `env:"METRICS_ADDR,default=:9090"`
	CatalogPath string `env:"CATALOG_PATH"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	if cfg.SessionTimeout <= 0 {
		return nil, fmt.Errorf("SESSION_TIMEOUT must be positive, got %s", cfg.SessionTimeout)
	}
	if cfg.BroadcastWorkers <= 0 {
		cfg.BroadcastWorkers = 1
	}
	switch cfg.Storage {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}
	return &cfg, nil
}

func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// DSN returns POSTGRES_DSN or a DSN assembled from the POSTGRES_* parts.
func (c *Config) DSN() string {
	if dsn := strings.TrimSpace(c.PostgresDSN); dsn != "" {
		return dsn
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     c.PostgresHost + ":" + c.PostgresPort,
		Path:     "/" + c.PostgresDB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// AdminIDs parses ADMIN_USER_IDS, skipping malformed entries.
func (c *Config) AdminIDs() []int64 {
	parts := strings.FieldsFunc(c.AdminUserIDs, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
