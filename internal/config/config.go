package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8088"`

	DBType  string `envconfig:"STORAGE_BACKEND" default:"file"`
	DBDSN   string `envconfig:"POSTGRES_DSN" default:""`
	DataDir string `envconfig:"DATA_DIR" default:"data"`

	// Redis is optional; without it device status is static and sends are logged.
	RedisAddr    string `envconfig:"REDIS_ADDR" default:""`
	RedisChannel string `envconfig:"REDIS_CHANNEL" default:"interventions"`

	AuthToken      string `envconfig:"AUTH_TOKEN" default:"MOCK-TOKEN"`
	AuthServiceURL string `envconfig:"AUTH_SERVICE_URL" default:""`
	DevUserID      string `envconfig:"DEV_USER_ID" default:"u1"`

	// operator token for POST /scheduler/tick; the route is closed when empty
	CronToken string `envconfig:"CRON_TOKEN" default:""`

	DailyMax               int           `envconfig:"DAILY_MAX" default:"3"`
	DefaultMinGap          time.Duration `envconfig:"DEFAULT_MIN_GAP" default:"2h"`
	TickInterval           time.Duration `envconfig:"TICK_INTERVAL" default:"1m"`
	SendTimeout            time.Duration `envconfig:"SEND_TIMEOUT" default:"30s"`
	PatternRebuildInterval time.Duration `envconfig:"PATTERN_REBUILD_INTERVAL" default:"6h"`
	HistoryLookbackDays    int           `envconfig:"HISTORY_LOOKBACK_DAYS" default:"30"`
}

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

var (
	cfg  *Config
	once sync.Once
)

// Load is the process-wide accessor used by the server; it panics on invalid config.
func Load() *Config {
	once.Do(func() {
		c, err := New()
		if err != nil {
			panic("Invalid config: " + err.Error())
		}
		cfg = c
	})
	return cfg
}

// New reads .env (when present) and the environment without caching.
func New() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.DBType != BackendFile && c.DBType != BackendPostgres {
		return errors.New("STORAGE_BACKEND must be one of: file, postgres")
	}
	if c.DBType == BackendPostgres && c.DBDSN == "" {
		return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
	}
	if c.DBType == BackendFile && c.DataDir == "" {
		return errors.New("File storage requires DATA_DIR to be set")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	if c.Env != "development" && c.AuthServiceURL == "" {
		return errors.New("AUTH_SERVICE_URL is required outside development")
	}
	if c.DailyMax < 1 {
		return errors.New("DAILY_MAX must be at least 1")
	}
	if c.TickInterval <= 0 || c.SendTimeout <= 0 || c.PatternRebuildInterval <= 0 {
		return errors.New("TICK_INTERVAL, SEND_TIMEOUT and PATTERN_REBUILD_INTERVAL must be positive")
	}
	if c.HistoryLookbackDays < 14 {
		// the analyzer compares this week against last week
		return errors.New("HISTORY_LOOKBACK_DAYS must be at least 14")
	}
	return nil
}

// loadDotEnv sets KEY=VALUE pairs from path without overriding variables already set.
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		_ = os.Setenv(key, strings.Trim(strings.TrimSpace(val), `"`))
	}
	return sc.Err()
}
