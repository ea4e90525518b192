package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/fastprodman/coinsync/pkg/envconf"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Client is the configuration of the client-resident ledger (ledgerctl).
// It is read from a YAML file and then overlaid with COINSYNC_* variables.
type Client struct {
	Account Account       `yaml:"account"`
	Storage Storage       `yaml:"storage"`
	Backend Backend       `yaml:"backend"`
	Queue   Queue         `yaml:"queue"`
	Breaker Breaker       `yaml:"breaker"`
	History History       `yaml:"history"`
	Serve   Serve         `yaml:"serve"`
	Logging ClientLogging `yaml:"logging"`
}

type Account struct {
	ID string `yaml:"id" env:"COINSYNC_ACCOUNT_ID"`
}

type Storage struct {
	// DurablePath is the SQLite file backing the durable tier.
	DurablePath string `yaml:"durable_path" env:"COINSYNC_DURABLE_PATH"`
	// SessionPath is the file backing the session tier. Empty keeps the
	// session tier in memory for the life of the process.
	SessionPath string `yaml:"session_path" env:"COINSYNC_SESSION_PATH"`
}

type Backend struct {
	BaseURL        string        `yaml:"base_url" env:"COINSYNC_BACKEND_URL"`
	Token          string        `yaml:"token" env:"COINSYNC_BACKEND_TOKEN"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"COINSYNC_BACKEND_TIMEOUT"`
}

type Queue struct {
	MaxAttempts   int           `yaml:"max_attempts" env:"COINSYNC_QUEUE_MAX_ATTEMPTS"`
	BaseDelay     time.Duration `yaml:"base_delay" env:"COINSYNC_QUEUE_BASE_DELAY"`
	MaxDelay      time.Duration `yaml:"max_delay" env:"COINSYNC_QUEUE_MAX_DELAY"`
	SyncSchedule  string        `yaml:"sync_schedule" env:"COINSYNC_SYNC_SCHEDULE"`
	ProbeSchedule string        `yaml:"probe_schedule" env:"COINSYNC_PROBE_SCHEDULE"`
}

type Breaker struct {
	FailureThreshold int           `yaml:"failure_threshold" env:"COINSYNC_BREAKER_THRESHOLD"`
	Cooldown         time.Duration `yaml:"cooldown" env:"COINSYNC_BREAKER_COOLDOWN"`
}

type History struct {
	Limit int `yaml:"limit" env:"COINSYNC_HISTORY_LIMIT"`
}

type Serve struct {
	Addr string `yaml:"addr" env:"COINSYNC_SERVE_ADDR"`
}

type ClientLogging struct {
	Level string `yaml:"level" env:"COINSYNC_LOG_LEVEL"`
}

// DefaultClient returns the configuration used when no file is given.
func DefaultClient() Client {
	return Client{
		Account: Account{ID: "local"},
		Storage: Storage{DurablePath: "coinsync.db"},
		Backend: Backend{RequestTimeout: 10 * time.Second},
		Queue: Queue{
			MaxAttempts:   8,
			BaseDelay:     time.Second,
			MaxDelay:      60 * time.Second,
			SyncSchedule:  "@every 30s",
			ProbeSchedule: "@every 15s",
		},
		Breaker: Breaker{FailureThreshold: 5, Cooldown: 30 * time.Second},
		History: History{Limit: 200},
		Serve:   Serve{Addr: "127.0.0.1:7070"},
		Logging: ClientLogging{Level: "info"},
	}
}

// LoadClient reads path (if non-empty) on top of the defaults, applies env
// overrides and validates the result.
func LoadClient(path string) (*Client, error) {
	cfg := DefaultClient()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	err := envconf.Overlay(&cfg)
	if err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Client) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidConfig)
	}

	if c.Storage.DurablePath == "" {
		return fmt.Errorf("%w: storage.durable_path is required", ErrInvalidConfig)
	}

	if c.Backend.BaseURL != "" {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: invalid backend url %q", ErrInvalidConfig, c.Backend.BaseURL)
		}
	}

	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("%w: backend.request_timeout must be positive", ErrInvalidConfig)
	}

	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("%w: queue.max_attempts must be at least 1", ErrInvalidConfig)
	}

	if c.Queue.BaseDelay <= 0 || c.Queue.MaxDelay < c.Queue.BaseDelay {
		return fmt.Errorf("%w: queue delays must satisfy 0 < base_delay <= max_delay", ErrInvalidConfig)
	}

	for name, spec := range map[string]string{
		"sync_schedule":  c.Queue.SyncSchedule,
		"probe_schedule": c.Queue.ProbeSchedule,
	} {
		_, err := cron.ParseStandard(spec)
		if err != nil {
			return fmt.Errorf("%w: queue.%s: %v", ErrInvalidConfig, name, err)
		}
	}

	if c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("%w: breaker.failure_threshold must be at least 1", ErrInvalidConfig)
	}

	if c.Breaker.Cooldown <= 0 {
		return fmt.Errorf("%w: breaker.cooldown must be positive", ErrInvalidConfig)
	}

	if c.History.Limit < 1 {
		return fmt.Errorf("%w: history.limit must be at least 1", ErrInvalidConfig)
	}

	return nil
}
