// Package config loads the service and optimizer configuration.
//
// Values come from Default, then an optional YAML file, then the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SlNPacifist/icfpc2023/internal/opt"
)

type Config struct {
	// DataDir holds problems/ and solutions/ for the file store.
	DataDir     string `yaml:"data_dir" json:"dataDir"`
	DatabaseURL string `yaml:"database_url" json:"-"`
	RedisURL    string `yaml:"redis_url" json:"-"`

	HTTP      HTTP       `yaml:"http" json:"http"`
	Log       Log        `yaml:"log" json:"log"`
	Webhooks  Webhooks   `yaml:"webhooks" json:"webhooks"`
	Optimizer opt.Config `yaml:"optimizer" json:"optimizer"`
}

type HTTP struct {
	Port      int     `yaml:"port" json:"port"`
	RateRPS   float64 `yaml:"rate_rps" json:"rateRps"`
	RateBurst int     `yaml:"rate_burst" json:"rateBurst"`
	// APIToken guards mutating endpoints when set.
	APIToken string `yaml:"api_token" json:"-"`
	// OptimizeBudget caps the optimizer run of one request.
	OptimizeBudget time.Duration `yaml:"optimize_budget" json:"optimizeBudget"`
}

type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type Webhooks struct {
	URLs        []string `yaml:"urls" json:"urls"`
	Secret      string   `yaml:"secret" json:"-"`
	MaxAttempts int      `yaml:"max_attempts" json:"maxAttempts"`
}

func Default() Config {
	return Config{
		DataDir: "data",
		HTTP: HTTP{
			Port:           8080,
			RateRPS:        20,
			RateBurst:      40,
			OptimizeBudget: 30 * time.Second,
		},
		Log:       Log{Level: "info", Format: "text"},
		Webhooks:  Webhooks{MaxAttempts: 10},
		Optimizer: opt.DefaultConfig(),
	}
}

// Load reads path over Default and applies environment overrides. An empty
// path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("STAGEOPT_DATA_DIR", &c.DataDir)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("API_TOKEN", &c.HTTP.APIToken)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("WEBHOOK_SECRET", &c.Webhooks.Secret)

	if v, ok := lookup("WEBHOOK_URLS"); ok && v != "" {
		c.Webhooks.URLs = c.Webhooks.URLs[:0]
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Webhooks.URLs = append(c.Webhooks.URLs, u)
			}
		}
	}
	ints := map[string]*int{
		"PORT":                 &c.HTTP.Port,
		"RATE_BURST":           &c.HTTP.RateBurst,
		"WEBHOOK_MAX_ATTEMPTS": &c.Webhooks.MaxAttempts,
	}
	for key, dst := range ints {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup("RATE_RPS"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_RPS: %w", err)
		}
		c.HTTP.RateRPS = f
	}
	return nil
}

func (c Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.HTTP.RateRPS < 0 || c.HTTP.RateBurst < 0 {
		return errors.New("http rate limits must not be negative")
	}
	if c.HTTP.OptimizeBudget < 0 {
		return fmt.Errorf("http.optimize_budget must not be negative, got %s", c.HTTP.OptimizeBudget)
	}
	if c.Webhooks.MaxAttempts <= 0 {
		return fmt.Errorf("webhooks.max_attempts must be positive, got %d", c.Webhooks.MaxAttempts)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	return nil
}

func (l Log) level() (slog.Level, error) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lv, nil
}

// NewLogger builds the process logger described by l.
func (l Log) NewLogger() *slog.Logger {
	lv, err := l.level()
	if err != nil {
		lv = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lv}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
