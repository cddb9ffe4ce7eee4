// Package config loads service configuration from an optional YAML file
// overlaid with BREAKTOOL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fileEnv = "BREAKTOOL_CONFIG"

type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	PGDSN           string        `yaml:"pg_dsn"`
	AuthSecret      string        `yaml:"auth_secret"`
	TokenTTL        time.Duration `yaml:"token_ttl"`
	LogLevel        string        `yaml:"log_level"`
	RateLimitRPS    int           `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Engine          Engine        `yaml:"engine"`
}

// Engine holds reputation tunables.
type Engine struct {
	NewMemberWindow  time.Duration `yaml:"new_member_window"`
	VerdictEvidenceK float64       `yaml:"verdict_evidence_k"`
}

func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		TokenTTL:        time.Hour,
		LogLevel:        "info",
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		ShutdownTimeout: 10 * time.Second,
		Engine: Engine{
			NewMemberWindow:  30 * 24 * time.Hour,
			VerdictEvidenceK: 2,
		},
	}
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds a Config from defaults, the YAML file named by
// BREAKTOOL_CONFIG and the environment, in that order.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(getenv(fileEnv)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("BREAKTOOL_HTTP_ADDR", &cfg.HTTPAddr)
	str("BREAKTOOL_PG_DSN", &cfg.PGDSN)
	str("BREAKTOOL_AUTH_SECRET", &cfg.AuthSecret)
	str("BREAKTOOL_LOG_LEVEL", &cfg.LogLevel)

	durations := map[string]*time.Duration{
		"BREAKTOOL_TOKEN_TTL":         &cfg.TokenTTL,
		"BREAKTOOL_SHUTDOWN_TIMEOUT":  &cfg.ShutdownTimeout,
		"BREAKTOOL_NEW_MEMBER_WINDOW": &cfg.Engine.NewMemberWindow,
	}
	for key, dst := range durations {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"BREAKTOOL_RATE_LIMIT_RPS":   &cfg.RateLimitRPS,
		"BREAKTOOL_RATE_LIMIT_BURST": &cfg.RateLimitBurst,
	}
	for key, dst := range ints {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := strings.TrimSpace(getenv("BREAKTOOL_VERDICT_EVIDENCE_K")); v != "" {
		k, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BREAKTOOL_VERDICT_EVIDENCE_K: %w", err)
		}
		cfg.Engine.VerdictEvidenceK = k
	}
	return nil
}

// Validate reports every invalid setting, joined into one error.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token_ttl must be positive"))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if c.Engine.NewMemberWindow <= 0 {
		errs = append(errs, errors.New("engine.new_member_window must be positive"))
	}
	if c.Engine.VerdictEvidenceK <= 0 {
		errs = append(errs, errors.New("engine.verdict_evidence_k must be positive"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
