package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values like "5s" decode.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config top-level struct
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Postgres  PostgresConfig    `yaml:"postgres"`
	Redis     RedisConfig       `yaml:"redis"`
	Kafka     KafkaConfig       `yaml:"kafka"`
	RateLimit RateLimitConfig   `yaml:"ratelimit"`
	Payment   PaymentConfig     `yaml:"payment"`
	Expiry    ExpiryConfig      `yaml:"expiry"`
	Rates     map[string]string `yaml:"rates"`
	History   HistoryConfig     `yaml:"history"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// PaymentConfig points at the external payment gateway used for money
// capture during checkout settlement.
type PaymentConfig struct {
	BaseURL        string   `yaml:"base_url"`
	CaptureTimeout Duration `yaml:"capture_timeout"`
	RefundBackoff  Duration `yaml:"refund_backoff"`
}

type ExpiryConfig struct {
	SweepInterval Duration `yaml:"sweep_interval"`
}

type HistoryConfig struct {
	MaxPageSize int `yaml:"max_page_size"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server:    ServerConfig{Port: 8080},
		RateLimit: RateLimitConfig{RPS: 20, Burst: 40},
		Payment: PaymentConfig{
			CaptureTimeout: Duration(5 * time.Second),
			RefundBackoff:  Duration(30 * time.Second),
		},
		Expiry:  ExpiryConfig{SweepInterval: Duration(24 * time.Hour)},
		History: HistoryConfig{MaxPageSize: 100},
	}
}

// DefaultRates is the product-approved earn-rate table, tokens per quantity
// unit. Entries in the yaml rates map override it.
func DefaultRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"volunteer_shift": decimal.NewFromInt(1),      // per hour
		"repair":          decimal.NewFromInt(2),      // per completed repair
		"donation":        decimal.NewFromFloat(0.01), // per minor unit of valuation
		"workshop":        decimal.NewFromInt(3),      // per facilitated session
		"swap_event":      decimal.NewFromInt(1),      // per hosted event
	}
}

// RateTable merges configured overrides onto DefaultRates.
func (c *Config) RateTable() (map[string]decimal.Decimal, error) {
	rates := DefaultRates()
	for src, raw := range c.Rates {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("rate for %s: %w", src, err)
		}
		rates[src] = d
	}
	return rates, nil
}
