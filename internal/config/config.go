package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Toss      TossConfig      `yaml:"toss"`
	Events    EventsConfig    `yaml:"events"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
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

// KafkaConfig points at the operator alert feed.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	OpsTopic string   `yaml:"ops_topic"`
}

type TossConfig struct {
	BaseURL   string        `yaml:"base_url"`
	SecretKey string        `yaml:"secret_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// EventsConfig tunes the dispatch pipeline and the retry sweeper.
type EventsConfig struct {
	BufferSize    int           `yaml:"buffer_size"`
	Workers       int           `yaml:"workers"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	MaxRetries    int           `yaml:"max_retries"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override secrets from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if sk := os.Getenv("TOSS_SECRET_KEY"); sk != "" {
		cfg.Toss.SecretKey = sk
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 256
	}
	if c.Events.Workers <= 0 {
		c.Events.Workers = 4
	}
	if c.Events.SweepInterval <= 0 {
		c.Events.SweepInterval = 5 * time.Second
	}
	if c.Events.MaxRetries <= 0 {
		c.Events.MaxRetries = 3
	}
	if c.Toss.Timeout <= 0 {
		c.Toss.Timeout = 10 * time.Second
	}
}
