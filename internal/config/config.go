package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the self-order system
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	HTTP     HTTPConfig     `yaml:"http"`
	Session  SessionConfig  `yaml:"session"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
}

// SessionConfig holds the session lifecycle tuning knobs
type SessionConfig struct {
	WindowMinutes        int   `yaml:"window_minutes"`
	PaymentWindowMinutes int   `yaml:"payment_window_minutes"`
	ExpireSweepSeconds   int   `yaml:"expire_sweep_seconds"`
	CleanupSweepSeconds  int   `yaml:"cleanup_sweep_seconds"`
	RetentionHours       int   `yaml:"retention_hours"`
	AmountTolerance      int64 `yaml:"amount_tolerance"`
}

// Load reads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return config, nil
}

// applyDefaults fills in zero-valued knobs
func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3000
	}
	if c.Session.WindowMinutes == 0 {
		c.Session.WindowMinutes = 120
	}
	if c.Session.PaymentWindowMinutes == 0 {
		c.Session.PaymentWindowMinutes = 15
	}
	if c.Session.ExpireSweepSeconds == 0 {
		c.Session.ExpireSweepSeconds = 300
	}
	if c.Session.CleanupSweepSeconds == 0 {
		c.Session.CleanupSweepSeconds = 3600
	}
	if c.Session.RetentionHours == 0 {
		c.Session.RetentionHours = 24
	}
	if c.Session.AmountTolerance == 0 {
		c.Session.AmountTolerance = 1
	}
}

// SessionWindow returns the session validity window
func (c *Config) SessionWindow() time.Duration {
	return time.Duration(c.Session.WindowMinutes) * time.Minute
}

// PaymentWindow returns the advisory payment validity window
func (c *Config) PaymentWindow() time.Duration {
	return time.Duration(c.Session.PaymentWindowMinutes) * time.Minute
}

// ExpireSweepInterval returns the interval between expire sweeps
func (c *Config) ExpireSweepInterval() time.Duration {
	return time.Duration(c.Session.ExpireSweepSeconds) * time.Second
}

// CleanupSweepInterval returns the interval between cleanup sweeps
func (c *Config) CleanupSweepInterval() time.Duration {
	return time.Duration(c.Session.CleanupSweepSeconds) * time.Second
}

// Retention returns how long expired sessions are kept before deletion
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Session.RetentionHours) * time.Hour
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}
