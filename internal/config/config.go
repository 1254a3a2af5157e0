package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every parameter of the tableside binaries. Each mode reads
// only the sections it needs and validates them with the matching Require* call.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Storage  StorageConfig  `yaml:"storage"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Client   ClientConfig   `yaml:"client"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int32  `yaml:"max_conns"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	UseTLS   bool   `yaml:"use_tls"`
}

type StorageConfig struct {
	Addr string `yaml:"addr"`
	// Driver is "postgres" or "memory".
	Driver      string   `yaml:"driver"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type RealtimeConfig struct {
	// Addr is where the hub listens.
	Addr string `yaml:"addr"`
	// URL is what clients dial, without the namespace.
	URL               string        `yaml:"url"`
	Namespace         string        `yaml:"namespace"`
	AckTimeout        time.Duration `yaml:"ack_timeout"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
}

type ClientConfig struct {
	APIURL   string `yaml:"api_url"`
	BranchID string `yaml:"branch_id"`
	StateDir string `yaml:"state_dir"`
	// JoinCode is the session a customer device joins.
	JoinCode string `yaml:"join_code"`
}

// Load reads the YAML file at path, then applies .env and process
// environment overrides, then fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("couldn't open the configuration file: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	// .env is optional; a missing file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Database, "DB_NAME")
	setString(&c.RabbitMQ.Host, "RABBITMQ_HOST")
	setInt(&c.RabbitMQ.Port, "RABBITMQ_PORT")
	setString(&c.RabbitMQ.User, "RABBITMQ_USER")
	setString(&c.RabbitMQ.Password, "RABBITMQ_PASSWORD")
	setString(&c.Storage.Addr, "STORAGE_ADDR")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Realtime.Addr, "REALTIME_ADDR")
	setString(&c.Realtime.URL, "REALTIME_URL")
	setString(&c.Client.APIURL, "API_URL")
	setString(&c.Client.BranchID, "BRANCH_ID")
	setString(&c.Client.StateDir, "STATE_DIR")
	setString(&c.Client.JoinCode, "JOIN_CODE")
}

func applyDefaults(c *Config) {
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.RabbitMQ.VHost == "" {
		c.RabbitMQ.VHost = "/"
	}
	if c.Storage.Addr == "" {
		c.Storage.Addr = ":3000"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Realtime.Addr == "" {
		c.Realtime.Addr = ":3001"
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = "ws://localhost:3001"
	}
	if c.Realtime.Namespace == "" {
		c.Realtime.Namespace = "orders"
	}
	if c.Realtime.AckTimeout == 0 {
		c.Realtime.AckTimeout = 5 * time.Second
	}
	if c.Realtime.ReconnectAttempts == 0 {
		c.Realtime.ReconnectAttempts = 5
	}
	if c.Realtime.ReconnectDelay == 0 {
		c.Realtime.ReconnectDelay = time.Second
	}
	if c.Client.APIURL == "" {
		c.Client.APIURL = "http://localhost:3000"
	}
	if c.Client.StateDir == "" {
		c.Client.StateDir = ".tableside"
	}
}

// RequireDatabase reports an incomplete database section.
func (c *Config) RequireDatabase() error {
	if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
		return errors.New("database config incomplete: host, user and database are required")
	}
	return nil
}

// RequireRabbitMQ reports an incomplete rabbitmq section.
func (c *Config) RequireRabbitMQ() error {
	if c.RabbitMQ.Host == "" || c.RabbitMQ.User == "" {
		return errors.New("rabbitmq config incomplete: host and user are required")
	}
	return nil
}

// RequireClient reports a client section that cannot reach a branch.
func (c *Config) RequireClient() error {
	if c.Client.BranchID == "" {
		return errors.New("client config incomplete: branch_id is required")
	}
	return nil
}

// RequireJoinCode reports a customer device with no session to join.
func (c *Config) RequireJoinCode() error {
	if c.Client.JoinCode == "" {
		return errors.New("client config incomplete: join_code is required")
	}
	return nil
}

// FindConfig returns the first existing candidate config file.
func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "config.yml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
