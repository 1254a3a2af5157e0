package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadSectionsAndDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.local
  user: tableside
  password: secret
  database: tableside
rabbitmq:
  host: mq.local
  user: guest
  password: guest
realtime:
  namespace: orders
  ack_timeout: 2s
client:
  branch_id: b1
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Host != "db.local" || cfg.Database.Port != 5432 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.RabbitMQ.VHost != "/" || cfg.RabbitMQ.Port != 5672 {
		t.Errorf("rabbitmq defaults not applied: %+v", cfg.RabbitMQ)
	}
	if cfg.Realtime.AckTimeout != 2*time.Second {
		t.Errorf("ack timeout = %v", cfg.Realtime.AckTimeout)
	}
	if cfg.Realtime.ReconnectAttempts != 5 || cfg.Realtime.ReconnectDelay != time.Second {
		t.Errorf("reconnect defaults = %d/%v", cfg.Realtime.ReconnectAttempts, cfg.Realtime.ReconnectDelay)
	}
	for name, check := range map[string]func() error{
		"database": cfg.RequireDatabase,
		"rabbitmq": cfg.RequireRabbitMQ,
		"client":   cfg.RequireClient,
	} {
		if err := check(); err != nil {
			t.Errorf("Require %s: %v", name, err)
		}
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  host: from-file\n  port: 6000\n")
	t.Setenv("DB_HOST", "from-env")
	t.Setenv("DB_PORT", "7000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Host != "from-env" || cfg.Database.Port != 7000 {
		t.Errorf("database = %+v", cfg.Database)
	}
}

func TestRequireReportsMissingSections(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequireDatabase() == nil {
		t.Error("expected database error")
	}
	if cfg.RequireRabbitMQ() == nil {
		t.Error("expected rabbitmq error")
	}
	if cfg.RequireClient() == nil {
		t.Error("expected client error")
	}
	if cfg.RequireJoinCode() == nil {
		t.Error("expected join code error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
