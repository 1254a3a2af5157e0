package db

import (
	"net/url"
	"testing"

	"tableside/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db.local",
		Port:     5433,
		User:     "table side",
		Password: "p@ss:word",
		Database: "tableside",
		SSLMode:  "disable",
		MaxConns: 4,
	})
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("DSN %q does not parse: %v", dsn, err)
	}
	if u.Host != "db.local:5433" || u.Path != "/tableside" {
		t.Fatalf("host/path = %s %s", u.Host, u.Path)
	}
	if pw, _ := u.User.Password(); u.User.Username() != "table side" || pw != "p@ss:word" {
		t.Fatalf("credentials lost: %s", u.User)
	}
	if q := u.Query(); q.Get("sslmode") != "disable" || q.Get("pool_max_conns") != "4" {
		t.Fatalf("query = %s", u.RawQuery)
	}
}
