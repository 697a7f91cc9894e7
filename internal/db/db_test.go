package db

import (
	"net/url"
	"testing"

	"github.com/eventdesk/apiserver/config"
)

func TestURL(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "events",
		Password: "p@ss word",
		DBName:   "eventdesk",
	}

	u, err := url.Parse(URL(cfg))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "db.internal:5433" {
		t.Errorf("host = %q", u.Host)
	}
	if pw, _ := u.User.Password(); pw != "p@ss word" {
		t.Errorf("password = %q", pw)
	}
	if u.Query().Get("sslmode") != "disable" {
		t.Errorf("sslmode = %q, want disable", u.Query().Get("sslmode"))
	}

	cfg.UseSSL = true
	u, _ = url.Parse(URL(cfg))
	if u.Query().Get("sslmode") != "require" {
		t.Errorf("sslmode = %q, want require", u.Query().Get("sslmode"))
	}
}
