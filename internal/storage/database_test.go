package storage

import (
	"context"
	"path/filepath"
	"testing"

	"quickcomm/internal/config"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "faq.db")
	db, err := Open(ctx, config.DatabaseConfig{Driver: "sqlite3", DSN: dsn})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db, "sqlite3"); err != nil {
			t.Fatalf("Migrate run %d error: %v", i, err)
		}
	}
	var name string
	if err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='faqs'`).Scan(&name); err != nil {
		t.Fatalf("faqs table missing: %v", err)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	cases := map[string]config.DatabaseConfig{
		"no dsn":        {Driver: "sqlite3"},
		"unknown":       {Driver: "postgres", DSN: "postgres://x"},
		"bad mysql dsn": {Driver: "mysql", DSN: "not a dsn"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if db, err := Open(ctx, cfg); err == nil {
				db.Close()
				t.Fatalf("expected error")
			}
		})
	}
	if err := Migrate(ctx, nil, "postgres"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
