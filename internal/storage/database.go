package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"quickcomm/internal/config"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the FAQ database described by cfg.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%s dsn must be provided", cfg.Driver)
	}
	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if strings.Contains(cfg.DSN, ":memory:") {
			// every pooled connection would get its own empty database
			db.SetMaxOpenConns(1)
		}
	case "mysql":
		mc, perr := mysql.ParseDSN(cfg.DSN)
		if perr != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", perr)
		}
		mc.ParseTime = true
		connector, cerr := mysql.NewConnector(mc)
		if cerr != nil {
			return nil, fmt.Errorf("open mysql database: %w", cerr)
		}
		db = sql.OpenDB(connector)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS faqs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				question TEXT NOT NULL UNIQUE,
				answer TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS faqs (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				question VARCHAR(512) NOT NULL,
				answer TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_faq_question (question)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
