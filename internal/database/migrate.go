package database

import (
	"context"
	"database/sql"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL DEFAULT 'INVESTOR',
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS ownership_records (
		farm_id VARCHAR(64) NOT NULL,
		plot_id VARCHAR(32) NOT NULL,
		farm_name VARCHAR(255) NOT NULL,
		user_id BIGINT UNSIGNED NOT NULL,
		holder VARCHAR(64) NOT NULL,
		token_id VARCHAR(128) NOT NULL,
		price_paid_xrp DOUBLE NOT NULL,
		crop VARCHAR(32) NOT NULL,
		estimated_yield_kg DOUBLE NOT NULL,
		tx_ref VARCHAR(128) NOT NULL,
		simulated TINYINT(1) NOT NULL DEFAULT 0,
		purchased_at DATETIME NOT NULL,
		PRIMARY KEY (farm_id, plot_id),
		INDEX idx_ownership_user (user_id),
		INDEX idx_ownership_holder (holder)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'INVESTOR',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_hash TEXT NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_user ON refresh_tokens(user_id)`,
	`CREATE TABLE IF NOT EXISTS ownership_records (
		farm_id TEXT NOT NULL,
		plot_id TEXT NOT NULL,
		farm_name TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		holder TEXT NOT NULL,
		token_id TEXT NOT NULL,
		price_paid_xrp REAL NOT NULL,
		crop TEXT NOT NULL,
		estimated_yield_kg REAL NOT NULL,
		tx_ref TEXT NOT NULL,
		simulated INTEGER NOT NULL DEFAULT 0,
		purchased_at DATETIME NOT NULL,
		PRIMARY KEY (farm_id, plot_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ownership_user ON ownership_records(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ownership_holder ON ownership_records(holder)`,
}

// Migrate creates the schema for the dialect.  Every statement is
// idempotent, so Migrate may run on every start.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	var stmts []string
	switch d {
	case MySQL:
		stmts = mysqlSchema
	case SQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("unsupported dialect %q", d)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
