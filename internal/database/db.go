package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/growfi/growfi-server/internal/config"
)

// Dialect names the SQL flavour of a connection.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ParseDialect accepts "mysql" or "sqlite" in any case.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case MySQL, "":
		return MySQL, nil
	case SQLite:
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER %q", s)
	}
}

// Options selects and addresses the database.  Path is used by SQLite;
// the remaining fields by MySQL.
type Options struct {
	Dialect Dialect
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
	Path    string
}

// FromConfig builds Options from the DB_* settings.
func FromConfig(cfg config.Config) (Options, error) {
	d, err := ParseDialect(cfg.DBDriver)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Dialect: d,
		User:    cfg.DBUser,
		Pass:    cfg.DBPass,
		Host:    cfg.DBHost,
		Port:    cfg.DBPort,
		Name:    cfg.DBName,
		Path:    cfg.DBPath,
	}, nil
}

// Open connects to the configured database and verifies the connection.
func Open(o Options) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch o.Dialect {
	case SQLite:
		db, err = OpenSQLite(o.Path)
		if err != nil {
			return nil, err
		}
	case MySQL:
		db, err = sql.Open("mysql", mysqlDSN(o))
		if err != nil {
			return nil, err
		}
		// Pool settings
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", o.Dialect)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens a SQLite database at path; ":memory:" gives a private
// in-memory database.  SQLite allows a single writer, so the pool is
// limited to one connection, which also keeps an in-memory database alive
// for the lifetime of the handle.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	dsn := "file::memory:?_time_format=sqlite"
	if path != ":memory:" {
		dsn = "file:" + path + "?_time_format=sqlite&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

func mysqlDSN(o Options) string {
	auth := o.User
	if o.Pass != "" {
		auth = fmt.Sprintf("%s:%s", o.User, o.Pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, o.Host, o.Port, o.Name)
}
