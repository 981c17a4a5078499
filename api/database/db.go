package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names the SQL backend behind a connection.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Open parses a database URL, opens the matching driver and verifies the
// connection. postgres:// and postgresql:// go to lib/pq; sqlite:// and
// file: go to modernc sqlite.
func Open(databaseURL string) (*sql.DB, Dialect, error) {
	dialect, dsn, err := parseURL(databaseURL)
	if err != nil {
		return nil, "", err
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	switch dialect {
	case DialectSQLite:
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY under concurrent webhooks.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, dialect, nil
}

func parseURL(databaseURL string) (Dialect, string, error) {
	raw := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, withDisablePreparedStatements(raw), nil
	case strings.HasPrefix(lower, "sqlite://"):
		return DialectSQLite, sqliteDSN(raw[len("sqlite://"):]), nil
	case strings.HasPrefix(lower, "file:"):
		return DialectSQLite, sqliteDSN(strings.TrimPrefix(raw[len("file:"):], "//")), nil
	case raw == "":
		return "", "", fmt.Errorf("database URL is empty")
	default:
		return "", "", fmt.Errorf("unsupported database URL scheme in %q", redact(raw))
	}
}

// sqliteDSN appends the pragmas every connection needs. Foreign keys are off
// by default in SQLite.
func sqliteDSN(path string) string {
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	return path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"foreign_keys(1)",
		},
	}.Encode()
}

// withDisablePreparedStatements appends disable_prepared_statements=true and binary_parameters=yes to the DSN if not present.
// This nudges lib/pq to avoid server-side prepared statements and binary mode, which can break with PgBouncer transaction pooling.
func withDisablePreparedStatements(dsn string) string {
	lower := strings.ToLower(dsn)
	if strings.Contains(lower, "disable_prepared_statements=") || strings.Contains(lower, "prefer_simple_protocol=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	extras := []string{"disable_prepared_statements=true"}
	if !strings.Contains(lower, "binary_parameters=") {
		extras = append(extras, "binary_parameters=yes")
	}
	return dsn + sep + strings.Join(extras, "&")
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.User(u.User.Username())
	return u.String()
}
