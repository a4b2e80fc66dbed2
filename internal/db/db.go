package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQLite string

//go:embed schema_mysql.sql
var schemaMySQL string

type DB struct {
	*sql.DB
}

func New(dsn string) (*DB, error) {
	var db *sql.DB
	var err error
	var dbType string

	// Determine database type based on DSN format.
	// MySQL DSN examples: user:password@tcp(host:port)/dbname, user:password@/dbname
	// SQLite DSN: file path (e.g., data/kiroo.db, /path/to/db.sqlite, :memory:)
	isMySQL := strings.Contains(dsn, "@")

	if isMySQL {
		dbType = "mysql"
		db, err = sql.Open("mysql", dsn)
	} else {
		dbType = "sqlite"
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			dir := filepath.Dir(dsn)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		// Pragmas go through the DSN so they apply to every pooled
		// connection opened by database/sql.
		if !strings.Contains(dsn, "?") {
			dsn += "?"
		} else {
			dsn += "&"
		}
		pragmas := []string{
			"_pragma=foreign_keys(1)",
			"_pragma=journal_mode(WAL)",
			"_pragma=busy_timeout(30000)",
			"_pragma=synchronous(NORMAL)",
			"_pragma=cache_size(-20000)",
			"_pragma=temp_store(MEMORY)",
		}
		dsn += strings.Join(pragmas, "&")

		db, err = sql.Open("sqlite", dsn)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dbType == "sqlite" {
		// The pull path runs nested row queries per manga; keep enough
		// connections around so a reader holding one connection can
		// still open another.
		db.SetMaxOpenConns(25)
	}

	if err := initSchema(db, dbType); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB, dbType string) error {
	var schema string
	if dbType == "mysql" {
		schema = schemaMySQL
	} else {
		schema = schemaSQLite
	}

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}

		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// IsUniqueViolation reports whether err came from a unique-constraint
// conflict, for either backing driver. Used by the sync engine to turn
// the loser of a concurrent natural-key insert into an update.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "constraint failed: UNIQUE") ||
		strings.Contains(msg, "Error 1062") || // mysql duplicate entry
		strings.Contains(msg, "Duplicate entry")
}
