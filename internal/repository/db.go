package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/arquivotcm/fichas/internal/common"
)

// Open connects using database/sql with the configured driver. Postgres
// goes through the pgx stdlib driver; SQLite (dev and tests) through the
// pure-Go modernc driver.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*sql.DB, error) {
	driver, err := normalizeDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}

	logger.Info("connecting to database", "driver", driver)
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MaxConnLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	}
	if cfg.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, dial)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Error("failed to ping database", "error", err)
		_ = db.Close()
		return nil, err
	}
	logger.Info("successfully connected to database")
	return db, nil
}

func normalizeDriver(driver string) (string, error) {
	switch driver {
	case "pgx", "postgres":
		return "pgx", nil
	case "sqlite", "sqlite3":
		return "sqlite", nil
	}
	return "", common.ConfigurationError(fmt.Sprintf("unsupported database driver %q", driver))
}

// Close closes the database gracefully.
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
		return
	}
	logger.Info("database connection closed")
}

// rebinder rewrites '?' placeholders to the driver's style. SQLite takes
// them as-is; pgx wants $1..$n.
type rebinder struct {
	postgres bool
}

func newRebinder(driver string) rebinder {
	return rebinder{postgres: driver == "pgx" || driver == "postgres"}
}

func (r rebinder) Rebind(query string) string {
	if !r.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
