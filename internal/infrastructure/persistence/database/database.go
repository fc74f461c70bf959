// Package database opens the media kit store and owns its schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/pkg/config"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	Driver string
}

// Options selects the backing database. A Turso URL takes precedence over
// the local driver.
type Options struct {
	Driver       string
	DataSource   string
	TursoURL     string
	TursoToken   string
	MaxOpenConns int
	MaxIdleConns int
}

// OptionsFromConfig reads connection settings from pkg/config.
func OptionsFromConfig() Options {
	return Options{
		Driver:       config.DBDriver,
		DataSource:   config.DBDataSource,
		TursoURL:     config.TursoDatabaseURL,
		TursoToken:   config.TursoAuthToken,
		MaxOpenConns: config.DBMaxOpenConns,
		MaxIdleConns: config.DBMaxIdleConns,
	}
}

// Open establishes a connection and verifies it with a ping.
func Open(ctx context.Context, opts Options, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	driver, dsn := opts.Driver, opts.DataSource
	if opts.TursoURL != "" {
		driver, dsn = "libsql", TursoDSN(opts.TursoURL, opts.TursoToken)
	}
	if driver == "" {
		driver = "sqlite3"
	}
	logger.Storage().Debug("Creating new database connection", "driverName", driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		logger.Storage().Error("Failed to open database connection", "error", err.Error(), "driverName", driver)
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Storage().Error("Database ping failed", "error", err.Error(), "driverName", driver)
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	duration := time.Since(start)
	logger.Storage().Info("Database connection established", "driverName", driver, "duration", duration)
	CheckAndLogSlowQuery(logger, "DATABASE_CONNECTION", duration, "system")
	return &DB{DB: db, Driver: driver}, nil
}

// TursoDSN appends the auth token to a libsql URL.
func TursoDSN(databaseURL, authToken string) string {
	if authToken == "" {
		return databaseURL
	}
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	return databaseURL + sep + "authToken=" + authToken
}

// CheckAndLogSlowQuery logs query on the slow query channel when duration
// exceeds the configured threshold. Bulk statements get three times the
// budget.
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, query string, duration time.Duration, kitID string) {
	threshold := config.SlowQueryThreshold
	if strings.HasPrefix(query, "BULK_") {
		threshold *= 3
	}
	if threshold > 0 && duration > threshold {
		logger.LogSlowQuery(query, duration, kitID)
	}
}
