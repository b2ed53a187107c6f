package database

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
)

type Database struct {
	DB     *sql.DB
	logger *zap.Logger
}

var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "api_logs",
		sql: `
	CREATE TABLE IF NOT EXISTS api_logs (
		id SERIAL PRIMARY KEY,
		system VARCHAR(50) NOT NULL,
		endpoint TEXT NOT NULL,
		method VARCHAR(10) NOT NULL,
		request_body TEXT DEFAULT '',
		response_body TEXT DEFAULT '',
		status_code INTEGER NOT NULL,
		duration_ms BIGINT NOT NULL,
		principal VARCHAR(255) DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,
	},
	{
		name: "archive_runs",
		sql: `
	CREATE TABLE IF NOT EXISTS archive_runs (
		id SERIAL PRIMARY KEY,
		run_id VARCHAR(36) NOT NULL,
		request_id VARCHAR(64) NOT NULL,
		request_status VARCHAR(20) NOT NULL,
		status VARCHAR(20) NOT NULL,
		strategy VARCHAR(20) DEFAULT '',
		uploaded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`,
	},
	{
		name: "idx_archive_runs_request_id",
		sql:  `CREATE INDEX IF NOT EXISTS idx_archive_runs_request_id ON archive_runs(request_id);`,
	},
}

// NewDatabase opens the audit database. It returns nil when the database is disabled;
// repositories treat a nil *Database as "do not persist".
func NewDatabase(cfg *config.Config, logger *zap.Logger) (*Database, error) {
	if !cfg.Database.Enabled {
		logger.Info("Database disabled, API logs and archive runs will not be persisted")
		return nil, nil
	}

	// Build PostgreSQL connection string
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected successfully",
		zap.String("driver", cfg.Database.Driver),
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("dbname", cfg.Database.DBName),
	)

	database := NewDatabaseWithDB(db, logger)
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

// NewDatabaseWithDB wraps an open handle without connecting or migrating
func NewDatabaseWithDB(db *sql.DB, logger *zap.Logger) *Database {
	return &Database{
		DB:     db,
		logger: logger,
	}
}

func (d *Database) Migrate() error {
	for _, m := range migrations {
		if _, err := d.DB.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
	}

	d.logger.Info("Database migrations completed successfully", zap.Int("count", len(migrations)))
	return nil
}

func (d *Database) Close() error {
	return d.DB.Close()
}
