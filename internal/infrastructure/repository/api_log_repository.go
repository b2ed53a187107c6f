package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/infrastructure/database"
)

// APILogRepository interface for API log operations
type APILogRepository interface {
	Save(ctx context.Context, log *entity.APILog) error
	// FindRecent returns the newest entries, optionally restricted to one system
	FindRecent(ctx context.Context, system string, limit int) ([]entity.APILog, error)
}

type apiLogRepository struct {
	db     *database.Database
	logger *zap.Logger
}

// NewAPILogRepository creates a new API log repository. A nil database turns Save into a no-op.
func NewAPILogRepository(db *database.Database, logger *zap.Logger) APILogRepository {
	return &apiLogRepository{
		db:     db,
		logger: logger,
	}
}

// Save saves an API log entry to the database
func (r *apiLogRepository) Save(ctx context.Context, log *entity.APILog) error {
	if r.db == nil {
		return nil
	}

	query := `
		INSERT INTO api_logs (system, endpoint, method, request_body, response_body, status_code, duration_ms, principal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.DB.ExecContext(ctx, query,
		log.System,
		log.Endpoint,
		log.Method,
		log.RequestBody,
		log.ResponseBody,
		log.StatusCode,
		log.Duration,
		log.Principal,
		log.CreatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to save API log",
			zap.String("endpoint", log.Endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save API log: %w", err)
	}

	return nil
}

func (r *apiLogRepository) FindRecent(ctx context.Context, system string, limit int) ([]entity.APILog, error) {
	if r.db == nil {
		return []entity.APILog{}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	const columns = `id, system, endpoint, method, request_body, response_body, status_code, duration_ms, principal, created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if system == "" {
		rows, err = r.db.DB.QueryContext(ctx,
			`SELECT `+columns+` FROM api_logs ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.db.DB.QueryContext(ctx,
			`SELECT `+columns+` FROM api_logs WHERE system = $1 ORDER BY created_at DESC LIMIT $2`, system, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query API logs: %w", err)
	}
	defer rows.Close()

	logs := []entity.APILog{}
	for rows.Next() {
		var l entity.APILog
		var principal sql.NullString
		if err := rows.Scan(&l.ID, &l.System, &l.Endpoint, &l.Method, &l.RequestBody, &l.ResponseBody,
			&l.StatusCode, &l.Duration, &principal, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan API log: %w", err)
		}
		l.Principal = principal.String
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate API logs: %w", err)
	}
	return logs, nil
}
