package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/domain/repository"
	"esign-archiver/internal/infrastructure/database"
)

const archiveRunColumns = `id, run_id, request_id, request_status, status, strategy, uploaded, failed, created_at`

type archiveRunRepository struct {
	db     *database.Database
	logger *zap.Logger
}

// NewArchiveRunRepository stores archive outcomes. Without a database nothing is kept
// and lookups return empty results.
func NewArchiveRunRepository(db *database.Database, logger *zap.Logger) repository.ArchiveRunRepository {
	return &archiveRunRepository{
		db:     db,
		logger: logger,
	}
}

func (r *archiveRunRepository) Save(ctx context.Context, outcome *entity.ArchiveOutcome) error {
	if r.db == nil {
		return nil
	}

	query := `
		INSERT INTO archive_runs (run_id, request_id, request_status, status, strategy, uploaded, failed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.DB.ExecContext(ctx, query,
		outcome.RunID,
		outcome.RequestID,
		string(outcome.RequestStatus),
		string(outcome.Status),
		outcome.Strategy,
		len(outcome.Uploaded),
		len(outcome.Failed),
		outcome.FinishedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save archive run",
			zap.String("run_id", outcome.RunID),
			zap.String("request_id", outcome.RequestID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to save archive run: %w", err)
	}
	return nil
}

func (r *archiveRunRepository) FindByRequestID(ctx context.Context, requestID string) ([]entity.ArchiveRun, error) {
	if r.db == nil {
		return []entity.ArchiveRun{}, nil
	}

	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT `+archiveRunColumns+` FROM archive_runs WHERE request_id = $1 ORDER BY created_at DESC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive runs: %w", err)
	}
	return scanArchiveRuns(rows)
}

func (r *archiveRunRepository) List(ctx context.Context, limit int) ([]entity.ArchiveRun, error) {
	if r.db == nil {
		return []entity.ArchiveRun{}, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT `+archiveRunColumns+` FROM archive_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive runs: %w", err)
	}
	return scanArchiveRuns(rows)
}

func scanArchiveRuns(rows *sql.Rows) ([]entity.ArchiveRun, error) {
	defer rows.Close()

	runs := []entity.ArchiveRun{}
	for rows.Next() {
		var run entity.ArchiveRun
		if err := rows.Scan(
			&run.ID,
			&run.RunID,
			&run.RequestID,
			&run.RequestStatus,
			&run.Status,
			&run.Strategy,
			&run.Uploaded,
			&run.Failed,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan archive run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archive runs: %w", err)
	}
	return runs, nil
}
