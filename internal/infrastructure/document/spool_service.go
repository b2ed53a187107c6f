package document

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
)

// SpoolService keeps a local copy of fetched artifacts while they are archived.
// Artifacts are staged under progress/{requestId} and moved to finish/{requestId}
// once uploaded; failed uploads stay in progress.
type SpoolService interface {
	// Stage writes the artifact into the progress folder of its request
	Stage(artifact *entity.DocumentArtifact) error

	// MarkArchived moves an uploaded artifact from progress to finish
	MarkArchived(requestID, fileName string) error

	// GetProgressPath returns the full path to progress folder
	GetProgressPath() string

	// GetFinishPath returns the full path to finish folder
	GetFinishPath() string
}

type spoolService struct {
	config *config.DocumentConfig
	logger *zap.Logger
}

// NewSpoolService returns the filesystem spool, or a no-op spool when spooling is disabled.
func NewSpoolService(cfg *config.Config, logger *zap.Logger) (SpoolService, error) {
	if !cfg.Document.SpoolEnabled {
		logger.Info("Local spool disabled")
		return noopSpool{}, nil
	}

	svc := &spoolService{
		config: &cfg.Document,
		logger: logger,
	}

	// Ensure all directories exist
	if err := svc.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create spool directories: %w", err)
	}

	logger.Info("Spool service initialized",
		zap.String("base_path", cfg.Document.BasePath),
		zap.String("progress_folder", svc.GetProgressPath()),
		zap.String("finish_folder", svc.GetFinishPath()),
	)

	return svc, nil
}

func (s *spoolService) ensureDirectories() error {
	for _, dir := range []string{s.GetProgressPath(), s.GetFinishPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (s *spoolService) GetProgressPath() string {
	return filepath.Join(s.config.BasePath, s.config.ProgressFolder)
}

func (s *spoolService) GetFinishPath() string {
	return filepath.Join(s.config.BasePath, s.config.FinishFolder)
}

func (s *spoolService) Stage(artifact *entity.DocumentArtifact) error {
	dir := filepath.Join(s.GetProgressPath(), filepath.Base(artifact.RequestID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, filepath.Base(artifact.FileName))
	if err := os.WriteFile(path, artifact.Content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.logger.Info("Artifact staged",
		zap.String("request_id", artifact.RequestID),
		zap.String("path", path),
		zap.Int("size", len(artifact.Content)),
	)
	return nil
}

func (s *spoolService) MarkArchived(requestID, fileName string) error {
	requestID = filepath.Base(requestID)
	fileName = filepath.Base(fileName)

	srcPath := filepath.Join(s.GetProgressPath(), requestID, fileName)
	dstDir := filepath.Join(s.GetFinishPath(), requestID)
	dstPath := filepath.Join(dstDir, fileName)

	if _, err := os.Stat(srcPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found in progress folder: %s", fileName)
	}

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dstDir, err)
	}

	// Remove a copy left by an earlier run, re-archiving overwrites
	if _, err := os.Stat(dstPath); err == nil {
		if err := os.Remove(dstPath); err != nil {
			return fmt.Errorf("failed to remove existing file in finish: %w", err)
		}
	}

	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("failed to move file to finish: %w", err)
	}

	// Drop the request's progress folder once it is empty
	progressDir := filepath.Dir(srcPath)
	if entries, err := os.ReadDir(progressDir); err == nil && len(entries) == 0 {
		_ = os.Remove(progressDir)
	}

	s.logger.Info("Artifact moved to finish",
		zap.String("request_id", requestID),
		zap.String("from", srcPath),
		zap.String("to", dstPath),
	)
	return nil
}

type noopSpool struct{}

func (noopSpool) Stage(*entity.DocumentArtifact) error { return nil }
func (noopSpool) MarkArchived(string, string) error { return nil }
func (noopSpool) GetProgressPath() string { return "" }
func (noopSpool) GetFinishPath() string { return "" }
