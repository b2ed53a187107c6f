package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/domain/repository"
	"esign-archiver/internal/infrastructure/document"
)

type ArchiveUsecase interface {
	// Archive copies the combined document and the certificate of a completed request into
	// the request's folder of the document library. A request that is not completed is a no-op.
	Archive(ctx context.Context, requestID string) (*entity.ArchiveOutcome, error)
	// ListRuns returns the most recent archive runs
	ListRuns(ctx context.Context, limit int) ([]entity.ArchiveRun, error)
	// FindRuns returns the archive runs of one request
	FindRuns(ctx context.Context, requestID string) ([]entity.ArchiveRun, error)
}

type archiveUsecase struct {
	config *config.Config
	esign  EsignUsecase
	repo   repository.SignatureRepository
	store  repository.ArchiveStore
	runs   repository.ArchiveRunRepository
	spool  document.SpoolService
	logger *zap.Logger
}

func NewArchiveUsecase(
	cfg *config.Config,
	esign EsignUsecase,
	repo repository.SignatureRepository,
	store repository.ArchiveStore,
	runs repository.ArchiveRunRepository,
	spool document.SpoolService,
	logger *zap.Logger,
) ArchiveUsecase {
	return &archiveUsecase{
		config: cfg,
		esign:  esign,
		repo:   repo,
		store:  store,
		runs:   runs,
		spool:  spool,
		logger: logger,
	}
}

// archivedKinds are the artifacts copied for every completed request, in upload order
var archivedKinds = []entity.DocumentKind{entity.KindCombined, entity.KindCertificate}

func (u *archiveUsecase) Archive(ctx context.Context, requestID string) (*entity.ArchiveOutcome, error) {
	outcome := &entity.ArchiveOutcome{
		RunID:         runIDFrom(ctx),
		RequestID:     requestID,
		RequestStatus: entity.StatusUnknown,
		Strategy:      u.store.Strategy(),
	}
	logger := u.logger.With(
		zap.String("run_id", outcome.RunID),
		zap.String("request_id", requestID),
	)

	if !u.config.SharePoint.Enabled {
		logger.Info("Document library disabled, skipping archive")
		return u.finish(ctx, outcome, entity.ArchiveStatusDisabled, nil)
	}

	acct, err := u.esign.Authenticate(ctx)
	if err != nil {
		return u.finish(ctx, outcome, entity.ArchiveStatusFailed, err)
	}

	status, err := u.repo.GetStatus(ctx, acct, requestID)
	if err != nil {
		return u.finish(ctx, outcome, entity.ArchiveStatusFailed, err)
	}
	outcome.RequestStatus = status

	if status != entity.StatusCompleted {
		logger.Info("Signature request is not completed, nothing to archive",
			zap.String("status", status.String()),
		)
		return u.finish(ctx, outcome, entity.ArchiveStatusNothingToDo, nil)
	}

	session, err := u.store.Open(ctx)
	if err != nil {
		return u.finish(ctx, outcome, entity.ArchiveStatusFailed, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close repository session", zap.Error(err))
		}
	}()

	target := entity.NewUploadTarget(u.config.SharePoint.SiteURL, u.config.SharePoint.Library, requestID)
	folder, err := session.EnsureFolder(ctx, target)
	if err != nil {
		if !u.config.SharePoint.RootFallback {
			return u.finish(ctx, outcome, entity.ArchiveStatusFailed, fmt.Errorf("%w: %w", entity.ErrArchiveIncomplete, err))
		}

		logger.Warn("Request folder unavailable, falling back to the library root", zap.Error(err))
		target = target.AtLibraryRoot()
		if folder, err = session.EnsureFolder(ctx, target); err != nil {
			return u.finish(ctx, outcome, entity.ArchiveStatusFailed, fmt.Errorf("%w: %w", entity.ErrArchiveIncomplete, err))
		}
	}
	outcome.Folder = folder.ServerRelativeURL

	var failures error
	for _, kind := range archivedKinds {
		fileName := kind.FileName(requestID)
		if err := u.archiveOne(ctx, logger, session, acct, target, requestID, kind); err != nil {
			outcome.Failed = append(outcome.Failed, fileName)
			failures = multierr.Append(failures, err)
			continue
		}
		outcome.Uploaded = append(outcome.Uploaded, fileName)
	}

	switch {
	case failures == nil:
		return u.finish(ctx, outcome, entity.ArchiveStatusArchived, nil)
	case len(outcome.Uploaded) > 0:
		return u.finish(ctx, outcome, entity.ArchiveStatusPartial, fmt.Errorf("%w: %w", entity.ErrArchiveIncomplete, failures))
	default:
		return u.finish(ctx, outcome, entity.ArchiveStatusFailed, fmt.Errorf("%w: %w", entity.ErrArchiveIncomplete, failures))
	}
}

// archiveOne fetches, stages and uploads one artifact. Its failure never stops the others.
func (u *archiveUsecase) archiveOne(ctx context.Context, logger *zap.Logger, session repository.ArchiveSession, acct *entity.AccountContext, target entity.UploadTarget, requestID string, kind entity.DocumentKind) error {
	artifact, err := u.repo.FetchDocument(ctx, acct, requestID, kind)
	if err != nil {
		logger.Error("Failed to fetch document", zap.String("kind", kind.String()), zap.Error(err))
		return err
	}

	if err := u.spool.Stage(artifact); err != nil {
		logger.Warn("Failed to stage artifact", zap.String("file", artifact.FileName), zap.Error(err))
	}

	if err := session.UploadDocument(ctx, target, artifact.FileName, artifact.Content); err != nil {
		return err
	}

	if err := u.spool.MarkArchived(artifact.RequestID, artifact.FileName); err != nil {
		logger.Warn("Failed to move artifact to finish", zap.String("file", artifact.FileName), zap.Error(err))
	}
	return nil
}

// finish stamps and records the outcome
func (u *archiveUsecase) finish(ctx context.Context, outcome *entity.ArchiveOutcome, status entity.ArchiveStatus, err error) (*entity.ArchiveOutcome, error) {
	outcome.Status = status
	outcome.FinishedAt = time.Now().UTC()

	fields := []zap.Field{
		zap.String("run_id", outcome.RunID),
		zap.String("request_id", outcome.RequestID),
		zap.String("request_status", outcome.RequestStatus.String()),
		zap.String("archive_status", string(status)),
		zap.String("strategy", outcome.Strategy),
		zap.Strings("uploaded", outcome.Uploaded),
		zap.Strings("failed", outcome.Failed),
	}
	if err != nil {
		u.logger.Error("Archive finished with errors", append(fields, zap.Error(err))...)
	} else {
		u.logger.Info("Archive finished", fields...)
	}

	if status != entity.ArchiveStatusDisabled {
		if saveErr := u.runs.Save(ctx, outcome); saveErr != nil {
			u.logger.Warn("Failed to record archive run", zap.String("run_id", outcome.RunID), zap.Error(saveErr))
		}
	}
	return outcome, err
}

func (u *archiveUsecase) ListRuns(ctx context.Context, limit int) ([]entity.ArchiveRun, error) {
	return u.runs.List(ctx, limit)
}

func (u *archiveUsecase) FindRuns(ctx context.Context, requestID string) ([]entity.ArchiveRun, error) {
	return u.runs.FindByRequestID(ctx, requestID)
}

type runIDKey struct{}

// WithRunID tags ctx with the pipeline run id so the archive stage reports under it
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

