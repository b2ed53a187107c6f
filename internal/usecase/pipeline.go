package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
)

// Process exit codes of the one-shot runner
const (
	ExitOK         = 0
	ExitFatal      = 1
	ExitIncomplete = 2
)

// PipelineResult is what one run of the pipeline produced
type PipelineResult struct {
	RunID     string                   `json:"run_id"`
	Request   *entity.SignatureRequest `json:"request,omitempty"`
	Confirmed bool                     `json:"confirmed"`
	Outcome   *entity.ArchiveOutcome   `json:"outcome,omitempty"`
}

type Pipeline interface {
	// Run requests a signature, waits for signal and archives the signed artifacts.
	// The run id is taken from ctx (see WithRunID) or generated.
	Run(ctx context.Context, signal CompletionSignal) (*PipelineResult, error)
}

type pipeline struct {
	config  *config.Config
	esign   EsignUsecase
	archive ArchiveUsecase
	logger  *zap.Logger
}

func NewPipeline(cfg *config.Config, esign EsignUsecase, archive ArchiveUsecase, logger *zap.Logger) Pipeline {
	return &pipeline{
		config:  cfg,
		esign:   esign,
		archive: archive,
		logger:  logger,
	}
}

func (p *pipeline) Run(ctx context.Context, signal CompletionSignal) (*PipelineResult, error) {
	result := &PipelineResult{RunID: runIDFrom(ctx)}
	ctx = WithRunID(ctx, result.RunID)
	logger := p.logger.With(zap.String("run_id", result.RunID))

	logger.Info("Pipeline started",
		zap.String("strategy", p.config.SharePoint.Strategy),
		zap.Bool("archive_enabled", p.config.SharePoint.Enabled),
	)

	acct, err := p.esign.Authenticate(ctx)
	if err != nil {
		return result, err
	}

	req, err := p.esign.RequestSignature(ctx, acct, p.esign.DefaultRequest())
	if err != nil {
		return result, err
	}
	result.Request = req
	logger = logger.With(zap.String("request_id", req.ID))

	if !p.config.SharePoint.Enabled {
		logger.Info("Document library disabled, pipeline stops after sending the request")
		return result, nil
	}

	confirmed, err := signal.Wait(ctx, req)
	if err != nil {
		return result, fmt.Errorf("failed to wait for completion of %s: %w", req.ID, err)
	}
	result.Confirmed = confirmed
	if !confirmed {
		logger.Info("Completion not confirmed, skipping archive")
		return result, nil
	}

	outcome, err := p.archive.Archive(ctx, req.ID)
	result.Outcome = outcome
	if err != nil {
		return result, err
	}

	logger.Info("Pipeline finished", zap.String("archive_status", string(outcome.Status)))
	return result, nil
}

// ExitCode maps a pipeline error onto the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, entity.ErrArchiveIncomplete):
		return ExitIncomplete
	default:
		return ExitFatal
	}
}
