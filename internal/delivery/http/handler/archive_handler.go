package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/usecase"
)

type ArchiveHandler struct {
	archive  usecase.ArchiveUsecase
	pipeline usecase.Pipeline
	signal   *usecase.WebhookSignal
	logger   *zap.Logger

	// background outlives the request that started a pipeline; cancelled on shutdown
	background context.Context
}

func NewArchiveHandler(
	lc fx.Lifecycle,
	archive usecase.ArchiveUsecase,
	pipeline usecase.Pipeline,
	signal *usecase.WebhookSignal,
	logger *zap.Logger,
) *ArchiveHandler {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})

	return &ArchiveHandler{
		archive:    archive,
		pipeline:   pipeline,
		signal:     signal,
		logger:     logger,
		background: ctx,
	}
}

// ArchiveEnvelope godoc
// @Summary Archive a completed envelope
// @Description Manual confirmation: copies the combined document and the certificate into the document library
// @Tags archive
// @Produce json
// @Param id path string true "Envelope ID"
// @Success 200 {object} entity.APIResponse
// @Failure 502 {object} entity.APIResponse
// @Router /api/v1/envelopes/{id}/archive [post]
func (h *ArchiveHandler) ArchiveEnvelope(c *fiber.Ctx) error {
	requestID := c.Params("id")

	outcome, err := h.archive.Archive(c.UserContext(), requestID)
	if err != nil {
		h.logger.Error("Failed to archive envelope",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		if errors.Is(err, entity.ErrArchiveIncomplete) && outcome != nil {
			response := entity.NewErrorResponse(entity.ErrCodeUpload, err.Error())
			response.Data = outcome
			return c.Status(fiber.StatusBadGateway).JSON(response)
		}
		return errorResponse(c, err)
	}

	return c.JSON(entity.NewSuccessResponse(outcome, "Archive "+string(outcome.Status)))
}

// ListArchiveRuns godoc
// @Summary Archive run history
// @Tags archive
// @Produce json
// @Param request_id query string false "Envelope ID"
// @Param limit query int false "Max rows" default(50)
// @Success 200 {object} entity.APIResponse
// @Router /api/v1/archive-runs [get]
func (h *ArchiveHandler) ListArchiveRuns(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var (
		runs []entity.ArchiveRun
		err  error
	)
	if requestID := c.Query("request_id"); requestID != "" {
		runs, err = h.archive.FindRuns(ctx, requestID)
	} else {
		runs, err = h.archive.ListRuns(ctx, c.QueryInt("limit", 50))
	}
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(entity.NewSuccessResponse(runs, "Archive runs retrieved"))
}

// StartPipeline godoc
// @Summary Run the whole pipeline
// @Description Sends the configured request and archives it once DocuSign Connect reports completion
// @Tags archive
// @Produce json
// @Success 202 {object} entity.APIResponse
// @Router /api/v1/pipeline [post]
func (h *ArchiveHandler) StartPipeline(c *fiber.Ctx) error {
	runID := uuid.NewString()
	ctx := usecase.WithRunID(h.background, runID)

	go func() {
		result, err := h.pipeline.Run(ctx, h.signal)
		fields := []zap.Field{
			zap.String("run_id", runID),
			zap.Int("exit_code", usecase.ExitCode(err)),
		}
		if result != nil && result.Request != nil {
			fields = append(fields, zap.String("request_id", result.Request.ID))
		}
		if err != nil {
			h.logger.Error("Pipeline failed", append(fields, zap.Error(err))...)
			return
		}
		h.logger.Info("Pipeline completed", fields...)
	}()

	return c.Status(fiber.StatusAccepted).JSON(
		entity.NewSuccessResponse(fiber.Map{"run_id": runID}, "Pipeline started"),
	)
}
