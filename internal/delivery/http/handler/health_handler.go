package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/usecase"
)

type HealthHandler struct {
	config *config.Config
	signal *usecase.WebhookSignal
}

func NewHealthHandler(cfg *config.Config, signal *usecase.WebhookSignal) *HealthHandler {
	return &HealthHandler{
		config: cfg,
		signal: signal,
	}
}

type HealthResponse struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	Version          string    `json:"version"`
	ArchiveEnabled   bool      `json:"archive_enabled"`
	Strategy         string    `json:"strategy"`
	WaitingPipelines int       `json:"waiting_pipelines"`
}

// Health godoc
// @Summary Health check
// @Description Check if the service is healthy
// @Tags health
// @Produce json
// @Success 200 {object} entity.APIResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(entity.NewSuccessResponse(HealthResponse{
		Status:           "healthy",
		Timestamp:        time.Now(),
		Version:          "1.0.0",
		ArchiveEnabled:   h.config.SharePoint.Enabled,
		Strategy:         h.config.SharePoint.Strategy,
		WaitingPipelines: h.signal.Waiting(),
	}, "Service is healthy"))
}
