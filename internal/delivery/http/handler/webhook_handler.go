package handler

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/usecase"
)

type WebhookHandler struct {
	config  *config.Config
	usecase usecase.WebhookUsecase
	logger  *zap.Logger
}

func NewWebhookHandler(cfg *config.Config, usecase usecase.WebhookUsecase, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		config:  cfg,
		usecase: usecase,
		logger:  logger,
	}
}

// DocuSignConnect godoc
// @Summary DocuSign Connect callback
// @Description Receives envelope status changes from DocuSign Connect (JSON, SIM format)
// @Tags webhook
// @Accept json
// @Produce json
// @Param payload body entity.ConnectEvent true "Connect event"
// @Success 200 {object} entity.APIResponse
// @Failure 400 {object} entity.APIResponse
// @Failure 401 {object} entity.APIResponse
// @Failure 500 {object} entity.APIResponse
// @Router /webhook/docusign [post]
func (h *WebhookHandler) DocuSignConnect(c *fiber.Ctx) error {
	ctx := c.UserContext()
	body := c.Body()

	h.logger.Info("Received DocuSign Connect callback", zap.Int("size", len(body)))

	if key := h.config.Webhook.HMACKey; key != "" {
		if !VerifyConnectSignature(key, body, func(name string) string { return c.Get(name) }) {
			h.logger.Warn("Rejected Connect callback with an invalid signature")
			return c.Status(fiber.StatusUnauthorized).JSON(
				entity.NewErrorResponse(entity.ErrCodeUnauthorized, "Invalid signature"),
			)
		}
	}

	var event entity.ConnectEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("Failed to parse Connect payload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(
			entity.NewErrorResponse(entity.ErrCodeBadRequest, "Invalid webhook payload"),
		)
	}

	if event.Data.EnvelopeID == "" {
		h.logger.Error("Missing envelope ID in Connect payload")
		return c.Status(fiber.StatusBadRequest).JSON(
			entity.NewErrorResponse(entity.ErrCodeBadRequest, "Missing envelope ID"),
		)
	}

	result, err := h.usecase.ProcessConnectEvent(ctx, &event)
	if err != nil {
		h.logger.Error("Failed to process Connect event",
			zap.String("request_id", event.Data.EnvelopeID),
			zap.Error(err),
		)
		// a non-2xx answer makes Connect retry the delivery
		return c.Status(fiber.StatusInternalServerError).JSON(
			entity.NewErrorResponse(entity.ErrCodeInternal, err.Error()),
		)
	}

	return c.JSON(entity.NewSuccessResponse(result, "Webhook processed successfully"))
}
