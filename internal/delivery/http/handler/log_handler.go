package handler

import (
	"github.com/gofiber/fiber/v2"

	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/infrastructure/repository"
)

type LogHandler struct {
	logRepo repository.APILogRepository
}

func NewLogHandler(logRepo repository.APILogRepository) *LogHandler {
	return &LogHandler{logRepo: logRepo}
}

// GetLogs returns the newest API calls, optionally for one system (?system=signing)
func (h *LogHandler) GetLogs(c *fiber.Ctx) error {
	logs, err := h.logRepo.FindRecent(c.UserContext(), c.Query("system"), c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(
			entity.NewErrorResponse(entity.ErrCodeInternal, err.Error()),
		)
	}

	return c.JSON(entity.NewSuccessResponse(logs, "Logs retrieved"))
}
