package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/infrastructure/redis"
)

// errorResponse maps a usecase error onto a status code and an API error code
func errorResponse(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, entity.ErrCodeInternal

	switch {
	case entity.IsConfigurationError(err):
		code = entity.ErrCodeConfiguration
	case errors.Is(err, entity.ErrUnauthorized):
		status, code = fiber.StatusBadGateway, entity.ErrCodeUnauthorized
	case errors.Is(err, entity.ErrDocumentNotFound), errors.Is(err, redis.ErrKeyNotFound):
		status, code = fiber.StatusNotFound, entity.ErrCodeNotFound
	case errors.Is(err, entity.ErrNotReady):
		status, code = fiber.StatusConflict, entity.ErrCodeBadRequest
	case errors.Is(err, entity.ErrArchiveIncomplete):
		status, code = fiber.StatusBadGateway, entity.ErrCodeUpload
	}

	return c.Status(status).JSON(entity.NewErrorResponse(code, err.Error()))
}
