package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"esign-archiver/internal/config"
	"esign-archiver/internal/delivery/http/handler"
)

type Router struct {
	app            *fiber.App
	config         *config.Config
	esignHandler   *handler.EsignHandler
	archiveHandler *handler.ArchiveHandler
	healthHandler  *handler.HealthHandler
	webhookHandler *handler.WebhookHandler
	logHandler     *handler.LogHandler
}

func NewRouter(
	cfg *config.Config,
	esignHandler *handler.EsignHandler,
	archiveHandler *handler.ArchiveHandler,
	healthHandler *handler.HealthHandler,
	webhookHandler *handler.WebhookHandler,
	logHandler *handler.LogHandler,
) *Router {
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: customErrorHandler,
	})

	return &Router{
		app:            app,
		config:         cfg,
		esignHandler:   esignHandler,
		archiveHandler: archiveHandler,
		healthHandler:  healthHandler,
		webhookHandler: webhookHandler,
		logHandler:     logHandler,
	}
}

func (r *Router) Setup() *fiber.App {
	// Middleware
	r.app.Use(recover.New())
	r.app.Use(requestid.New())
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	if r.config.IsDevelopment() {
		r.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	r.app.Get("/health", r.healthHandler.Health)

	// DocuSign Connect posts here
	r.app.Post("/webhook/docusign", r.webhookHandler.DocuSignConnect)

	api := r.app.Group("/api/v1")
	{
		envelopes := api.Group("/envelopes")
		{
			envelopes.Post("", r.esignHandler.CreateEnvelope)
			envelopes.Get("/:id", r.esignHandler.GetEnvelope)
			envelopes.Get("/:id/documents", r.esignHandler.ListDocuments)
			envelopes.Get("/:id/document", r.esignHandler.DownloadDocument)
			envelopes.Post("/:id/archive", r.archiveHandler.ArchiveEnvelope)
		}

		api.Get("/archive-runs", r.archiveHandler.ListArchiveRuns)
		api.Post("/pipeline", r.archiveHandler.StartPipeline)
		api.Get("/logs", r.logHandler.GetLogs)
	}

	return r.app
}

func (r *Router) GetApp() *fiber.App {
	return r.app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"message": err.Error(),
		"error": fiber.Map{
			"code":    code,
			"message": err.Error(),
		},
	})
}
