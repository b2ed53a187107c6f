package service

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
	deliveryhttp "esign-archiver/internal/delivery/http"
	"esign-archiver/internal/infrastructure/credential"
	"esign-archiver/internal/infrastructure/database"
	"esign-archiver/internal/infrastructure/document"
	"esign-archiver/internal/infrastructure/httpclient"
	"esign-archiver/internal/infrastructure/logger"
	"esign-archiver/internal/infrastructure/oauth2"
	"esign-archiver/internal/infrastructure/redis"
	"esign-archiver/internal/infrastructure/repository"
	"esign-archiver/internal/infrastructure/sharepoint"
	"esign-archiver/internal/server"
	"esign-archiver/internal/usecase"
)

// CoreModules wires everything the pipeline needs, without the HTTP surface
func CoreModules() fx.Option {
	return fx.Options(
		// Configuration
		config.Module,

		// Infrastructure
		logger.Module,
		database.Module,
		redis.Module,
		oauth2.Module,
		credential.Module,
		httpclient.Module,
		repository.Module,
		sharepoint.Module,
		document.Module,

		// Business Logic
		usecase.Module,
	)
}

// EventLogger routes fx lifecycle events through the application logger
func EventLogger() fx.Option {
	return fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: l.Named("fx")}
	})
}

// ServiceModules adds the envelope API, the Connect webhook and the HTTP server
func ServiceModules() fx.Option {
	return fx.Options(
		CoreModules(),

		// Delivery
		deliveryhttp.Module,

		// Server
		server.Module,
	)
}
