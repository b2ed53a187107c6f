package http

import (
	"go.uber.org/fx"

	"esign-archiver/internal/delivery/http/handler"
	"esign-archiver/internal/delivery/http/router"
)

var Module = fx.Module("http",
	fx.Provide(
		handler.NewEsignHandler,
		handler.NewArchiveHandler,
		handler.NewHealthHandler,
		handler.NewWebhookHandler,
		handler.NewLogHandler,
		router.NewRouter,
	),
)
