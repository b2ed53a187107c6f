package repository

import (
	"go.uber.org/fx"

	"esign-archiver/internal/infrastructure/httpclient"
)

var Module = fx.Module("repository",
	fx.Provide(NewEsignRepository),
	fx.Provide(NewArchiveRunRepository),
	fx.Provide(
		fx.Annotate(
			NewAPILogRepository,
			fx.As(fx.Self()),
			fx.As(new(httpclient.APILogSaver)),
		),
	),
)
