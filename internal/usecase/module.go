package usecase

import "go.uber.org/fx"

var Module = fx.Module("usecase",
	fx.Provide(NewEsignUsecase),
	fx.Provide(NewArchiveUsecase),
	fx.Provide(NewPipeline),
	fx.Provide(fx.Annotate(NewWebhookSignal, fx.From(new(EsignUsecase)))),
	fx.Provide(NewWebhookUsecase),
)
