package credential

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
)

func provideClaimsAuthenticator(cfg *config.Config, logger *zap.Logger) ClaimsAuthenticator {
	return NewClaimsAuthenticator(cfg.SharePoint.STSURL, cfg.SharePoint.Timeout, logger)
}

var Module = fx.Module("credential",
	fx.Provide(provideClaimsAuthenticator),
	fx.Provide(NewDigestIssuer),
	fx.Provide(NewProvider),
)
