package sharepoint

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/repository"
	"esign-archiver/internal/infrastructure/credential"
)

// NewArchiveStore selects the transport named by sharepoint.strategy
func NewArchiveStore(cfg *config.Config, credentials credential.Provider, digests credential.DigestIssuer, rest RestClient, logger *zap.Logger) repository.ArchiveStore {
	if cfg.SharePoint.IsREST() {
		return NewRestStore(cfg, credentials, rest, logger)
	}
	return NewSessionStore(cfg, credentials, digests, logger)
}

var Module = fx.Module("sharepoint",
	fx.Provide(NewRestClient),
	fx.Provide(NewArchiveStore),
)
