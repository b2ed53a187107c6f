package httpclient

import (
	"go.uber.org/fx"

	"esign-archiver/internal/infrastructure/credential"
)

// provideCredentialSource exposes the credential provider as the client's token source
func provideCredentialSource(p credential.Provider) CredentialSource {
	return p
}

var Module = fx.Module("httpclient",
	fx.Provide(NewHTTPClient),
	fx.Provide(provideCredentialSource),
)
