package credential

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/infrastructure/oauth2"
)

// Provider authenticates principals against the signing provider and the document library.
type Provider interface {
	// Authenticate obtains a fresh credential for principal on system. Invalid secrets
	// fail with entity.ErrConfiguration and are never retried.
	Authenticate(ctx context.Context, system entity.System, principal string, secret entity.Secret) (*entity.Credential, error)

	// SigningCredential returns the configured signing credential, cached until shortly before expiry.
	SigningCredential(ctx context.Context) (*entity.Credential, error)

	// RefreshSigningCredential drops the cached signing credential and mints a new one.
	RefreshSigningCredential(ctx context.Context) (*entity.Credential, error)

	// RepositoryCredential authenticates the configured repository account for system.
	RepositoryCredential(ctx context.Context, system entity.System) (*entity.Credential, error)
}

type provider struct {
	config  *config.Config
	tokens  oauth2.TokenService
	claims  ClaimsAuthenticator
	digests DigestIssuer
	logger  *zap.Logger
	now     func() time.Time
}

func NewProvider(cfg *config.Config, tokens oauth2.TokenService, claims ClaimsAuthenticator, digests DigestIssuer, logger *zap.Logger) Provider {
	return &provider{
		config:  cfg,
		tokens:  tokens,
		claims:  claims,
		digests: digests,
		logger:  logger,
		now:     time.Now,
	}
}

func (p *provider) Authenticate(ctx context.Context, system entity.System, principal string, secret entity.Secret) (*entity.Credential, error) {
	if principal == "" {
		return nil, entity.ConfigurationError("principal is empty for %s", system)
	}

	switch system {
	case entity.SystemSigning:
		return p.tokens.RequestToken(ctx, principal, secret)
	case entity.SystemRepositorySession:
		return p.authenticateSession(ctx, principal, secret)
	case entity.SystemRepositoryREST:
		return p.authenticateREST(ctx, principal, secret)
	default:
		return nil, entity.ConfigurationError("unknown system %q", system)
	}
}

func (p *provider) SigningCredential(ctx context.Context) (*entity.Credential, error) {
	return p.tokens.GetAccessToken(ctx, p.config.DocuSign.UserID, p.signingSecret)
}

func (p *provider) RefreshSigningCredential(ctx context.Context) (*entity.Credential, error) {
	if err := p.tokens.InvalidateTokens(ctx, p.config.DocuSign.UserID); err != nil {
		p.logger.Warn("Failed to invalidate signing token", zap.Error(err))
	}
	return p.SigningCredential(ctx)
}

func (p *provider) RepositoryCredential(ctx context.Context, system entity.System) (*entity.Credential, error) {
	return p.Authenticate(ctx, system, p.config.SharePoint.Username, entity.Secret{
		Password: p.config.SharePoint.Password,
	})
}

func (p *provider) signingSecret() (entity.Secret, error) {
	key, err := p.config.DocuSign.LoadPrivateKey()
	if err != nil {
		return entity.Secret{}, err
	}
	return entity.Secret{
		PrivateKey: key,
		ExpiresIn:  p.config.DocuSign.TokenLifetime(),
	}, nil
}

func (p *provider) authenticateSession(ctx context.Context, principal string, secret entity.Secret) (*entity.Credential, error) {
	if secret.Password == "" {
		return nil, entity.ConfigurationError("password is empty for %s", principal)
	}

	var cookies []*http.Cookie
	err := p.retry(ctx, "sign-in", func() error {
		var err error
		cookies, err = p.claims.SignIn(ctx, p.config.SharePoint.SiteURL, principal, secret.Password)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign in to %s: %w", p.config.SharePoint.SiteURL, err)
	}

	issuedAt := p.now()
	p.logger.Info("Repository session established",
		zap.String("principal", principal),
		zap.String("site_url", p.config.SharePoint.SiteURL),
		zap.Duration("validity", p.config.SharePoint.SessionValidity),
	)

	return &entity.Credential{
		System:    entity.SystemRepositorySession,
		Principal: principal,
		ExpiresAt: issuedAt.Add(p.config.SharePoint.SessionValidity),
		Session: &entity.SessionToken{
			Cookies:   cookies,
			IssuedAt:  issuedAt,
			ExpiresAt: issuedAt.Add(p.config.SharePoint.SessionValidity),
		},
	}, nil
}

func (p *provider) authenticateREST(ctx context.Context, principal string, secret entity.Secret) (*entity.Credential, error) {
	cred, err := p.authenticateSession(ctx, principal, secret)
	if err != nil {
		return nil, err
	}

	jar, err := NewSessionJar(p.config.SharePoint.SiteURL, cred.Session.Cookies)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Jar: jar, Timeout: p.config.SharePoint.Timeout}
	defer client.CloseIdleConnections()

	var digest *entity.FormDigest
	err = p.retry(ctx, "contextinfo", func() error {
		var err error
		digest, err = p.digests.Issue(ctx, client, p.config.SharePoint.SiteURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue form digest: %w", err)
	}

	cred.System = entity.SystemRepositoryREST
	cred.Digest = digest
	return cred, nil
}

// retry runs op with bounded exponential backoff. Configuration errors stop it at once.
func (p *provider) retry(ctx context.Context, name string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.SharePoint.RetryInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.config.SharePoint.MaxRetries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && entity.IsConfigurationError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		p.logger.Warn("Credential exchange failed, retrying",
			zap.String("step", name),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}
