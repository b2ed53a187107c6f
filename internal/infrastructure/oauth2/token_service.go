package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/domain/repository"
)

const (
	accessTokenKeyPrefix = "esign:access_token:"

	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	jwtScope           = "signature impersonation"
)

// TokenResponse represents the OAuth2 token response from the provider
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenService handles the JWT bearer grant against the signing provider
type TokenService interface {
	// RequestToken signs an assertion for principal with the secret's private key and
	// exchanges it for an access token. The token is cached for the principal.
	RequestToken(ctx context.Context, principal string, secret entity.Secret) (*entity.Credential, error)

	// GetAccessToken returns the cached token for principal, exchanging a new one when
	// the cache is empty or the token expired.
	GetAccessToken(ctx context.Context, principal string, secret func() (entity.Secret, error)) (*entity.Credential, error)

	// InvalidateTokens removes the cached token (after a 401, for example)
	InvalidateTokens(ctx context.Context, principal string) error
}

type tokenService struct {
	config *config.DocuSignConfig
	store  repository.KeyValueStore
	logger *zap.Logger
	client *http.Client
	now    func() time.Time
}

func NewTokenService(cfg *config.Config, store repository.KeyValueStore, logger *zap.Logger) TokenService {
	return &tokenService{
		config: &cfg.DocuSign,
		store:  store,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.DocuSign.Timeout,
		},
		now: time.Now,
	}
}

func (s *tokenService) RequestToken(ctx context.Context, principal string, secret entity.Secret) (*entity.Credential, error) {
	s.logger.Info("Requesting access token with JWT grant",
		zap.String("principal", principal),
		zap.Duration("expires_in", secret.ExpiresIn),
	)

	assertion, err := s.buildAssertion(principal, secret)
	if err != nil {
		return nil, err
	}

	tokenResp, err := s.requestTokenWithRetry(ctx, assertion)
	if err != nil {
		return nil, err
	}

	cred := &entity.Credential{
		System:      entity.SystemSigning,
		Principal:   principal,
		AccessToken: tokenResp.AccessToken,
		TokenType:   tokenResp.TokenType,
		ExpiresAt:   s.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}

	if err := s.storeToken(ctx, principal, cred, tokenResp.ExpiresIn); err != nil {
		// A cache miss only costs one more exchange
		s.logger.Warn("Failed to cache access token",
			zap.String("principal", principal),
			zap.Error(err),
		)
	}

	s.logger.Info("Successfully obtained access token",
		zap.String("principal", principal),
		zap.Int("expires_in", tokenResp.ExpiresIn),
	)

	return cred, nil
}

func (s *tokenService) GetAccessToken(ctx context.Context, principal string, secret func() (entity.Secret, error)) (*entity.Credential, error) {
	cached, err := s.store.Get(ctx, accessTokenKeyPrefix+principal)
	if err == nil && cached != "" {
		var token cachedToken
		if err := json.Unmarshal([]byte(cached), &token); err == nil && s.now().Before(token.ExpiresAt) {
			s.logger.Debug("Access token found in cache", zap.String("principal", principal))
			return &entity.Credential{
				System:      entity.SystemSigning,
				Principal:   principal,
				AccessToken: token.AccessToken,
				TokenType:   token.TokenType,
				ExpiresAt:   token.ExpiresAt,
			}, nil
		}
	}

	s.logger.Info("Access token not cached, requesting a new one",
		zap.String("principal", principal),
	)

	sec, err := secret()
	if err != nil {
		return nil, err
	}
	return s.RequestToken(ctx, principal, sec)
}

func (s *tokenService) InvalidateTokens(ctx context.Context, principal string) error {
	if err := s.store.Del(ctx, accessTokenKeyPrefix+principal); err != nil {
		return fmt.Errorf("failed to invalidate tokens: %w", err)
	}

	s.logger.Info("Tokens invalidated", zap.String("principal", principal))
	return nil
}

func (s *tokenService) buildAssertion(principal string, secret entity.Secret) (string, error) {
	if len(secret.PrivateKey) == 0 {
		return "", entity.ConfigurationError("private key is empty")
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(secret.PrivateKey)
	if err != nil {
		return "", entity.ConfigurationError("invalid private key: %v", err)
	}

	lifetime := secret.ExpiresIn
	if lifetime <= 0 {
		lifetime = time.Hour
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.config.IntegratorKey,
		"sub":   principal,
		"aud":   s.config.OAuthHost(),
		"iat":   now.Unix(),
		"exp":   now.Add(lifetime).Unix(),
		"scope": jwtScope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	if err != nil {
		return "", entity.ConfigurationError("failed to sign assertion: %v", err)
	}
	return signed, nil
}

// requestTokenWithRetry retries network failures and 5xx answers a bounded number of times.
// Rejected grants are permanent.
func (s *tokenService) requestTokenWithRetry(ctx context.Context, assertion string) (*TokenResponse, error) {
	var tokenResp *TokenResponse

	operation := func() error {
		resp, err := s.requestToken(ctx, assertion)
		if err != nil {
			return err
		}
		tokenResp = resp
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.config.RetryInterval), uint64(s.config.MaxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("Token request failed, retrying",
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	return tokenResp, nil
}

func (s *tokenService) requestToken(ctx context.Context, assertion string) (*TokenResponse, error) {
	tokenURL := s.config.OAuthBaseURL() + "/oauth/token"

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	s.logger.Info(">>> [OAUTH2-TOKEN-REQ]",
		zap.String("url", tokenURL),
		zap.String("grant_type", jwtBearerGrantType),
		zap.String("client_id", s.config.IntegratorKey),
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	s.logger.Info(">>> [OAUTH2-TOKEN-RESPONSE]",
		zap.Int("status", resp.StatusCode),
	)

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("token request failed: status=%d, body=%s", resp.StatusCode, string(respBody))
	case resp.StatusCode != http.StatusOK:
		var tokenErr tokenErrorResponse
		_ = json.Unmarshal(respBody, &tokenErr)
		return nil, backoff.Permanent(entity.ConfigurationError("token request rejected: status=%d, error=%s %s",
			resp.StatusCode, tokenErr.Error, tokenErr.ErrorDescription))
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to unmarshal token response: %w", err))
	}
	if tokenResp.AccessToken == "" {
		return nil, backoff.Permanent(errors.New("token response carries no access token"))
	}

	return &tokenResp, nil
}

func (s *tokenService) storeToken(ctx context.Context, principal string, cred *entity.Credential, expiresIn int) error {
	// Store access token with expiry (subtract 60 seconds for safety margin)
	expiry := time.Duration(expiresIn-60) * time.Second
	if expiry <= 0 {
		expiry = time.Duration(expiresIn) * time.Second
	}

	payload, err := json.Marshal(cachedToken{
		AccessToken: cred.AccessToken,
		TokenType:   cred.TokenType,
		ExpiresAt:   s.now().Add(expiry),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := s.store.Set(ctx, accessTokenKeyPrefix+principal, string(payload), expiry); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}

	s.logger.Debug("Access token cached",
		zap.String("principal", principal),
		zap.Duration("expiry", expiry),
	)
	return nil
}
