package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"esign-archiver/internal/domain/entity"
)

type contextInfoResponse struct {
	FormDigestValue          string `json:"FormDigestValue"`
	FormDigestTimeoutSeconds int    `json:"FormDigestTimeoutSeconds"`
}

// DigestIssuer obtains form digests for mutating REST calls
type DigestIssuer interface {
	// Issue posts to the site's contextinfo endpoint with the session carried by client.
	Issue(ctx context.Context, client *http.Client, siteURL string) (*entity.FormDigest, error)
}

type digestIssuer struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewDigestIssuer(logger *zap.Logger) DigestIssuer {
	return &digestIssuer{logger: logger, now: time.Now}
}

func (d *digestIssuer) Issue(ctx context.Context, client *http.Client, siteURL string) (*entity.FormDigest, error) {
	contextInfoURL := strings.TrimRight(siteURL, "/") + "/_api/contextinfo"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, contextInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json;odata=nometadata")

	issuedAt := d.now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	d.logger.Info(">>> [CONTEXTINFO-RESPONSE]",
		zap.String("url", contextInfoURL),
		zap.Int("status", resp.StatusCode),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: contextinfo status=%d", entity.ErrSessionExpired, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("contextinfo failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var info contextInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contextinfo: %w", err)
	}
	if info.FormDigestValue == "" {
		return nil, fmt.Errorf("contextinfo carries no form digest")
	}
	if info.FormDigestTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("contextinfo carries no digest timeout: %d", info.FormDigestTimeoutSeconds)
	}

	return &entity.FormDigest{
		Value:          info.FormDigestValue,
		TimeoutSeconds: info.FormDigestTimeoutSeconds,
		IssuedAt:       issuedAt,
	}, nil
}
