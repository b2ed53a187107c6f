package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
)

const (
	maxBodyLogLength = 500 // Maximum characters to log for body
	maxBodyStoreSize = 10000
)

var base64Pattern = regexp.MustCompile(`"([A-Za-z0-9+/=]{100,})"`)

// RequestContext carries the credential a call is made with. When Credential is nil the
// client asks its CredentialSource for the current signing credential.
type RequestContext struct {
	Credential *entity.Credential
}

// HTTPClient performs authenticated calls against the signing provider
type HTTPClient interface {
	// Get performs a GET request and decodes the JSON response into result
	Get(ctx context.Context, reqCtx *RequestContext, url string, result interface{}) error
	// Post performs a JSON POST request and decodes the JSON response into result
	Post(ctx context.Context, reqCtx *RequestContext, url string, body interface{}, result interface{}) error
	// GetRaw performs a GET request and returns the raw response body (documents)
	GetRaw(ctx context.Context, reqCtx *RequestContext, url string) ([]byte, error)
}

// CredentialSource supplies and refreshes the bearer credential
type CredentialSource interface {
	SigningCredential(ctx context.Context) (*entity.Credential, error)
	RefreshSigningCredential(ctx context.Context) (*entity.Credential, error)
}

// APILogSaver interface for saving API logs
type APILogSaver interface {
	Save(ctx context.Context, log *entity.APILog) error
}

// StatusError is returned for non-2xx answers
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: status=%d, body=%s", e.StatusCode, e.Body)
}

type httpClient struct {
	client      *http.Client
	credentials CredentialSource
	apiLogSaver APILogSaver
	logger      *zap.Logger
}

func NewHTTPClient(cfg *config.Config, credentials CredentialSource, apiLogSaver APILogSaver, logger *zap.Logger) HTTPClient {
	logger.Info("HTTP Client initialized with bearer authentication",
		zap.String("oauth_base", cfg.DocuSign.OAuthBaseURL()),
		zap.Duration("timeout", cfg.DocuSign.Timeout),
	)

	return &httpClient{
		client: &http.Client{
			Timeout: cfg.DocuSign.Timeout,
		},
		credentials: credentials,
		apiLogSaver: apiLogSaver,
		logger:      logger,
	}
}

// truncateString truncates a string if it exceeds maxLength
func truncateString(s string, maxLength int) string {
	if len(s) <= maxLength {
		return s
	}
	return s[:maxLength] + fmt.Sprintf("... [truncated, total %d chars]", len(s))
}

// truncateBase64InJSON truncates base64-like values in JSON string
func truncateBase64InJSON(jsonStr string, maxLength int) string {
	return base64Pattern.ReplaceAllStringFunc(jsonStr, func(match string) string {
		content := match[1 : len(match)-1]
		if len(content) > maxLength {
			return fmt.Sprintf(`"%s... [base64 truncated, total %d chars]"`, content[:maxLength], len(content))
		}
		return match
	})
}

// formatHeadersForLog formats HTTP headers for logging, hiding the bearer token
func formatHeadersForLog(headers http.Header) string {
	var sb strings.Builder
	for key, values := range headers {
		for _, value := range values {
			if key == "Authorization" {
				value = "Bearer ***"
			}
			if len(value) > 100 {
				value = value[:100] + "..."
			}
			sb.WriteString(fmt.Sprintf("Header %s=%s\n", key, value))
		}
	}
	return sb.String()
}

func (c *httpClient) logRequest(method, url string, headers http.Header, body []byte) {
	var logBuilder strings.Builder

	logBuilder.WriteString("\n>>> [WEBCLIENT-REQ]\n")
	logBuilder.WriteString(fmt.Sprintf("Method: %s\n", method))
	logBuilder.WriteString(fmt.Sprintf("URL: %s\n", url))
	logBuilder.WriteString(formatHeadersForLog(headers))

	if len(body) > 0 {
		bodyStr := truncateBase64InJSON(string(body), 100)
		bodyStr = truncateString(bodyStr, maxBodyLogLength)
		logBuilder.WriteString(fmt.Sprintf("REQUEST BODY: %s\n", bodyStr))
	}

	c.logger.Info(logBuilder.String())
}

func (c *httpClient) logResponse(statusCode int, statusText string, duration time.Duration, headers http.Header, body []byte) {
	var logBuilder strings.Builder

	logBuilder.WriteString("\n>>> [WEBCLIENT-RESPONSE]\n")
	logBuilder.WriteString(fmt.Sprintf("Status: %d %s\n", statusCode, statusText))
	logBuilder.WriteString(fmt.Sprintf("Duration: %s\n", duration))
	logBuilder.WriteString(formatHeadersForLog(headers))

	if isBinary(headers) {
		logBuilder.WriteString(fmt.Sprintf("Body: [binary, %d bytes]\n", len(body)))
	} else {
		logBuilder.WriteString(fmt.Sprintf("Body: %s\n", truncateString(string(body), maxBodyLogLength)))
	}

	c.logger.Info(logBuilder.String())
}

func isBinary(headers http.Header) bool {
	ct := headers.Get("Content-Type")
	return strings.HasPrefix(ct, "application/pdf") || strings.HasPrefix(ct, "application/octet-stream")
}

// saveAPILog hands the call to the audit log without blocking the caller
func (c *httpClient) saveAPILog(method, endpoint string, requestBody, responseBody []byte, binary bool, statusCode int, duration time.Duration, principal string) {
	if c.apiLogSaver == nil {
		return
	}

	reqBodyStr := ""
	if len(requestBody) > 0 {
		reqBodyStr = truncateBase64InJSON(string(requestBody), 100)
		if len(reqBodyStr) > maxBodyStoreSize {
			reqBodyStr = reqBodyStr[:maxBodyStoreSize] + "... [truncated]"
		}
	}

	respBodyStr := string(responseBody)
	if binary {
		respBodyStr = fmt.Sprintf("[binary, %d bytes]", len(responseBody))
	} else if len(respBodyStr) > maxBodyStoreSize {
		respBodyStr = respBodyStr[:maxBodyStoreSize] + "... [truncated]"
	}

	apiLog := &entity.APILog{
		System:       string(entity.SystemSigning),
		Endpoint:     endpoint,
		Method:       method,
		RequestBody:  reqBodyStr,
		ResponseBody: respBodyStr,
		StatusCode:   statusCode,
		Duration:     duration.Milliseconds(),
		Principal:    principal,
		CreatedAt:    time.Now(),
	}

	go func() {
		if err := c.apiLogSaver.Save(context.Background(), apiLog); err != nil {
			c.logger.Warn("Failed to save API log to database",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
		}
	}()
}

func (c *httpClient) credential(ctx context.Context, reqCtx *RequestContext) (*entity.Credential, error) {
	if reqCtx != nil && reqCtx.Credential != nil && !reqCtx.Credential.Expired(time.Now()) {
		return reqCtx.Credential, nil
	}
	cred, err := c.credentials.SigningCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	return cred, nil
}

// doRequest executes the call and returns the raw body of a 2xx answer
func (c *httpClient) doRequest(ctx context.Context, reqCtx *RequestContext, method, url string, body interface{}, accept string, isRetry bool) ([]byte, error) {
	var jsonBody []byte
	var bodyReader io.Reader
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", accept)

	cred, err := c.credential(ctx, reqCtx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	c.logRequest(method, url, req.Header, jsonBody)

	startTime := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(startTime)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logResponse(resp.StatusCode, resp.Status, duration, resp.Header, respBody)
	c.saveAPILog(method, url, jsonBody, respBody, isBinary(resp.Header), resp.StatusCode, duration, cred.Principal)

	// Handle 401 Unauthorized - mint a new token and retry once
	if resp.StatusCode == http.StatusUnauthorized && !isRetry {
		c.logger.Info("Received 401 Unauthorized, attempting to refresh token",
			zap.String("principal", cred.Principal),
		)

		refreshed, err := c.credentials.RefreshSigningCredential(ctx)
		if err != nil {
			c.logger.Error("Failed to refresh token", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", entity.ErrUnauthorized, err)
		}

		c.logger.Info("Token refreshed, retrying request",
			zap.String("principal", refreshed.Principal),
		)
		return c.doRequest(ctx, &RequestContext{Credential: refreshed}, method, url, body, accept, true)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, entity.ErrUnauthorized
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncateString(string(respBody), maxBodyLogLength)}
	}

	return respBody, nil
}

func (c *httpClient) doJSON(ctx context.Context, reqCtx *RequestContext, method, url string, body, result interface{}) error {
	respBody, err := c.doRequest(ctx, reqCtx, method, url, body, "application/json", false)
	if err != nil {
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *httpClient) Get(ctx context.Context, reqCtx *RequestContext, url string, result interface{}) error {
	return c.doJSON(ctx, reqCtx, http.MethodGet, url, nil, result)
}

func (c *httpClient) Post(ctx context.Context, reqCtx *RequestContext, url string, body interface{}, result interface{}) error {
	return c.doJSON(ctx, reqCtx, http.MethodPost, url, body, result)
}

func (c *httpClient) GetRaw(ctx context.Context, reqCtx *RequestContext, url string) ([]byte, error) {
	return c.doRequest(ctx, reqCtx, http.MethodGet, url, nil, "application/pdf", false)
}
