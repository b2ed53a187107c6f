package credential

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"esign-archiver/internal/domain/entity"
)

const (
	signInPath = "/_forms/default.aspx?wa=wsignin1.0"

	fedAuthCookie = "FedAuth"
	rtFaCookie    = "rtFa"
)

const securityTokenRequest = `<s:Envelope xmlns:s="http://www.w3.org/2003/05/soap-envelope" xmlns:a="http://www.w3.org/2005/08/addressing" xmlns:u="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd">
  <s:Header>
    <a:Action s:mustUnderstand="1">http://schemas.xmlsoap.org/ws/2005/02/trust/RST/Issue</a:Action>
    <a:ReplyTo><a:Address>http://www.w3.org/2005/08/addressing/anonymous</a:Address></a:ReplyTo>
    <a:To s:mustUnderstand="1">%s</a:To>
    <o:Security s:mustUnderstand="1" xmlns:o="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
      <o:UsernameToken>
        <o:Username>%s</o:Username>
        <o:Password>%s</o:Password>
      </o:UsernameToken>
    </o:Security>
  </s:Header>
  <s:Body>
    <t:RequestSecurityToken xmlns:t="http://schemas.xmlsoap.org/ws/2005/02/trust">
      <wsp:AppliesTo xmlns:wsp="http://schemas.xmlsoap.org/ws/2004/09/policy">
        <a:EndpointReference><a:Address>%s</a:Address></a:EndpointReference>
      </wsp:AppliesTo>
      <t:KeyType>http://schemas.xmlsoap.org/ws/2005/05/identity/NoProofKey</t:KeyType>
      <t:RequestType>http://schemas.xmlsoap.org/ws/2005/02/trust/Issue</t:RequestType>
      <t:TokenType>urn:oasis:names:tc:SAML:1.0:assertion</t:TokenType>
    </t:RequestSecurityToken>
  </s:Body>
</s:Envelope>`

// securityTokenResponse picks the binary token or the fault out of the STS answer.
// Namespaces are ignored, elements match by local name.
type securityTokenResponse struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *struct {
			Reason string `xml:"Reason>Text"`
			Detail string `xml:"Detail>error>internalerror>text"`
		} `xml:"Fault"`
		Token string `xml:"RequestSecurityTokenResponse>RequestedSecurityToken>BinarySecurityToken"`
	} `xml:"Body"`
}

// ClaimsAuthenticator performs the claims-based sign-in of the document library
type ClaimsAuthenticator interface {
	// SignIn exchanges username/password for the site's authentication cookies.
	SignIn(ctx context.Context, siteURL, username, password string) ([]*http.Cookie, error)
}

type claimsAuthenticator struct {
	stsURL string
	client *http.Client
	logger *zap.Logger
}

func NewClaimsAuthenticator(stsURL string, timeout time.Duration, logger *zap.Logger) ClaimsAuthenticator {
	return &claimsAuthenticator{
		stsURL: stsURL,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// the cookies are on the redirect response itself
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

func (a *claimsAuthenticator) SignIn(ctx context.Context, siteURL, username, password string) ([]*http.Cookie, error) {
	origin, err := siteOrigin(siteURL)
	if err != nil {
		return nil, entity.ConfigurationError("invalid site url %q: %v", siteURL, err)
	}

	token, err := a.requestSecurityToken(ctx, origin, username, password)
	if err != nil {
		return nil, err
	}

	return a.exchangeToken(ctx, origin, token)
}

func (a *claimsAuthenticator) requestSecurityToken(ctx context.Context, origin, username, password string) (string, error) {
	envelope := fmt.Sprintf(securityTokenRequest,
		escapeXML(a.stsURL), escapeXML(username), escapeXML(password), escapeXML(origin))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.stsURL, strings.NewReader(envelope))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")

	a.logger.Info(">>> [STS-TOKEN-REQ]",
		zap.String("url", a.stsURL),
		zap.String("applies_to", origin),
		zap.String("username", username),
	)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	a.logger.Info(">>> [STS-TOKEN-RESPONSE]", zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= 500 && !bytes.Contains(body, []byte("Fault")) {
		return "", fmt.Errorf("security token request failed: status=%d", resp.StatusCode)
	}

	var parsed securityTokenResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse security token response: %w", err)
	}
	if parsed.Body.Fault != nil {
		return "", entity.ConfigurationError("sign-in rejected: %s %s",
			strings.TrimSpace(parsed.Body.Fault.Reason), strings.TrimSpace(parsed.Body.Fault.Detail))
	}
	if parsed.Body.Token == "" {
		return "", entity.ConfigurationError("security token response carries no token")
	}
	return parsed.Body.Token, nil
}

func (a *claimsAuthenticator) exchangeToken(ctx context.Context, origin, token string) ([]*http.Cookie, error) {
	signInURL := origin + signInPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signInURL, strings.NewReader(token))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	a.logger.Info(">>> [SIGNIN-REQ]", zap.String("url", signInURL))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	a.logger.Info(">>> [SIGNIN-RESPONSE]", zap.Int("status", resp.StatusCode))

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("sign-in failed: status=%d", resp.StatusCode)
	}

	var cookies []*http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == fedAuthCookie || c.Name == rtFaCookie {
			cookies = append(cookies, c)
		}
	}
	if len(cookies) < 2 {
		return nil, entity.ConfigurationError("sign-in did not return %s and %s cookies (status=%d)",
			fedAuthCookie, rtFaCookie, resp.StatusCode)
	}
	return cookies, nil
}

func siteOrigin(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("site url must be absolute")
	}
	return u.Scheme + "://" + u.Host, nil
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
