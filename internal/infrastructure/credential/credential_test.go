package credential

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
)

const stsTokenResponse = `<?xml version="1.0" encoding="utf-8"?>
<S:Envelope xmlns:S="http://www.w3.org/2003/05/soap-envelope" xmlns:wst="http://schemas.xmlsoap.org/ws/2005/02/trust" xmlns:wsse="http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd">
  <S:Body>
    <wst:RequestSecurityTokenResponse>
      <wst:RequestedSecurityToken>
        <wsse:BinarySecurityToken Id="Compact0">t=binary-token&amp;p=</wsse:BinarySecurityToken>
      </wst:RequestedSecurityToken>
    </wst:RequestSecurityTokenResponse>
  </S:Body>
</S:Envelope>`

const stsFaultResponse = `<?xml version="1.0" encoding="utf-8"?>
<S:Envelope xmlns:S="http://www.w3.org/2003/05/soap-envelope" xmlns:psf="http://schemas.microsoft.com/Passport/SoapServices/SOAPFault">
  <S:Body>
    <S:Fault>
      <S:Code><S:Value>S:Sender</S:Value></S:Code>
      <S:Reason><S:Text xml:lang="en-US">Authentication Failure</S:Text></S:Reason>
      <S:Detail><psf:error><psf:internalerror><psf:text>AADSTS50126: Invalid username or password.</psf:text></psf:internalerror></psf:error></S:Detail>
    </S:Fault>
  </S:Body>
</S:Envelope>`

type fakeSharePoint struct {
	server       *httptest.Server
	stsFailures  int32
	stsCalls     int32
	signInCalls  int32
	digestCalls  int32
	rejectSignIn bool
}

func newFakeSharePoint(t *testing.T) *fakeSharePoint {
	t.Helper()
	f := &fakeSharePoint{}
	mux := http.NewServeMux()
	mux.HandleFunc("/extSTS.srf", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.stsCalls, 1)
		if n <= atomic.LoadInt32(&f.stsFailures) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if f.rejectSignIn || !strings.Contains(string(body), "<o:Password>s3cret&amp;</o:Password>") {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(stsFaultResponse))
			return
		}
		w.Write([]byte(stsTokenResponse))
	})
	mux.HandleFunc("/_forms/default.aspx", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.signInCalls, 1)
		body, _ := io.ReadAll(r.Body)
		if string(body) != "t=binary-token&p=" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "FedAuth", Value: "fed", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "rtFa", Value: "rtfa", Path: "/"})
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/sites/contracts/_api/contextinfo", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.digestCalls, 1)
		if c, err := r.Cookie("FedAuth"); err != nil || c.Value != "fed" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"FormDigestValue":"0x1234,01 Jan 2026","FormDigestTimeoutSeconds":1800}`))
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

type stubTokens struct {
	requested   int
	invalidated int
}

func (s *stubTokens) RequestToken(ctx context.Context, principal string, secret entity.Secret) (*entity.Credential, error) {
	s.requested++
	return &entity.Credential{System: entity.SystemSigning, Principal: principal, AccessToken: "tok"}, nil
}

func (s *stubTokens) GetAccessToken(ctx context.Context, principal string, secret func() (entity.Secret, error)) (*entity.Credential, error) {
	if _, err := secret(); err != nil {
		return nil, err
	}
	return s.RequestToken(ctx, principal, entity.Secret{})
}

func (s *stubTokens) InvalidateTokens(ctx context.Context, principal string) error {
	s.invalidated++
	return nil
}

func newTestProvider(t *testing.T, f *fakeSharePoint, tokens *stubTokens) *provider {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := &config.Config{
		DocuSign: config.DocuSignConfig{UserID: "user-456", PrivateKey: "pem", ExpiresInHours: 1},
		SharePoint: config.SharePointConfig{
			SiteURL:         f.server.URL + "/sites/contracts",
			Username:        "archiver@example.com",
			Password:        "s3cret&",
			STSURL:          f.server.URL + "/extSTS.srf",
			SessionValidity: 30 * time.Minute,
			Timeout:         5 * time.Second,
			MaxRetries:      2,
			RetryInterval:   time.Millisecond,
		},
	}
	claims := NewClaimsAuthenticator(cfg.SharePoint.STSURL, cfg.SharePoint.Timeout, logger)
	return NewProvider(cfg, tokens, claims, NewDigestIssuer(logger), logger).(*provider)
}

func TestSignIn_ReturnsSessionCookies(t *testing.T) {
	f := newFakeSharePoint(t)
	claims := NewClaimsAuthenticator(f.server.URL+"/extSTS.srf", 5*time.Second, zaptest.NewLogger(t))

	cookies, err := claims.SignIn(context.Background(), f.server.URL+"/sites/contracts", "archiver@example.com", "s3cret&")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if len(cookies) != 2 {
		t.Fatalf("expected FedAuth and rtFa, got %d cookies", len(cookies))
	}
}

func TestSignIn_FaultIsConfigurationError(t *testing.T) {
	f := newFakeSharePoint(t)
	claims := NewClaimsAuthenticator(f.server.URL+"/extSTS.srf", 5*time.Second, zaptest.NewLogger(t))

	_, err := claims.SignIn(context.Background(), f.server.URL+"/sites/contracts", "archiver@example.com", "wrong")
	if !errors.Is(err, entity.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "AADSTS50126") {
		t.Fatalf("expected fault detail in error, got %v", err)
	}
	if f.signInCalls != 0 {
		t.Fatal("no sign-in post may happen after a fault")
	}
}

func TestAuthenticate_SessionHasValidityWindow(t *testing.T) {
	f := newFakeSharePoint(t)
	p := newTestProvider(t, f, &stubTokens{})
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	cred, err := p.RepositoryCredential(context.Background(), entity.SystemRepositorySession)
	if err != nil {
		t.Fatalf("RepositoryCredential failed: %v", err)
	}
	if cred.Session == nil || len(cred.Session.Cookies) != 2 {
		t.Fatalf("expected session cookies, got %+v", cred.Session)
	}
	if !cred.Session.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("unexpected session expiry %s", cred.Session.ExpiresAt)
	}
	if cred.Digest != nil {
		t.Fatal("session credential must not carry a digest")
	}
}

func TestAuthenticate_RESTCarriesDigest(t *testing.T) {
	f := newFakeSharePoint(t)
	p := newTestProvider(t, f, &stubTokens{})

	cred, err := p.RepositoryCredential(context.Background(), entity.SystemRepositoryREST)
	if err != nil {
		t.Fatalf("RepositoryCredential failed: %v", err)
	}
	if cred.System != entity.SystemRepositoryREST {
		t.Fatalf("unexpected system %s", cred.System)
	}
	if cred.Digest == nil || cred.Digest.Value != "0x1234,01 Jan 2026" || cred.Digest.TimeoutSeconds != 1800 {
		t.Fatalf("unexpected digest %+v", cred.Digest)
	}
}

func TestAuthenticate_RetriesTransientSignInFailures(t *testing.T) {
	f := newFakeSharePoint(t)
	f.stsFailures = 2
	p := newTestProvider(t, f, &stubTokens{})

	if _, err := p.RepositoryCredential(context.Background(), entity.SystemRepositorySession); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if f.stsCalls != 3 {
		t.Fatalf("expected 3 STS calls, got %d", f.stsCalls)
	}
}

func TestAuthenticate_RejectedSignInIsNotRetried(t *testing.T) {
	f := newFakeSharePoint(t)
	f.rejectSignIn = true
	p := newTestProvider(t, f, &stubTokens{})

	_, err := p.RepositoryCredential(context.Background(), entity.SystemRepositorySession)
	if !errors.Is(err, entity.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if f.stsCalls != 1 {
		t.Fatalf("rejected sign-in must not be retried, got %d calls", f.stsCalls)
	}
}

func TestAuthenticate_InvalidInput(t *testing.T) {
	f := newFakeSharePoint(t)
	p := newTestProvider(t, f, &stubTokens{})

	if _, err := p.Authenticate(context.Background(), entity.SystemRepositorySession, "", entity.Secret{Password: "x"}); !errors.Is(err, entity.ErrConfiguration) {
		t.Fatalf("empty principal: expected configuration error, got %v", err)
	}
	if _, err := p.Authenticate(context.Background(), entity.SystemRepositorySession, "someone", entity.Secret{}); !errors.Is(err, entity.ErrConfiguration) {
		t.Fatalf("empty password: expected configuration error, got %v", err)
	}
	if _, err := p.Authenticate(context.Background(), entity.System("ftp"), "someone", entity.Secret{}); !errors.Is(err, entity.ErrConfiguration) {
		t.Fatalf("unknown system: expected configuration error, got %v", err)
	}
	if f.stsCalls != 0 {
		t.Fatal("invalid input must not reach the STS")
	}
}

func TestRefreshSigningCredential_InvalidatesFirst(t *testing.T) {
	f := newFakeSharePoint(t)
	tokens := &stubTokens{}
	p := newTestProvider(t, f, tokens)

	cred, err := p.RefreshSigningCredential(context.Background())
	if err != nil {
		t.Fatalf("RefreshSigningCredential failed: %v", err)
	}
	if tokens.invalidated != 1 || tokens.requested != 1 || cred.Principal != "user-456" {
		t.Fatalf("expected invalidate then request for user-456, got %+v / %+v", tokens, cred)
	}
}

func TestNewSessionJar_SendsCookiesToSite(t *testing.T) {
	jar, err := NewSessionJar("https://contoso.sharepoint.com/sites/contracts", []*http.Cookie{
		{Name: "FedAuth", Value: "fed"},
		{Name: "rtFa", Value: "rtfa"},
	})
	if err != nil {
		t.Fatalf("NewSessionJar failed: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "https://contoso.sharepoint.com/sites/contracts/_api/web", nil)
	if got := jar.Cookies(req.URL); len(got) != 2 {
		t.Fatalf("expected 2 cookies for the site, got %d", len(got))
	}
	if got := EmptyJar().Cookies(req.URL); len(got) != 0 {
		t.Fatalf("empty jar returned %d cookies", len(got))
	}
}

func TestDigestIssuer_RejectsMissingTimeout(t *testing.T) {
	for name, body := range map[string]string{
		"missing": `{"FormDigestValue":"0x1234"}`,
		"zero":    `{"FormDigestValue":"0x1234","FormDigestTimeoutSeconds":0}`,
		"value":   `{"FormDigestTimeoutSeconds":1800}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			digest, err := NewDigestIssuer(zaptest.NewLogger(t)).Issue(context.Background(), server.Client(), server.URL)
			if err == nil {
				t.Fatalf("expected an error, got digest %+v", digest)
			}
		})
	}
}
