package sharepoint

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/infrastructure/credential"
)

const (
	sitePath    = "/sites/contracts"
	libraryRoot = "/sites/contracts/Shared Documents"
	libraryName = "Documents"
	digestValue = "0xDIGEST"
)

// fakeLibrary is an in-memory document library speaking the REST endpoints both strategies use
type fakeLibrary struct {
	mu            sync.Mutex
	server        *httptest.Server
	folders       map[string]bool
	files         map[string][]byte
	digestsIssued int
	failUploads   map[string]int
	failCreate    bool
	raceCreate    bool
	missingDigest int
}

func newFakeLibrary(t *testing.T) *fakeLibrary {
	t.Helper()
	f := &fakeLibrary{
		folders:     map[string]bool{libraryRoot: true},
		files:       map[string][]byte{},
		failUploads: map[string]int{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeLibrary) siteURL() string {
	return f.server.URL + sitePath
}

func (f *fakeLibrary) fileNames(folder string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for path := range f.files {
		if strings.HasPrefix(path, folder+"/") {
			names = append(names, strings.TrimPrefix(path, folder+"/"))
		}
	}
	return names
}

// odataLiteral reads a quoted literal at the start of s and returns it with the rest after the closing quote
func odataLiteral(s string) (string, string) {
	if !strings.HasPrefix(s, "'") {
		return "", s
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] == '\'' {
			if i+1 < len(s) && s[i+1] == '\'' {
				b.WriteByte('\'')
				i++
				continue
			}
			return b.String(), s[i+1:]
		}
		b.WriteByte(s[i])
	}
	return b.String(), ""
}

func (f *fakeLibrary) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, err := r.Cookie("FedAuth"); err != nil || c.Value != "fed" {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	path := r.URL.Path
	api := sitePath + "/_api/"
	writeJSON := func(v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
	mutating := func() bool {
		if r.Header.Get("X-RequestDigest") != digestValue {
			f.missingDigest++
			w.WriteHeader(http.StatusForbidden)
			return false
		}
		return true
	}

	switch {
	case r.Method == http.MethodPost && path == api+"contextinfo":
		f.digestsIssued++
		writeJSON(map[string]interface{}{"FormDigestValue": digestValue, "FormDigestTimeoutSeconds": 1800})

	case strings.HasPrefix(path, api+"web/lists/GetByTitle("):
		title, tail := odataLiteral(strings.TrimPrefix(path, api+"web/lists/GetByTitle("))
		if title != libraryName {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch tail {
		case ")/RootFolder":
			writeJSON(entity.Folder{Name: "Shared Documents", ServerRelativeURL: libraryRoot})
		case ")/AddValidateUpdateItemUsingPath":
			if !mutating() {
				return
			}
			var req addItemRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.ListItemCreateInfo.UnderlyingObjectType != underlyingObjectTypeFolder || len(req.FormValues) != 1 {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if f.failCreate {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			folder := req.ListItemCreateInfo.FolderPath.DecodedURL + "/" + req.FormValues[0].FieldValue
			hasException := f.folders[folder] || f.raceCreate
			errorMessage := ""
			if hasException {
				errorMessage = "An item with this name already exists"
			}
			f.folders[folder] = true
			writeJSON(map[string]interface{}{"value": []map[string]interface{}{{
				"FieldName": "Title", "FieldValue": req.FormValues[0].FieldValue,
				"HasException": hasException, "ErrorMessage": errorMessage,
			}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}

	case strings.HasPrefix(path, api+"web/GetFolderByServerRelativeUrl("):
		folder, tail := odataLiteral(strings.TrimPrefix(path, api+"web/GetFolderByServerRelativeUrl("))
		switch {
		case tail == ")" && r.Method == http.MethodGet:
			if !f.folders[folder] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(folderLookup{Exists: true, Name: folder[strings.LastIndex(folder, "/")+1:], ServerRelativeURL: folder})
		case strings.HasPrefix(tail, ")/Files/add(url=") && r.Method == http.MethodPost:
			if !mutating() {
				return
			}
			name, rest := odataLiteral(strings.TrimPrefix(tail, ")/Files/add(url="))
			if rest != ",overwrite=true)" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f.storeFile(w, r, folder, name, true)
		default:
			w.WriteHeader(http.StatusNotFound)
		}

	case r.Method == http.MethodPost && path == api+"web/folders":
		if !mutating() {
			return
		}
		var req struct {
			ServerRelativeURL string `json:"ServerRelativeUrl"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if f.failCreate {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.folders[req.ServerRelativeURL] = true
		writeJSON(entity.Folder{Name: req.ServerRelativeURL[strings.LastIndex(req.ServerRelativeURL, "/")+1:], ServerRelativeURL: req.ServerRelativeURL})

	case r.Method == http.MethodPut && strings.HasPrefix(path, libraryRoot+"/"):
		idx := strings.LastIndex(path, "/")
		f.storeFile(w, r, path[:idx], path[idx+1:], r.Header.Get("Overwrite") == "T")

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeLibrary) storeFile(w http.ResponseWriter, r *http.Request, folder, name string, overwrite bool) {
	if !f.folders[folder] {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if f.failUploads[name] > 0 {
		f.failUploads[name]--
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("server busy"))
		return
	}
	key := folder + "/" + name
	if _, exists := f.files[key]; exists && !overwrite {
		w.WriteHeader(http.StatusPreconditionFailed)
		return
	}
	content, _ := io.ReadAll(r.Body)
	f.files[key] = content
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{}`))
}

// stubProvider hands out cookie credentials accepted by fakeLibrary
type stubProvider struct {
	mu       sync.Mutex
	logins   int
	validity time.Duration
	now      func() time.Time
	fail     error
	// digestTimeout is the timeout of the digest handed out with REST credentials
	digestTimeout int
}

func (p *stubProvider) Authenticate(ctx context.Context, system entity.System, principal string, secret entity.Secret) (*entity.Credential, error) {
	return p.RepositoryCredential(ctx, system)
}

func (p *stubProvider) SigningCredential(ctx context.Context) (*entity.Credential, error) {
	return nil, entity.ConfigurationError("not a signing provider")
}

func (p *stubProvider) RefreshSigningCredential(ctx context.Context) (*entity.Credential, error) {
	return nil, entity.ConfigurationError("not a signing provider")
}

func (p *stubProvider) RepositoryCredential(ctx context.Context, system entity.System) (*entity.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	p.logins++
	now := p.now()
	cred := &entity.Credential{
		System:    system,
		Principal: "archiver@example.com",
		Session: &entity.SessionToken{
			Cookies:   []*http.Cookie{{Name: "FedAuth", Value: "fed"}, {Name: "rtFa", Value: "rtfa"}},
			IssuedAt:  now,
			ExpiresAt: now.Add(p.validity),
		},
	}
	if system == entity.SystemRepositoryREST {
		timeout := p.digestTimeout
		if timeout == 0 {
			timeout = 1800
		}
		cred.Digest = &entity.FormDigest{Value: digestValue, TimeoutSeconds: timeout, IssuedAt: now}
	}
	return cred, nil
}

func testSharePointConfig(f *fakeLibrary, strategy string) *config.Config {
	return &config.Config{SharePoint: config.SharePointConfig{
		Enabled:         true,
		Strategy:        strategy,
		SiteURL:         f.siteURL(),
		Library:         libraryName,
		SessionValidity: 30 * time.Minute,
		DigestMargin:    30 * time.Second,
		Timeout:         5 * time.Second,
	}}
}

func newTestStore(t *testing.T, f *fakeLibrary, strategy string, provider *stubProvider) (*SessionStore, *RestStore) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := testSharePointConfig(f, strategy)
	if provider.now == nil {
		provider.now = time.Now
	}
	if provider.validity == 0 {
		provider.validity = cfg.SharePoint.SessionValidity
	}
	digests := credential.NewDigestIssuer(logger)
	return NewSessionStore(cfg, provider, digests, logger), NewRestStore(cfg, provider, NewRestClient(digests, logger), logger)
}
