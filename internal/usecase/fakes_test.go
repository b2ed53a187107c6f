package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/domain/repository"
	"esign-archiver/internal/infrastructure/document"
	"esign-archiver/internal/infrastructure/redis"
)

// fakeSignatureRepo serves canned provider responses and records what was asked of it
type fakeSignatureRepo struct {
	mu        sync.Mutex
	requestID string
	status    entity.RequestStatus
	pending   []entity.RequestStatus // served once each, in order, before status
	statusErr error
	fetchErr  map[string]error
	created   []*entity.CreateSignatureRequest
	fetched   []string
	logins    int
}

func newFakeSignatureRepo() *fakeSignatureRepo {
	return &fakeSignatureRepo{
		requestID: "REQ123",
		status:    entity.StatusCompleted,
		fetchErr:  map[string]error{},
	}
}

func (r *fakeSignatureRepo) Login(_ context.Context, cred *entity.Credential) (*entity.AccountContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins++
	return &entity.AccountContext{AccountID: "acct-1", BaseURI: "https://demo.docusign.net", Principal: cred.Principal}, nil
}

func (r *fakeSignatureRepo) CreateFromTemplate(_ context.Context, _ *entity.AccountContext, req *entity.CreateSignatureRequest) (*entity.SignatureRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, req)
	return &entity.SignatureRequest{
		ID:         r.requestID,
		Recipient:  req.Recipient,
		TemplateID: req.TemplateID,
		Subject:    req.Subject,
		Status:     entity.StatusSent,
	}, nil
}

func (r *fakeSignatureRepo) GetStatus(context.Context, *entity.AccountContext, string) (entity.RequestStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) > 0 {
		status := r.pending[0]
		r.pending = r.pending[1:]
		return status, r.statusErr
	}
	return r.status, r.statusErr
}

func (r *fakeSignatureRepo) FetchDocument(_ context.Context, _ *entity.AccountContext, requestID string, kind entity.DocumentKind) (*entity.DocumentArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetched = append(r.fetched, kind.String())
	if err := r.fetchErr[kind.String()]; err != nil {
		return nil, err
	}
	if r.status != entity.StatusCompleted {
		return nil, entity.ErrNotReady
	}
	return &entity.DocumentArtifact{
		RequestID: requestID,
		Kind:      kind,
		FileName:  kind.FileName(requestID),
		Content:   []byte("%PDF-" + kind.String()),
	}, nil
}

func (r *fakeSignatureRepo) ListDocuments(context.Context, *entity.AccountContext, string) ([]entity.EnvelopeDocument, error) {
	return nil, nil
}

func (r *fakeSignatureRepo) FetchDocumentByName(context.Context, *entity.AccountContext, string, string) (*entity.DocumentArtifact, error) {
	return nil, entity.ErrDocumentNotFound
}

func (r *fakeSignatureRepo) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

// fakeArchiveStore is an in-memory document library
type fakeArchiveStore struct {
	mu          sync.Mutex
	opens       int
	closes      int
	openErr     error
	failFolders map[string]bool
	failUploads map[string]bool
	attempts    []string
	files       map[string][]byte
}

func newFakeArchiveStore() *fakeArchiveStore {
	return &fakeArchiveStore{
		failFolders: map[string]bool{},
		failUploads: map[string]bool{},
		files:       map[string][]byte{},
	}
}

func (s *fakeArchiveStore) Strategy() string { return "fake" }

func (s *fakeArchiveStore) Open(context.Context) (repository.ArchiveSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opens++
	return &fakeArchiveSession{store: s}, nil
}

func (s *fakeArchiveStore) path(target entity.UploadTarget, fileName string) string {
	if target.Folder == "" {
		return fileName
	}
	return target.Folder + "/" + fileName
}

func (s *fakeArchiveStore) stored(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok
}

type fakeArchiveSession struct {
	store *fakeArchiveStore
}

func (f *fakeArchiveSession) EnsureFolder(_ context.Context, target entity.UploadTarget) (*entity.Folder, error) {
	if f.store.failFolders[target.Folder] {
		return nil, fmt.Errorf("%w: %s", entity.ErrFolderUnavailable, target.Folder)
	}
	return &entity.Folder{Name: target.Folder, ServerRelativeURL: "/sites/contracts/Signed/" + target.Folder}, nil
}

func (f *fakeArchiveSession) UploadDocument(_ context.Context, target entity.UploadTarget, fileName string, content []byte) error {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, fileName)
	if s.failUploads[fileName] {
		return &entity.UploadError{FileName: fileName, Folder: target.Folder, SiteURL: target.SiteURL, StatusCode: 500, Err: errors.New("boom")}
	}
	s.files[s.path(target, fileName)] = content
	return nil
}

func (f *fakeArchiveSession) Close() error {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.closes++
	return nil
}

// memoryRuns keeps archive runs in a slice
type memoryRuns struct {
	mu   sync.Mutex
	runs []entity.ArchiveRun
}

func (m *memoryRuns) Save(_ context.Context, outcome *entity.ArchiveOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, entity.ArchiveRun{
		ID:            int64(len(m.runs) + 1),
		RunID:         outcome.RunID,
		RequestID:     outcome.RequestID,
		RequestStatus: outcome.RequestStatus.String(),
		Status:        string(outcome.Status),
		Strategy:      outcome.Strategy,
		Uploaded:      len(outcome.Uploaded),
		Failed:        len(outcome.Failed),
		CreatedAt:     outcome.FinishedAt,
	})
	return nil
}

func (m *memoryRuns) FindByRequestID(_ context.Context, requestID string) ([]entity.ArchiveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.ArchiveRun
	for _, r := range m.runs {
		if r.RequestID == requestID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRuns) List(_ context.Context, limit int) ([]entity.ArchiveRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.runs) {
		limit = len(m.runs)
	}
	return append([]entity.ArchiveRun(nil), m.runs[:limit]...), nil
}

// stubCredentials hands out a fixed signing credential, or signErr
type stubCredentials struct {
	signErr error
	calls   int
}

func (s *stubCredentials) Authenticate(_ context.Context, system entity.System, principal string, _ entity.Secret) (*entity.Credential, error) {
	return &entity.Credential{System: system, Principal: principal}, nil
}

func (s *stubCredentials) SigningCredential(context.Context) (*entity.Credential, error) {
	s.calls++
	if s.signErr != nil {
		return nil, s.signErr
	}
	return &entity.Credential{
		System:      entity.SystemSigning,
		Principal:   "user-guid",
		AccessToken: "token",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (s *stubCredentials) RefreshSigningCredential(ctx context.Context) (*entity.Credential, error) {
	return s.SigningCredential(ctx)
}

func (s *stubCredentials) RepositoryCredential(_ context.Context, system entity.System) (*entity.Credential, error) {
	return &entity.Credential{System: system, Principal: "archiver@contoso.com"}, nil
}

// failingSignal fails the test if the pipeline waits on it
type failingSignal struct{ t *testing.T }

func (s failingSignal) Wait(context.Context, *entity.SignatureRequest) (bool, error) {
	s.t.Fatal("pipeline must not wait for completion")
	return false, nil
}

// decliningSignal never confirms
type decliningSignal struct{}

func (decliningSignal) Wait(context.Context, *entity.SignatureRequest) (bool, error) {
	return false, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DocuSign: config.DocuSignConfig{
			TemplateID:   "T1",
			RoleName:     "Signer",
			EmailSubject: "Please sign",
		},
		Recipient: config.RecipientConfig{Name: "Alice", Email: "alice@example.com"},
		SharePoint: config.SharePointConfig{
			Enabled:  true,
			Strategy: config.StrategySession,
			SiteURL:  "https://contoso.sharepoint.com/sites/contracts",
			Library:  "Signed",
		},
		Document: config.DocumentConfig{
			SpoolEnabled:   true,
			BasePath:       t.TempDir(),
			ProgressFolder: "progress",
			FinishFolder:   "finish",
		},
	}
}

type harness struct {
	config      *config.Config
	repo        *fakeSignatureRepo
	store       *fakeArchiveStore
	runs        *memoryRuns
	credentials *stubCredentials
	kv          *redis.MemoryStore
	spool       document.SpoolService
	esign       EsignUsecase
	archive     ArchiveUsecase
	pipeline    Pipeline
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	logger := zaptest.NewLogger(t)

	spool, err := document.NewSpoolService(cfg, logger)
	if err != nil {
		t.Fatalf("spool: %v", err)
	}

	h := &harness{
		config:      cfg,
		repo:        newFakeSignatureRepo(),
		store:       newFakeArchiveStore(),
		runs:        &memoryRuns{},
		credentials: &stubCredentials{},
		kv:          redis.NewMemoryStore(),
		spool:       spool,
	}
	h.esign = NewEsignUsecase(cfg, h.repo, h.credentials, h.kv, logger)
	h.archive = NewArchiveUsecase(cfg, h.esign, h.repo, h.store, h.runs, spool, logger)
	h.pipeline = NewPipeline(cfg, h.esign, h.archive, logger)
	return h
}
