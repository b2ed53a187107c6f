package sharepoint

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/domain/repository"
	"esign-archiver/internal/infrastructure/credential"
)

// RestStore archives through the REST transport, keeping the form digest fresh
// between calls.
type RestStore struct {
	config      *config.SharePointConfig
	credentials credential.Provider
	rest        RestClient
	logger      *zap.Logger
	now         func() time.Time
}

func NewRestStore(cfg *config.Config, credentials credential.Provider, rest RestClient, logger *zap.Logger) *RestStore {
	return &RestStore{
		config:      &cfg.SharePoint,
		credentials: credentials,
		rest:        rest,
		logger:      logger.With(zap.String("strategy", config.StrategyREST)),
		now:         time.Now,
	}
}

func (s *RestStore) Strategy() string {
	return config.StrategyREST
}

func (s *RestStore) Open(ctx context.Context) (repository.ArchiveSession, error) {
	session := &restArchive{
		store:  s,
		client: &http.Client{Timeout: s.config.Timeout},
	}
	if err := session.authenticate(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

type restArchive struct {
	store  *RestStore
	client *http.Client
	token  *entity.SessionToken
	digest *entity.FormDigest
	root   *entity.Folder
	closed bool
}

func (a *restArchive) authenticate(ctx context.Context) error {
	cred, err := a.store.credentials.RepositoryCredential(ctx, entity.SystemRepositoryREST)
	if err != nil {
		return fmt.Errorf("failed to open repository session: %w", err)
	}

	jar, err := credential.NewSessionJar(a.store.config.SiteURL, cred.Session.Cookies)
	if err != nil {
		return err
	}
	a.client.Jar = jar
	a.token = cred.Session
	a.digest = cred.Digest
	return nil
}

func (a *restArchive) ensureSession(ctx context.Context) error {
	if a.closed {
		return fmt.Errorf("%w: session closed", entity.ErrSessionExpired)
	}
	if a.token == nil || !a.token.Expired(a.store.now().Add(a.store.config.DigestMargin)) {
		return nil
	}

	a.store.logger.Info("Repository session expiring, signing in again",
		zap.Time("expires_at", a.token.ExpiresAt),
	)
	return a.authenticate(ctx)
}

// freshDigest reissues the digest once elapsed time reaches its timeout minus the margin
func (a *restArchive) freshDigest(ctx context.Context) (*entity.FormDigest, error) {
	now := a.store.now()
	if a.digest != nil && !a.digest.ExpiresWithin(now, a.store.config.DigestMargin) {
		return a.digest, nil
	}

	if a.digest != nil {
		a.store.logger.Info("Form digest expiring, reissuing",
			zap.Time("issued_at", a.digest.IssuedAt),
			zap.Duration("timeout", a.digest.Timeout()),
		)
	}

	digest, err := a.store.rest.IssueDigest(ctx, a.client, a.store.config.SiteURL)
	if err != nil {
		return nil, err
	}
	a.digest = digest
	return digest, nil
}

func (a *restArchive) rootFolder(ctx context.Context, target entity.UploadTarget) (*entity.Folder, error) {
	if a.root != nil {
		return a.root, nil
	}
	root, err := a.store.rest.RootFolder(ctx, a.client, target.SiteURL, target.Library)
	if err != nil {
		return nil, err
	}
	a.root = root
	return root, nil
}

func (a *restArchive) EnsureFolder(ctx context.Context, target entity.UploadTarget) (*entity.Folder, error) {
	folder, err := a.ensureFolder(ctx, target)
	if err != nil {
		a.store.logger.Error("Failed to ensure folder",
			zap.String("folder", target.Folder),
			zap.String("library", target.Library),
			zap.String("site_url", target.SiteURL),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %v", entity.ErrFolderUnavailable, target.Folder, err)
	}
	return folder, nil
}

func (a *restArchive) ensureFolder(ctx context.Context, target entity.UploadTarget) (*entity.Folder, error) {
	if err := a.ensureSession(ctx); err != nil {
		return nil, err
	}
	root, err := a.rootFolder(ctx, target)
	if err != nil {
		return nil, err
	}
	if target.Folder == "" {
		return root, nil
	}

	digest, err := a.freshDigest(ctx)
	if err != nil {
		return nil, err
	}
	folder, err := a.store.rest.EnsureFolder(ctx, a.client, digest, target.SiteURL, joinFolder(root.ServerRelativeURL, target.Folder))
	if err != nil {
		return nil, err
	}

	a.store.logger.Info("Folder ensured", zap.String("folder", folder.ServerRelativeURL))
	return folder, nil
}

func (a *restArchive) UploadDocument(ctx context.Context, target entity.UploadTarget, fileName string, content []byte) error {
	if err := a.ensureSession(ctx); err != nil {
		return &entity.UploadError{FileName: fileName, Folder: target.Folder, SiteURL: target.SiteURL, Err: err}
	}
	root, err := a.rootFolder(ctx, target)
	if err != nil {
		return &entity.UploadError{FileName: fileName, Folder: target.Folder, SiteURL: target.SiteURL, Err: err}
	}
	folderURL := joinFolder(root.ServerRelativeURL, target.Folder)

	digest, err := a.freshDigest(ctx)
	if err != nil {
		return &entity.UploadError{FileName: fileName, Folder: folderURL, SiteURL: target.SiteURL, Err: err}
	}

	// uploads are sequential: wait for this one before the caller moves on
	if err := <-a.store.rest.UploadAsync(ctx, a.client, digest, target.SiteURL, folderURL, fileName, content); err != nil {
		return err
	}

	a.store.logger.Info("Document uploaded",
		zap.String("file", fileName),
		zap.String("folder", folderURL),
		zap.Int("size", len(content)),
	)
	return nil
}

func (a *restArchive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.client.CloseIdleConnections()
	a.client.Jar = credential.EmptyJar()
	a.token = nil
	a.digest = nil
	a.store.logger.Debug("Repository session closed")
	return nil
}
