package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/domain/repository"
	"esign-archiver/internal/infrastructure/credential"
)

// SessionStore archives through a cookie session: list-item folder creation and
// direct binary PUT of files.
type SessionStore struct {
	config      *config.SharePointConfig
	credentials credential.Provider
	digests     credential.DigestIssuer
	logger      *zap.Logger
	now         func() time.Time
}

func NewSessionStore(cfg *config.Config, credentials credential.Provider, digests credential.DigestIssuer, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		config:      &cfg.SharePoint,
		credentials: credentials,
		digests:     digests,
		logger:      logger.With(zap.String("strategy", config.StrategySession)),
		now:         time.Now,
	}
}

func (s *SessionStore) Strategy() string {
	return config.StrategySession
}

func (s *SessionStore) Open(ctx context.Context) (repository.ArchiveSession, error) {
	session := &sessionArchive{
		store:  s,
		client: &http.Client{Timeout: s.config.Timeout},
	}
	if err := session.authenticate(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

type addItemRequest struct {
	ListItemCreateInfo struct {
		FolderPath struct {
			DecodedURL string `json:"DecodedUrl"`
		} `json:"FolderPath"`
		UnderlyingObjectType int `json:"UnderlyingObjectType"`
	} `json:"listItemCreateInfo"`
	FormValues         []formValue `json:"FormValues"`
	BNewDocumentUpdate bool        `json:"bNewDocumentUpdate"`
}

type formValue struct {
	FieldName  string `json:"FieldName"`
	FieldValue string `json:"FieldValue"`
}

type addItemResponse struct {
	Value []struct {
		ErrorMessage string `json:"ErrorMessage"`
		FieldName    string `json:"FieldName"`
		FieldValue   string `json:"FieldValue"`
		HasException bool   `json:"HasException"`
		ItemID       int    `json:"ItemId"`
	} `json:"value"`
}

// underlyingObjectTypeFolder tags a new list item as a folder
const underlyingObjectTypeFolder = 1

type sessionArchive struct {
	store  *SessionStore
	client *http.Client
	token  *entity.SessionToken
	digest *entity.FormDigest
	root   *entity.Folder
	closed bool
}

func (a *sessionArchive) authenticate(ctx context.Context) error {
	cred, err := a.store.credentials.RepositoryCredential(ctx, entity.SystemRepositorySession)
	if err != nil {
		return fmt.Errorf("failed to open repository session: %w", err)
	}

	jar, err := credential.NewSessionJar(a.store.config.SiteURL, cred.Session.Cookies)
	if err != nil {
		return err
	}
	a.client.Jar = jar
	a.token = cred.Session
	a.digest = nil
	return nil
}

// ensureSession re-authenticates when the session is about to leave its validity window
func (a *sessionArchive) ensureSession(ctx context.Context) error {
	if a.closed {
		return fmt.Errorf("%w: session closed", entity.ErrSessionExpired)
	}
	if !a.token.Expired(a.store.now().Add(a.store.config.DigestMargin)) {
		return nil
	}

	a.store.logger.Info("Repository session expiring, signing in again",
		zap.Time("expires_at", a.token.ExpiresAt),
	)
	return a.authenticate(ctx)
}

func (a *sessionArchive) formDigest(ctx context.Context) (*entity.FormDigest, error) {
	if a.digest != nil && !a.digest.ExpiresWithin(a.store.now(), a.store.config.DigestMargin) {
		return a.digest, nil
	}

	digest, err := a.store.digests.Issue(ctx, a.client, a.store.config.SiteURL)
	if err != nil {
		return nil, err
	}
	a.digest = digest
	return digest, nil
}

func (a *sessionArchive) rootFolder(ctx context.Context, library string) (*entity.Folder, error) {
	if a.root != nil {
		return a.root, nil
	}
	root, err := getRootFolder(ctx, a.client, a.store.logger, a.store.config.SiteURL, library)
	if err != nil {
		return nil, err
	}
	a.root = root
	return root, nil
}

func (a *sessionArchive) EnsureFolder(ctx context.Context, target entity.UploadTarget) (*entity.Folder, error) {
	if err := a.ensureSession(ctx); err != nil {
		return nil, err
	}

	root, err := a.rootFolder(ctx, target.Library)
	if err != nil {
		a.logFolderFailure(target, err)
		return nil, fmt.Errorf("%w: %v", entity.ErrFolderUnavailable, err)
	}
	if target.Folder == "" {
		return root, nil
	}

	folderURL := joinFolder(root.ServerRelativeURL, target.Folder)
	folder, err := lookupFolder(ctx, a.client, target.SiteURL, folderURL)
	if err == nil && folder != nil {
		a.store.logger.Info("Folder already exists", zap.String("folder", folder.ServerRelativeURL))
		return folder, nil
	}

	createErr := a.createFolder(ctx, target, root)

	// A concurrent creator may have won; the lookup settles it either way
	folder, err = lookupFolder(ctx, a.client, target.SiteURL, folderURL)
	if err == nil && folder != nil {
		a.store.logger.Info("Folder created",
			zap.String("folder", folder.ServerRelativeURL),
			zap.NamedError("create_error", createErr),
		)
		return folder, nil
	}
	if createErr == nil {
		createErr = err
	}
	if createErr == nil {
		createErr = fmt.Errorf("folder %s not found after creation", folderURL)
	}

	a.logFolderFailure(target, createErr)
	return nil, fmt.Errorf("%w: %s: %v", entity.ErrFolderUnavailable, target.Folder, createErr)
}

func (a *sessionArchive) createFolder(ctx context.Context, target entity.UploadTarget, root *entity.Folder) error {
	digest, err := a.formDigest(ctx)
	if err != nil {
		return err
	}

	var payload addItemRequest
	payload.ListItemCreateInfo.FolderPath.DecodedURL = root.ServerRelativeURL
	payload.ListItemCreateInfo.UnderlyingObjectType = underlyingObjectTypeFolder
	payload.FormValues = []formValue{{FieldName: "Title", FieldValue: target.Folder}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal folder item: %w", err)
	}

	endpoint := apiURL(target.SiteURL, "web/lists/GetByTitle("+literal(target.Library)+")/AddValidateUpdateItemUsingPath")
	status, respBody, err := call(ctx, a.client, http.MethodPost, endpoint, body, map[string]string{
		"Content-Type":    contentTypeNoMetadata,
		"X-RequestDigest": digest.Value,
	})
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return statusError("create folder "+target.Folder, status, respBody)
	}

	var result addItemResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to unmarshal folder item result: %w", err)
	}
	for _, v := range result.Value {
		if v.HasException {
			return fmt.Errorf("create folder %s: %s: %s", target.Folder, v.FieldName, v.ErrorMessage)
		}
	}
	return nil
}

func (a *sessionArchive) UploadDocument(ctx context.Context, target entity.UploadTarget, fileName string, content []byte) error {
	if err := a.ensureSession(ctx); err != nil {
		return &entity.UploadError{FileName: fileName, Folder: target.Folder, SiteURL: target.SiteURL, Err: err}
	}

	root, err := a.rootFolder(ctx, target.Library)
	if err != nil {
		return &entity.UploadError{FileName: fileName, Folder: target.Folder, SiteURL: target.SiteURL, Err: err}
	}
	folderURL := joinFolder(root.ServerRelativeURL, target.Folder)

	origin, err := siteOrigin(target.SiteURL)
	if err != nil {
		return &entity.UploadError{FileName: fileName, Folder: folderURL, SiteURL: target.SiteURL, Err: err}
	}

	overwrite := "F"
	if target.Overwrite {
		overwrite = "T"
	}

	fileURL := origin + escapePath(folderURL+"/"+fileName)
	status, body, err := call(ctx, a.client, http.MethodPut, fileURL, content, map[string]string{
		"Content-Type": "application/octet-stream",
		"Overwrite":    overwrite,
	})
	if err == nil && !isSuccess(status) {
		err = statusError("upload "+fileName, status, body)
	}
	if err != nil {
		uploadErr := &entity.UploadError{FileName: fileName, Folder: folderURL, SiteURL: target.SiteURL, StatusCode: status, Err: err}
		a.store.logger.Error("Failed to upload document",
			zap.String("file", fileName),
			zap.String("folder", folderURL),
			zap.String("site_url", target.SiteURL),
			zap.Int("status", status),
			zap.Error(err),
		)
		return uploadErr
	}

	a.store.logger.Info("Document uploaded",
		zap.String("file", fileName),
		zap.String("folder", folderURL),
		zap.Int("size", len(content)),
	)
	return nil
}

func (a *sessionArchive) Close() error {
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

func (a *sessionArchive) logFolderFailure(target entity.UploadTarget, err error) {
	a.store.logger.Error("Failed to ensure folder",
		zap.String("folder", target.Folder),
		zap.String("library", target.Library),
		zap.String("site_url", target.SiteURL),
		zap.Error(err),
	)
}
