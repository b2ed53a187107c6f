package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/infrastructure/credential"
)

// RestClient is the stateless REST transport. Every mutating call takes the digest it
// must carry; the client never refreshes it.
type RestClient interface {
	// IssueDigest obtains a form digest for the session carried by client
	IssueDigest(ctx context.Context, client *http.Client, siteURL string) (*entity.FormDigest, error)

	// RootFolder resolves the library's root folder
	RootFolder(ctx context.Context, client *http.Client, siteURL, library string) (*entity.Folder, error)

	// EnsureFolder creates folderURL if absent and returns it
	EnsureFolder(ctx context.Context, client *http.Client, digest *entity.FormDigest, siteURL, folderURL string) (*entity.Folder, error)

	// UploadAsync starts one upload and reports its result on the returned channel.
	// An expired digest is refused without issuing a call.
	UploadAsync(ctx context.Context, client *http.Client, digest *entity.FormDigest, siteURL, folderURL, fileName string, content []byte) <-chan error
}

type restClient struct {
	digests credential.DigestIssuer
	logger  *zap.Logger
	now     func() time.Time
}

func NewRestClient(digests credential.DigestIssuer, logger *zap.Logger) RestClient {
	return &restClient{
		digests: digests,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *restClient) IssueDigest(ctx context.Context, client *http.Client, siteURL string) (*entity.FormDigest, error) {
	digest, err := c.digests.Issue(ctx, client, siteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue form digest: %w", err)
	}

	c.logger.Info("Form digest issued",
		zap.String("site_url", siteURL),
		zap.Int("timeout_seconds", digest.TimeoutSeconds),
	)
	return digest, nil
}

func (c *restClient) RootFolder(ctx context.Context, client *http.Client, siteURL, library string) (*entity.Folder, error) {
	return getRootFolder(ctx, client, c.logger, siteURL, library)
}

func (c *restClient) EnsureFolder(ctx context.Context, client *http.Client, digest *entity.FormDigest, siteURL, folderURL string) (*entity.Folder, error) {
	if digest == nil || digest.Expired(c.now()) {
		return nil, entity.ErrDigestExpired
	}

	body, err := json.Marshal(map[string]string{"ServerRelativeUrl": folderURL})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal folder: %w", err)
	}

	status, respBody, err := call(ctx, client, http.MethodPost, apiURL(siteURL, "web/folders"), body, map[string]string{
		"Content-Type":    contentTypeNoMetadata,
		"X-RequestDigest": digest.Value,
	})
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError("create folder "+folderURL, status, respBody)
	}

	var folder entity.Folder
	if err := json.Unmarshal(respBody, &folder); err != nil {
		return nil, fmt.Errorf("failed to unmarshal folder: %w", err)
	}
	return &folder, nil
}

func (c *restClient) UploadAsync(ctx context.Context, client *http.Client, digest *entity.FormDigest, siteURL, folderURL, fileName string, content []byte) <-chan error {
	result := make(chan error, 1)

	if digest == nil || digest.Expired(c.now()) {
		result <- &entity.UploadError{FileName: fileName, Folder: folderURL, SiteURL: siteURL, Err: entity.ErrDigestExpired}
		close(result)
		return result
	}

	go func() {
		defer close(result)
		result <- c.upload(ctx, client, digest, siteURL, folderURL, fileName, content)
	}()
	return result
}

func (c *restClient) upload(ctx context.Context, client *http.Client, digest *entity.FormDigest, siteURL, folderURL, fileName string, content []byte) error {
	endpoint := apiURL(siteURL, "web/GetFolderByServerRelativeUrl("+literal(folderURL)+")/Files/add(url="+literal(fileName)+",overwrite=true)")

	c.logger.Info(">>> [REST-UPLOAD-REQ]",
		zap.String("file", fileName),
		zap.String("folder", folderURL),
		zap.Int("size", len(content)),
	)

	status, body, err := call(ctx, client, http.MethodPost, endpoint, content, map[string]string{
		"Content-Type":    "application/octet-stream",
		"X-RequestDigest": digest.Value,
	})
	if err == nil && !isSuccess(status) {
		err = statusError("upload "+fileName, status, body)
	}
	if err != nil {
		c.logger.Error("Failed to upload document",
			zap.String("file", fileName),
			zap.String("folder", folderURL),
			zap.String("site_url", siteURL),
			zap.Int("status", status),
			zap.Error(err),
		)
		return &entity.UploadError{FileName: fileName, Folder: folderURL, SiteURL: siteURL, StatusCode: status, Err: err}
	}

	c.logger.Info(">>> [REST-UPLOAD-RESPONSE]",
		zap.String("file", fileName),
		zap.Int("status", status),
	)
	return nil
}
