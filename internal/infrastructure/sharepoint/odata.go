package sharepoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"esign-archiver/internal/domain/entity"
)

const (
	acceptNoMetadata      = "application/json;odata=nometadata"
	contentTypeNoMetadata = "application/json;odata=nometadata"
	maxErrorBodyLength    = 500
)

// folderLookup is the answer of GetFolderByServerRelativeUrl
type folderLookup struct {
	Exists            bool   `json:"Exists"`
	Name              string `json:"Name"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
}

// literal renders s as an OData string literal for use inside a URL path
func literal(s string) string {
	quoted := strings.ReplaceAll(s, "'", "''")
	return "'" + strings.ReplaceAll(url.PathEscape(quoted), "%2F", "/") + "'"
}

// escapePath percent-encodes every segment of a server-relative path
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func siteOrigin(siteURL string) (string, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse site url: %w", err)
	}
	return u.Scheme + "://" + u.Host, nil
}

func apiURL(siteURL, path string) string {
	return strings.TrimRight(siteURL, "/") + "/_api/" + path
}

func joinFolder(root, name string) string {
	if name == "" {
		return root
	}
	return strings.TrimRight(root, "/") + "/" + name
}

// call executes a request and returns status and body. Transport failures are errors,
// HTTP failures are left to the caller.
func call(ctx context.Context, client *http.Client, method, target string, body []byte, headers map[string]string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptNoMetadata)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func statusError(op string, status int, body []byte) error {
	text := string(body)
	if len(text) > maxErrorBodyLength {
		text = text[:maxErrorBodyLength] + "..."
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%s: %w: status=%d", op, entity.ErrSessionExpired, status)
	}
	return fmt.Errorf("%s failed: status=%d, body=%s", op, status, text)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// getRootFolder resolves the root folder of the library titled library
func getRootFolder(ctx context.Context, client *http.Client, logger *zap.Logger, siteURL, library string) (*entity.Folder, error) {
	target := apiURL(siteURL, "web/lists/GetByTitle("+literal(library)+")/RootFolder")

	status, body, err := call(ctx, client, http.MethodGet, target, nil, nil)
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, statusError("root folder of "+library, status, body)
	}

	var folder entity.Folder
	if err := json.Unmarshal(body, &folder); err != nil {
		return nil, fmt.Errorf("failed to unmarshal root folder: %w", err)
	}

	logger.Debug("Library root folder resolved",
		zap.String("library", library),
		zap.String("server_relative_url", folder.ServerRelativeURL),
	)
	return &folder, nil
}

// lookupFolder returns the folder at serverRelativeURL, or nil when it does not exist
func lookupFolder(ctx context.Context, client *http.Client, siteURL, serverRelativeURL string) (*entity.Folder, error) {
	target := apiURL(siteURL, "web/GetFolderByServerRelativeUrl("+literal(serverRelativeURL)+")")

	status, body, err := call(ctx, client, http.MethodGet, target, nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if !isSuccess(status) {
		return nil, statusError("folder lookup "+serverRelativeURL, status, body)
	}

	var found folderLookup
	if err := json.Unmarshal(body, &found); err != nil {
		return nil, fmt.Errorf("failed to unmarshal folder: %w", err)
	}
	if !found.Exists {
		return nil, nil
	}
	return &entity.Folder{Name: found.Name, ServerRelativeURL: found.ServerRelativeURL}, nil
}
