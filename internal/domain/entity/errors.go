package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks missing or invalid configuration and rejected credentials.
	// It is fatal and never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrAmbiguousAccount is returned when no visible account is flagged as default.
	ErrAmbiguousAccount = errors.New("no default account found for principal")

	// ErrNotReady is returned when documents are requested before the request is completed.
	ErrNotReady = errors.New("signature request is not completed")

	// ErrDigestExpired is returned when a form digest is used after its declared timeout.
	ErrDigestExpired = errors.New("form digest expired")

	// ErrSessionExpired is returned when a repository session is used after its validity window.
	ErrSessionExpired = errors.New("repository session expired")

	// ErrFolderUnavailable is returned when the request folder could not be found or created.
	ErrFolderUnavailable = errors.New("destination folder unavailable")

	// ErrArchiveIncomplete marks a repository stage that left at least one artifact unarchived.
	ErrArchiveIncomplete = errors.New("archive incomplete")

	// ErrDocumentNotFound is returned when no document of a request has the requested name.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUnauthorized is returned when the provider keeps rejecting a freshly minted token.
	ErrUnauthorized = errors.New("unauthorized: token exchange did not yield a usable credential")
)

// ConfigurationError wraps err so that errors.Is(err, ErrConfiguration) holds.
func ConfigurationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// IsConfigurationError reports whether err is fatal configuration or credential trouble.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrAmbiguousAccount)
}

// UploadError describes a failed write to the document library.
type UploadError struct {
	FileName   string
	Folder     string
	SiteURL    string
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("error uploading document %s on folder %s: status=%d: %v", e.FileName, e.Folder, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("error uploading document %s on folder %s: %v", e.FileName, e.Folder, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
