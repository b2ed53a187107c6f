package repository

import (
	"context"

	"esign-archiver/internal/domain/entity"
)

// ArchiveStore opens authenticated sessions against the document library.
// Each strategy (session-based, REST) provides one.
type ArchiveStore interface {
	// Strategy names the transport, for logs and run history.
	Strategy() string
	// Open acquires an authenticated session. The caller must Close it on every path.
	Open(ctx context.Context) (ArchiveSession, error)
}

// ArchiveSession is an authenticated, scoped connection to the document library.
type ArchiveSession interface {
	// EnsureFolder returns the target folder, creating it if absent. Calling it twice
	// returns the same folder. On failure it returns nil and entity.ErrFolderUnavailable.
	EnsureFolder(ctx context.Context, target entity.UploadTarget) (*entity.Folder, error)
	// UploadDocument writes content as fileName into the target folder, overwriting.
	UploadDocument(ctx context.Context, target entity.UploadTarget, fileName string, content []byte) error
	// Close releases the session's cookies and connections.
	Close() error
}

// ArchiveRunRepository persists the history of repository-stage runs
type ArchiveRunRepository interface {
	Save(ctx context.Context, outcome *entity.ArchiveOutcome) error
	FindByRequestID(ctx context.Context, requestID string) ([]entity.ArchiveRun, error)
	List(ctx context.Context, limit int) ([]entity.ArchiveRun, error)
}
