package repository

import (
	"context"

	"esign-archiver/internal/domain/entity"
)

// SignatureRepository wraps the e-signature provider's remote API.
type SignatureRepository interface {
	// Login resolves the default account visible to the credential's principal.
	Login(ctx context.Context, cred *entity.Credential) (*entity.AccountContext, error)
	// CreateFromTemplate creates and immediately sends a request from a template.
	CreateFromTemplate(ctx context.Context, acct *entity.AccountContext, req *entity.CreateSignatureRequest) (*entity.SignatureRequest, error)
	// GetStatus reads the current status of a request.
	GetStatus(ctx context.Context, acct *entity.AccountContext, requestID string) (entity.RequestStatus, error)
	// FetchDocument downloads one artifact; it fails with entity.ErrNotReady unless the request is completed.
	FetchDocument(ctx context.Context, acct *entity.AccountContext, requestID string, kind entity.DocumentKind) (*entity.DocumentArtifact, error)
	// ListDocuments lists the documents attached to a request.
	ListDocuments(ctx context.Context, acct *entity.AccountContext, requestID string) ([]entity.EnvelopeDocument, error)
	// FetchDocumentByName downloads the first document whose name matches exactly.
	FetchDocumentByName(ctx context.Context, acct *entity.AccountContext, requestID, name string) (*entity.DocumentArtifact, error)
}
