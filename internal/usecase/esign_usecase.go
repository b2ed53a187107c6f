package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/domain/repository"
	"esign-archiver/internal/infrastructure/credential"
)

const (
	// key prefix for envelopes created by this service
	envelopeKeyPrefix  = "esign:envelope:"
	envelopeMappingTTL = 30 * 24 * time.Hour
)

type EsignUsecase interface {
	// Authenticate obtains the signing credential and resolves the default account
	Authenticate(ctx context.Context) (*entity.AccountContext, error)
	// DefaultRequest builds a request from the configured template, recipient and subject
	DefaultRequest() *entity.CreateSignatureRequest
	// RequestSignature creates and sends a request from a template, remembering it for the webhook
	RequestSignature(ctx context.Context, acct *entity.AccountContext, req *entity.CreateSignatureRequest) (*entity.SignatureRequest, error)
	// GetStatus reads the current status of a request
	GetStatus(ctx context.Context, requestID string) (entity.RequestStatus, error)
	// GetEnvelopeMapping returns what was stored when the request was created
	GetEnvelopeMapping(ctx context.Context, requestID string) (*entity.EnvelopeMapping, error)
	// ListDocuments lists the documents attached to a request
	ListDocuments(ctx context.Context, requestID string) ([]entity.EnvelopeDocument, error)
	// DownloadDocument fetches one document of a completed request by its exact name
	DownloadDocument(ctx context.Context, requestID, name string) (*entity.DocumentArtifact, error)
}

type esignUsecase struct {
	config      *config.Config
	repo        repository.SignatureRepository
	credentials credential.Provider
	store       repository.KeyValueStore
	logger      *zap.Logger
}

func NewEsignUsecase(cfg *config.Config, repo repository.SignatureRepository, credentials credential.Provider, store repository.KeyValueStore, logger *zap.Logger) EsignUsecase {
	return &esignUsecase{
		config:      cfg,
		repo:        repo,
		credentials: credentials,
		store:       store,
		logger:      logger,
	}
}

func (u *esignUsecase) Authenticate(ctx context.Context) (*entity.AccountContext, error) {
	cred, err := u.credentials.SigningCredential(ctx)
	if err != nil {
		u.logger.Error("Failed to authenticate against the signing provider", zap.Error(err))
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	acct, err := u.repo.Login(ctx, cred)
	if err != nil {
		u.logger.Error("Failed to resolve signing account",
			zap.String("principal", cred.Principal),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return acct, nil
}

func (u *esignUsecase) DefaultRequest() *entity.CreateSignatureRequest {
	return &entity.CreateSignatureRequest{
		TemplateID: u.config.DocuSign.TemplateID,
		Recipient: entity.Recipient{
			Name:  u.config.Recipient.Name,
			Email: u.config.Recipient.Email,
		},
		Subject: u.config.DocuSign.EmailSubject,
	}
}

func (u *esignUsecase) RequestSignature(ctx context.Context, acct *entity.AccountContext, req *entity.CreateSignatureRequest) (*entity.SignatureRequest, error) {
	u.logger.Info("Requesting signature",
		zap.String("template_id", req.TemplateID),
		zap.String("recipient", req.Recipient.Email),
		zap.String("account_id", acct.AccountID),
	)

	created, err := u.repo.CreateFromTemplate(ctx, acct, req)
	if err != nil {
		u.logger.Error("Failed to create signature request", zap.Error(err))
		return nil, err
	}

	mapping := &entity.EnvelopeMapping{
		RequestID:  created.ID,
		AccountID:  acct.AccountID,
		Recipient:  created.Recipient,
		TemplateID: created.TemplateID,
		Subject:    created.Subject,
		CreatedAt:  time.Now(),
	}
	if err := u.saveEnvelopeMapping(ctx, mapping); err != nil {
		// Connect events still release a waiting pipeline; only auto archive needs the mapping
		u.logger.Warn("Failed to save envelope mapping",
			zap.String("request_id", created.ID),
			zap.Error(err),
		)
	}

	u.logger.Info("Signature request sent",
		zap.String("request_id", created.ID),
		zap.String("status", created.Status.String()),
	)
	return created, nil
}

func (u *esignUsecase) GetStatus(ctx context.Context, requestID string) (entity.RequestStatus, error) {
	acct, err := u.Authenticate(ctx)
	if err != nil {
		return entity.StatusUnknown, err
	}
	return u.repo.GetStatus(ctx, acct, requestID)
}

func (u *esignUsecase) ListDocuments(ctx context.Context, requestID string) ([]entity.EnvelopeDocument, error) {
	acct, err := u.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return u.repo.ListDocuments(ctx, acct, requestID)
}

func (u *esignUsecase) DownloadDocument(ctx context.Context, requestID, name string) (*entity.DocumentArtifact, error) {
	acct, err := u.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	artifact, err := u.repo.FetchDocumentByName(ctx, acct, requestID, name)
	if err != nil {
		u.logger.Warn("Failed to download document",
			zap.String("request_id", requestID),
			zap.String("name", name),
			zap.Error(err),
		)
		return nil, err
	}
	return artifact, nil
}

func (u *esignUsecase) GetEnvelopeMapping(ctx context.Context, requestID string) (*entity.EnvelopeMapping, error) {
	data, err := u.store.Get(ctx, envelopeKeyPrefix+requestID)
	if err != nil {
		return nil, fmt.Errorf("envelope %s not found: %w", requestID, err)
	}

	var mapping entity.EnvelopeMapping
	if err := json.Unmarshal([]byte(data), &mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope mapping: %w", err)
	}
	return &mapping, nil
}

func (u *esignUsecase) saveEnvelopeMapping(ctx context.Context, mapping *entity.EnvelopeMapping) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope mapping: %w", err)
	}
	return u.store.Set(ctx, envelopeKeyPrefix+mapping.RequestID, string(data), envelopeMappingTTL)
}
