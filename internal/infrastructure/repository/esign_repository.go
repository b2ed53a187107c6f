package repository

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/domain/repository"
	"esign-archiver/internal/infrastructure/httpclient"
)

const apiVersionPath = "/restapi/v2.1"

type userInfoResponse struct {
	Sub      string `json:"sub"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Accounts []struct {
		AccountID   string `json:"account_id"`
		IsDefault   bool   `json:"is_default"`
		AccountName string `json:"account_name"`
		BaseURI     string `json:"base_uri"`
	} `json:"accounts"`
}

type templateRole struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleName string `json:"roleName"`
}

type envelopeDefinition struct {
	EmailSubject  string         `json:"emailSubject"`
	TemplateID    string         `json:"templateId"`
	TemplateRoles []templateRole `json:"templateRoles"`
	Status        string         `json:"status"`
}

type envelopeSummary struct {
	EnvelopeID     string `json:"envelopeId"`
	Status         string `json:"status"`
	StatusDateTime string `json:"statusDateTime"`
}

type envelopeResponse struct {
	EnvelopeID            string `json:"envelopeId"`
	Status                string `json:"status"`
	StatusChangedDateTime string `json:"statusChangedDateTime"`
}

type envelopeDocumentsResponse struct {
	EnvelopeID        string                    `json:"envelopeId"`
	EnvelopeDocuments []entity.EnvelopeDocument `json:"envelopeDocuments"`
}

type esignRepository struct {
	config *config.Config
	client httpclient.HTTPClient
	logger *zap.Logger
}

func NewEsignRepository(cfg *config.Config, client httpclient.HTTPClient, logger *zap.Logger) repository.SignatureRepository {
	return &esignRepository{
		config: cfg,
		client: client,
		logger: logger,
	}
}

func (r *esignRepository) Login(ctx context.Context, cred *entity.Credential) (*entity.AccountContext, error) {
	var response userInfoResponse

	reqCtx := &httpclient.RequestContext{Credential: cred}
	err := r.client.Get(ctx, reqCtx, r.config.DocuSign.OAuthBaseURL()+"/oauth/userinfo", &response)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	for _, account := range response.Accounts {
		if !account.IsDefault {
			continue
		}
		r.logger.Info("Default account resolved",
			zap.String("principal", cred.Principal),
			zap.String("account_id", account.AccountID),
			zap.String("base_uri", account.BaseURI),
		)
		return &entity.AccountContext{
			AccountID:   account.AccountID,
			AccountName: account.AccountName,
			BaseURI:     strings.TrimRight(account.BaseURI, "/"),
			Principal:   cred.Principal,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s sees %d accounts", entity.ErrAmbiguousAccount, cred.Principal, len(response.Accounts))
}

func (r *esignRepository) CreateFromTemplate(ctx context.Context, acct *entity.AccountContext, req *entity.CreateSignatureRequest) (*entity.SignatureRequest, error) {
	if req.TemplateID == "" {
		return nil, entity.ConfigurationError("template id is empty")
	}
	if req.Recipient.Email == "" {
		return nil, entity.ConfigurationError("recipient email is empty")
	}

	definition := &envelopeDefinition{
		EmailSubject: req.Subject,
		TemplateID:   req.TemplateID,
		TemplateRoles: []templateRole{{
			Email:    req.Recipient.Email,
			Name:     req.Recipient.Name,
			RoleName: r.config.DocuSign.RoleName,
		}},
		// sent right away, never left as a draft
		Status: string(entity.StatusSent),
	}

	var response envelopeSummary
	if err := r.client.Post(ctx, nil, r.envelopesURL(acct), definition, &response); err != nil {
		return nil, fmt.Errorf("failed to create envelope: %w", err)
	}

	status := entity.ParseRequestStatus(response.Status)
	if status == entity.StatusUnknown {
		status = entity.StatusSent
	}

	r.logger.Info("Envelope created from template",
		zap.String("request_id", response.EnvelopeID),
		zap.String("template_id", req.TemplateID),
		zap.String("recipient", req.Recipient.Email),
		zap.String("status", status.String()),
	)

	return &entity.SignatureRequest{
		ID:              response.EnvelopeID,
		Recipient:       req.Recipient,
		TemplateID:      req.TemplateID,
		Subject:         req.Subject,
		Status:          status,
		StatusChangedAt: parseProviderTime(response.StatusDateTime),
	}, nil
}

func (r *esignRepository) GetStatus(ctx context.Context, acct *entity.AccountContext, requestID string) (entity.RequestStatus, error) {
	var response envelopeResponse

	if err := r.client.Get(ctx, nil, r.envelopeURL(acct, requestID), &response); err != nil {
		return entity.StatusUnknown, fmt.Errorf("failed to get envelope %s: %w", requestID, err)
	}

	status := entity.ParseRequestStatus(response.Status)
	r.logger.Info("Envelope status",
		zap.String("request_id", requestID),
		zap.String("raw_status", response.Status),
		zap.String("status", status.String()),
	)
	return status, nil
}

func (r *esignRepository) FetchDocument(ctx context.Context, acct *entity.AccountContext, requestID string, kind entity.DocumentKind) (*entity.DocumentArtifact, error) {
	status, err := r.GetStatus(ctx, acct, requestID)
	if err != nil {
		return nil, err
	}
	if status != entity.StatusCompleted {
		return nil, fmt.Errorf("%w: %s is %s", entity.ErrNotReady, requestID, status)
	}

	documentURL := r.envelopeURL(acct, requestID) + "/documents/" + url.PathEscape(kind.DocumentID())
	content, err := r.client.GetRaw(ctx, nil, documentURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s document of %s: %w", kind, requestID, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("empty %s document returned for %s", kind, requestID)
	}

	r.logger.Info("Document fetched",
		zap.String("request_id", requestID),
		zap.String("kind", kind.String()),
		zap.Int("size", len(content)),
	)

	return &entity.DocumentArtifact{
		RequestID: requestID,
		Kind:      kind,
		FileName:  kind.FileName(requestID),
		Content:   content,
	}, nil
}

func (r *esignRepository) ListDocuments(ctx context.Context, acct *entity.AccountContext, requestID string) ([]entity.EnvelopeDocument, error) {
	var response envelopeDocumentsResponse

	if err := r.client.Get(ctx, nil, r.envelopeURL(acct, requestID)+"/documents", &response); err != nil {
		return nil, fmt.Errorf("failed to list documents of %s: %w", requestID, err)
	}
	return response.EnvelopeDocuments, nil
}

func (r *esignRepository) FetchDocumentByName(ctx context.Context, acct *entity.AccountContext, requestID, name string) (*entity.DocumentArtifact, error) {
	documents, err := r.ListDocuments(ctx, acct, requestID)
	if err != nil {
		return nil, err
	}

	for _, doc := range documents {
		if doc.Name == name {
			return r.FetchDocument(ctx, acct, requestID, entity.KindSingle(doc.DocumentID))
		}
	}
	return nil, fmt.Errorf("%w: %q in %s", entity.ErrDocumentNotFound, name, requestID)
}

func (r *esignRepository) envelopesURL(acct *entity.AccountContext) string {
	return acct.BaseURI + apiVersionPath + "/accounts/" + url.PathEscape(acct.AccountID) + "/envelopes"
}

func (r *esignRepository) envelopeURL(acct *entity.AccountContext, requestID string) string {
	return r.envelopesURL(acct) + "/" + url.PathEscape(requestID)
}

func parseProviderTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t
}
