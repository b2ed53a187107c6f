package handler

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"esign-archiver/internal/domain/entity"
	"esign-archiver/internal/usecase"
)

type EsignHandler struct {
	usecase usecase.EsignUsecase
	logger  *zap.Logger
}

func NewEsignHandler(usecase usecase.EsignUsecase, logger *zap.Logger) *EsignHandler {
	return &EsignHandler{
		usecase: usecase,
		logger:  logger,
	}
}

// EnvelopeStatus is the body of GET /api/v1/envelopes/:id
type EnvelopeStatus struct {
	RequestID string                  `json:"request_id"`
	Status    entity.RequestStatus    `json:"status"`
	Mapping   *entity.EnvelopeMapping `json:"mapping,omitempty"`
}

// CreateEnvelope godoc
// @Summary Request a signature
// @Description Creates and sends an envelope from a template. Empty fields fall back to the configured template, recipient and subject.
// @Tags envelopes
// @Accept json
// @Produce json
// @Param request body entity.CreateSignatureRequest false "Signature request"
// @Success 201 {object} entity.APIResponse
// @Failure 400 {object} entity.APIResponse
// @Failure 500 {object} entity.APIResponse
// @Router /api/v1/envelopes [post]
func (h *EsignHandler) CreateEnvelope(c *fiber.Ctx) error {
	ctx := c.UserContext()

	req := h.usecase.DefaultRequest()
	if len(c.Body()) > 0 {
		var body entity.CreateSignatureRequest
		if err := c.BodyParser(&body); err != nil {
			h.logger.Error("Failed to parse request body", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(
				entity.NewErrorResponse(entity.ErrCodeBadRequest, "Invalid request body"),
			)
		}
		mergeRequest(req, &body)
	}

	acct, err := h.usecase.Authenticate(ctx)
	if err != nil {
		return errorResponse(c, err)
	}

	created, err := h.usecase.RequestSignature(ctx, acct, req)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(
		entity.NewSuccessResponse(created, "Signature request sent"),
	)
}

// GetEnvelope godoc
// @Summary Get envelope status
// @Tags envelopes
// @Produce json
// @Param id path string true "Envelope ID"
// @Success 200 {object} entity.APIResponse
// @Failure 500 {object} entity.APIResponse
// @Router /api/v1/envelopes/{id} [get]
func (h *EsignHandler) GetEnvelope(c *fiber.Ctx) error {
	ctx := c.UserContext()
	requestID := c.Params("id")

	status, err := h.usecase.GetStatus(ctx, requestID)
	if err != nil {
		return errorResponse(c, err)
	}

	response := EnvelopeStatus{RequestID: requestID, Status: status}
	if mapping, err := h.usecase.GetEnvelopeMapping(ctx, requestID); err == nil {
		response.Mapping = mapping
	}

	return c.JSON(entity.NewSuccessResponse(response, "Envelope status retrieved"))
}

// ListDocuments godoc
// @Summary List envelope documents
// @Tags envelopes
// @Produce json
// @Param id path string true "Envelope ID"
// @Success 200 {object} entity.APIResponse
// @Router /api/v1/envelopes/{id}/documents [get]
func (h *EsignHandler) ListDocuments(c *fiber.Ctx) error {
	docs, err := h.usecase.ListDocuments(c.UserContext(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(entity.NewSuccessResponse(docs, "Documents retrieved"))
}

// DownloadDocument godoc
// @Summary Download a document by name
// @Description Streams the PDF of the first document whose name matches exactly. The envelope must be completed.
// @Tags envelopes
// @Produce application/pdf
// @Param id path string true "Envelope ID"
// @Param name query string true "Document name"
// @Success 200 {file} binary
// @Failure 404 {object} entity.APIResponse
// @Failure 409 {object} entity.APIResponse
// @Router /api/v1/envelopes/{id}/document [get]
func (h *EsignHandler) DownloadDocument(c *fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			entity.NewErrorResponse(entity.ErrCodeBadRequest, "Document name is required"),
		)
	}

	artifact, err := h.usecase.DownloadDocument(c.UserContext(), c.Params("id"), name)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Attachment(artifact.FileName)
	return c.Send(artifact.Content)
}

func mergeRequest(dst, src *entity.CreateSignatureRequest) {
	if src.TemplateID != "" {
		dst.TemplateID = src.TemplateID
	}
	if src.Subject != "" {
		dst.Subject = src.Subject
	}
	if src.Recipient.Email != "" {
		dst.Recipient = src.Recipient
	}
}
