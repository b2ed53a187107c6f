package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
)

// WebhookResult reports what was done with one Connect event
type WebhookResult struct {
	RequestID string                 `json:"request_id"`
	Event     string                 `json:"event"`
	Action    string                 `json:"action"`
	Outcome   *entity.ArchiveOutcome `json:"outcome,omitempty"`
}

// Actions taken for a Connect event
const (
	WebhookActionIgnored  = "ignored"
	WebhookActionUnknown  = "unknown_envelope"
	WebhookActionNotified = "notified"
	WebhookActionArchived = "archived"
	WebhookActionRecorded = "recorded"
)

type WebhookUsecase interface {
	// ProcessConnectEvent handles an envelope status change posted by DocuSign Connect
	ProcessConnectEvent(ctx context.Context, event *entity.ConnectEvent) (*WebhookResult, error)
}

type webhookUsecase struct {
	config  *config.Config
	esign   EsignUsecase
	archive ArchiveUsecase
	signal  *WebhookSignal
	logger  *zap.Logger
}

func NewWebhookUsecase(
	cfg *config.Config,
	esign EsignUsecase,
	archive ArchiveUsecase,
	signal *WebhookSignal,
	logger *zap.Logger,
) WebhookUsecase {
	return &webhookUsecase{
		config:  cfg,
		esign:   esign,
		archive: archive,
		signal:  signal,
		logger:  logger,
	}
}

func (u *webhookUsecase) ProcessConnectEvent(ctx context.Context, event *entity.ConnectEvent) (*WebhookResult, error) {
	requestID := event.Data.EnvelopeID
	result := &WebhookResult{RequestID: requestID, Event: event.Event}

	u.logger.Info("Processing Connect event",
		zap.String("request_id", requestID),
		zap.String("event", event.Event),
		zap.Int("retry_count", event.RetryCount),
	)

	if !event.IsTerminal() {
		result.Action = WebhookActionIgnored
		return result, nil
	}

	status := statusFromEvent(event.Event)
	if u.signal.Notify(requestID, status) {
		u.logger.Info("Released waiting pipeline", zap.String("request_id", requestID))
		result.Action = WebhookActionNotified
		return result, nil
	}

	// only envelopes created by this service are archived
	if _, err := u.esign.GetEnvelopeMapping(ctx, requestID); err != nil {
		u.logger.Warn("Connect event for an unknown envelope",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		result.Action = WebhookActionUnknown
		return result, nil
	}

	if status != entity.StatusCompleted || !u.config.Webhook.AutoArchive {
		result.Action = WebhookActionRecorded
		return result, nil
	}

	outcome, err := u.archive.Archive(ctx, requestID)
	result.Outcome = outcome
	result.Action = WebhookActionArchived
	return result, err
}

// statusFromEvent maps "envelope-completed" onto StatusCompleted and so on
func statusFromEvent(event string) entity.RequestStatus {
	return entity.ParseRequestStatus(strings.TrimPrefix(event, "envelope-"))
}
