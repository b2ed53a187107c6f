package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"esign-archiver/internal/config"
	"esign-archiver/internal/domain/entity"
)

func connectEvent(event, requestID string) *entity.ConnectEvent {
	return &entity.ConnectEvent{
		Event: event,
		Data:  entity.ConnectEventData{AccountID: "acct-1", EnvelopeID: requestID},
	}
}

func newWebhook(t *testing.T, h *harness, signal *WebhookSignal) WebhookUsecase {
	t.Helper()
	return NewWebhookUsecase(h.config, h.esign, h.archive, signal, zaptest.NewLogger(t))
}

func TestWebhookReleasesWaitingPipeline(t *testing.T) {
	h := newHarness(t, nil)
	h.repo.pending = []entity.RequestStatus{entity.StatusSent}
	signal := NewWebhookSignal(h.esign)
	webhook := newWebhook(t, h, signal)

	type runResult struct {
		result *PipelineResult
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		result, err := h.pipeline.Run(context.Background(), signal)
		done <- runResult{result, err}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for signal.Waiting() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("pipeline never started waiting")
		}
		time.Sleep(5 * time.Millisecond)
	}

	result, err := webhook.ProcessConnectEvent(context.Background(), connectEvent(entity.ConnectEventEnvelopeCompleted, "REQ123"))
	if err != nil {
		t.Fatalf("ProcessConnectEvent: %v", err)
	}
	if result.Action != WebhookActionNotified {
		t.Fatalf("action = %s", result.Action)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("pipeline: %v", r.err)
		}
		if r.result.Outcome == nil || r.result.Outcome.Status != entity.ArchiveStatusArchived {
			t.Fatalf("outcome = %+v", r.result.Outcome)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish")
	}
}

func TestWebhookIgnoresUnknownEnvelope(t *testing.T) {
	h := newHarness(t, nil)
	webhook := newWebhook(t, h, NewWebhookSignal(h.esign))

	result, err := webhook.ProcessConnectEvent(context.Background(), connectEvent(entity.ConnectEventEnvelopeCompleted, "OTHER"))
	if err != nil {
		t.Fatalf("ProcessConnectEvent: %v", err)
	}
	if result.Action != WebhookActionUnknown {
		t.Fatalf("action = %s", result.Action)
	}
	if h.store.opens != 0 {
		t.Fatal("unknown envelopes are never archived")
	}
}

func TestWebhookIgnoresNonTerminalEvents(t *testing.T) {
	h := newHarness(t, nil)
	webhook := newWebhook(t, h, NewWebhookSignal(h.esign))

	result, _ := webhook.ProcessConnectEvent(context.Background(), connectEvent("recipient-delivered", "REQ123"))
	if result.Action != WebhookActionIgnored {
		t.Fatalf("action = %s", result.Action)
	}
}

func TestWebhookAutoArchive(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Webhook.AutoArchive = true
	})
	webhook := newWebhook(t, h, NewWebhookSignal(h.esign))

	acct, _ := h.esign.Authenticate(context.Background())
	if _, err := h.esign.RequestSignature(context.Background(), acct, h.esign.DefaultRequest()); err != nil {
		t.Fatalf("RequestSignature: %v", err)
	}

	result, err := webhook.ProcessConnectEvent(context.Background(), connectEvent(entity.ConnectEventEnvelopeCompleted, "REQ123"))
	if err != nil {
		t.Fatalf("ProcessConnectEvent: %v", err)
	}
	if result.Action != WebhookActionArchived || result.Outcome.Status != entity.ArchiveStatusArchived {
		t.Fatalf("result = %+v", result)
	}
	if !h.store.stored("REQ123/COC_REQ123.pdf") {
		t.Fatal("certificate not archived")
	}
}

func TestWebhookRecordsWithoutAutoArchive(t *testing.T) {
	h := newHarness(t, nil)
	webhook := newWebhook(t, h, NewWebhookSignal(h.esign))

	acct, _ := h.esign.Authenticate(context.Background())
	if _, err := h.esign.RequestSignature(context.Background(), acct, h.esign.DefaultRequest()); err != nil {
		t.Fatalf("RequestSignature: %v", err)
	}

	result, _ := webhook.ProcessConnectEvent(context.Background(), connectEvent(entity.ConnectEventEnvelopeDeclined, "REQ123"))
	if result.Action != WebhookActionRecorded {
		t.Fatalf("action = %s", result.Action)
	}
	if h.store.opens != 0 {
		t.Fatal("declined envelopes are not archived")
	}
}

func TestWebhookSignal(t *testing.T) {
	signal := NewWebhookSignal(nil)
	req := &entity.SignatureRequest{ID: "REQ1"}

	if signal.Notify("REQ1", entity.StatusCompleted) {
		t.Fatal("Notify without a waiter must report false")
	}

	confirmed := make(chan bool, 1)
	go func() {
		ok, _ := signal.Wait(context.Background(), req)
		confirmed <- ok
	}()
	for signal.Waiting() == 0 {
		time.Sleep(time.Millisecond)
	}
	if !signal.Notify("REQ1", entity.StatusDeclined) {
		t.Fatal("Notify must reach the waiter")
	}
	if <-confirmed {
		t.Fatal("a declined request must not be confirmed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := signal.Wait(ctx, req); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if signal.Waiting() != 0 {
		t.Fatal("waiter must be removed after the context ends")
	}
}

type statusReaderFunc func(ctx context.Context, requestID string) (entity.RequestStatus, error)

func (f statusReaderFunc) GetStatus(ctx context.Context, requestID string) (entity.RequestStatus, error) {
	return f(ctx, requestID)
}

func TestWebhookSignalSeesCompletionBeforeWait(t *testing.T) {
	signal := NewWebhookSignal(statusReaderFunc(func(context.Context, string) (entity.RequestStatus, error) {
		return entity.StatusCompleted, nil
	}))

	// the Connect event lands before anyone waits and is dropped
	if signal.Notify("REQ1", entity.StatusCompleted) {
		t.Fatal("Notify without a waiter must report false")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok, err := signal.Wait(ctx, &entity.SignatureRequest{ID: "REQ1"})
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ok {
		t.Fatal("a request already completed must be confirmed")
	}
	if signal.Waiting() != 0 {
		t.Fatal("waiter must be removed")
	}
}

func TestWebhookSignalKeepsWaitingOnStatusError(t *testing.T) {
	signal := NewWebhookSignal(statusReaderFunc(func(context.Context, string) (entity.RequestStatus, error) {
		return entity.StatusUnknown, errors.New("provider unavailable")
	}))

	confirmed := make(chan bool, 1)
	go func() {
		ok, _ := signal.Wait(context.Background(), &entity.SignatureRequest{ID: "REQ1"})
		confirmed <- ok
	}()
	for !signal.Notify("REQ1", entity.StatusCompleted) {
		time.Sleep(time.Millisecond)
	}
	if !<-confirmed {
		t.Fatal("completion delivered by Connect must be confirmed")
	}
}

func TestWebhookReleasesWaiterWithoutMapping(t *testing.T) {
	h := newHarness(t, nil)
	h.repo.status = entity.StatusSent
	signal := NewWebhookSignal(h.esign)
	webhook := newWebhook(t, h, signal)

	confirmed := make(chan bool, 1)
	go func() {
		ok, _ := signal.Wait(context.Background(), &entity.SignatureRequest{ID: "REQ999"})
		confirmed <- ok
	}()
	for signal.Waiting() == 0 {
		time.Sleep(time.Millisecond)
	}

	result, err := webhook.ProcessConnectEvent(context.Background(), connectEvent(entity.ConnectEventEnvelopeCompleted, "REQ999"))
	if err != nil {
		t.Fatalf("ProcessConnectEvent: %v", err)
	}
	if result.Action != WebhookActionNotified {
		t.Fatalf("action = %s", result.Action)
	}
	if !<-confirmed {
		t.Fatal("waiter must be confirmed")
	}
}

func TestStatusFromEvent(t *testing.T) {
	if statusFromEvent(entity.ConnectEventEnvelopeCompleted) != entity.StatusCompleted {
		t.Fatal("completed")
	}
	if statusFromEvent(entity.ConnectEventEnvelopeVoided) != entity.StatusVoided {
		t.Fatal("voided")
	}
}
