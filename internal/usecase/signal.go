package usecase

import (
	"context"
	"sync"

	"esign-archiver/internal/domain/entity"
)

// CompletionSignal tells the pipeline when the signer has finished.
// Wait returns true when the request should be archived now.
type CompletionSignal interface {
	Wait(ctx context.Context, req *entity.SignatureRequest) (bool, error)
}

// ImmediateSignal confirms at once. Used by the one-shot CLI with -yes and by tests.
type ImmediateSignal struct{}

func (ImmediateSignal) Wait(ctx context.Context, _ *entity.SignatureRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

// StatusReader reads the provider-side status of a request
type StatusReader interface {
	GetStatus(ctx context.Context, requestID string) (entity.RequestStatus, error)
}

// WebhookSignal is released by Connect events received in service mode.
type WebhookSignal struct {
	status  StatusReader
	mu      sync.Mutex
	waiters map[string]chan entity.RequestStatus
}

// NewWebhookSignal returns a signal that also asks status, when non-nil, whether the
// request already finished before the waiter was registered.
func NewWebhookSignal(status StatusReader) *WebhookSignal {
	return &WebhookSignal{
		status:  status,
		waiters: make(map[string]chan entity.RequestStatus),
	}
}

// Wait blocks until Notify is called for the request or ctx is done.
// Only a completed request is confirmed; declined or voided ones release the waiter with false.
func (s *WebhookSignal) Wait(ctx context.Context, req *entity.SignatureRequest) (bool, error) {
	ch := make(chan entity.RequestStatus, 1)

	s.mu.Lock()
	s.waiters[req.ID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.waiters[req.ID] == ch {
			delete(s.waiters, req.ID)
		}
		s.mu.Unlock()
	}()

	// Notify drops events that arrive before the waiter exists
	if s.status != nil {
		if status, err := s.status.GetStatus(ctx, req.ID); err == nil && status.IsTerminal() {
			return status == entity.StatusCompleted, nil
		}
	}

	select {
	case status := <-ch:
		return status == entity.StatusCompleted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Notify releases the waiter of requestID, if any, and reports whether one was waiting.
func (s *WebhookSignal) Notify(requestID string, status entity.RequestStatus) bool {
	s.mu.Lock()
	ch, ok := s.waiters[requestID]
	if ok {
		delete(s.waiters, requestID)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	ch <- status
	return true
}

// Waiting returns the number of pipelines parked on a Connect event
func (s *WebhookSignal) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}
