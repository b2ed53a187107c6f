package entity

import "time"

// ConnectEvent is the JSON body DocuSign Connect posts when an envelope changes state
type ConnectEvent struct {
	Event             string           `json:"event"`
	APIVersion        string           `json:"apiVersion"`
	URI               string           `json:"uri"`
	RetryCount        int              `json:"retryCount"`
	ConfigurationID   int64            `json:"configurationId"`
	GeneratedDateTime time.Time        `json:"generatedDateTime"`
	Data              ConnectEventData `json:"data"`
}

// ConnectEventData identifies the envelope the event is about
type ConnectEventData struct {
	AccountID  string `json:"accountId"`
	UserID     string `json:"userId"`
	EnvelopeID string `json:"envelopeId"`
}

// Connect event names that move an envelope into a terminal state
const (
	ConnectEventEnvelopeCompleted = "envelope-completed"
	ConnectEventEnvelopeDeclined  = "envelope-declined"
	ConnectEventEnvelopeVoided    = "envelope-voided"
)

// IsTerminal reports whether the event signals that the envelope will not change any more.
func (e *ConnectEvent) IsTerminal() bool {
	switch e.Event {
	case ConnectEventEnvelopeCompleted, ConnectEventEnvelopeDeclined, ConnectEventEnvelopeVoided:
		return true
	}
	return false
}

// EnvelopeMapping is what the service remembers about an envelope it created,
// so the webhook can archive it later.
type EnvelopeMapping struct {
	RequestID  string    `json:"request_id"`
	AccountID  string    `json:"account_id"`
	Recipient  Recipient `json:"recipient"`
	TemplateID string    `json:"template_id"`
	Subject    string    `json:"subject"`
	CreatedAt  time.Time `json:"created_at"`
}
