package entity

import (
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a signature request as reported by the provider.
type RequestStatus string

const (
	StatusUnknown   RequestStatus = "unknown"
	StatusCreated   RequestStatus = "created"
	StatusSent      RequestStatus = "sent"
	StatusDelivered RequestStatus = "delivered"
	StatusCompleted RequestStatus = "completed"
	StatusDeclined  RequestStatus = "declined"
	StatusVoided    RequestStatus = "voided"
)

// ParseRequestStatus converts the provider's status string into a RequestStatus.
// Matching is case-insensitive; anything unrecognised maps to StatusUnknown.
func ParseRequestStatus(s string) RequestStatus {
	switch RequestStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusCreated:
		return StatusCreated
	case StatusSent:
		return StatusSent
	case StatusDelivered:
		return StatusDelivered
	case StatusCompleted:
		return StatusCompleted
	case StatusDeclined:
		return StatusDeclined
	case StatusVoided:
		return StatusVoided
	default:
		return StatusUnknown
	}
}

// IsTerminal returns true once the provider will not move the request any further.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDeclined || s == StatusVoided
}

func (s RequestStatus) String() string {
	return string(s)
}

// Recipient is the single signer the template role is assigned to.
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SignatureRequest represents an envelope created from a template
type SignatureRequest struct {
	ID              string        `json:"id"`
	Recipient       Recipient     `json:"recipient"`
	TemplateID      string        `json:"template_id"`
	Subject         string        `json:"subject"`
	Status          RequestStatus `json:"status"`
	StatusChangedAt time.Time     `json:"status_changed_at"`
}

// AccountContext carries the resolved default account for every call after login.
type AccountContext struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	BaseURI     string `json:"base_uri"`
	Principal   string `json:"principal"`
}

// CreateSignatureRequest is the input for creating a request from a template
type CreateSignatureRequest struct {
	TemplateID string    `json:"template_id"`
	Recipient  Recipient `json:"recipient"`
	Subject    string    `json:"subject"`
}
