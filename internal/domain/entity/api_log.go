package entity

import "time"

// APILog represents a log entry for a call made to an external API
type APILog struct {
	ID           int64     `json:"id"`
	System       string    `json:"system"`
	Endpoint     string    `json:"endpoint"`
	Method       string    `json:"method"`
	RequestBody  string    `json:"request_body"`
	ResponseBody string    `json:"response_body"`
	StatusCode   int       `json:"status_code"`
	Duration     int64     `json:"duration_ms"`
	Principal    string    `json:"principal,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
