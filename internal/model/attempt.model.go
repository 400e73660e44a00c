package model

import "time"

// AttemptStatus is the state of a single dispatch try.
type AttemptStatus string

const (
	AttemptStatusTrying  AttemptStatus = "TRYING"
	AttemptStatusSuccess AttemptStatus = "SUCCESS"
	AttemptStatusFailed  AttemptStatus = "FAILED"
)

type Attempt struct {
	ID              int64         `json:"id"`
	OrgID           string        `json:"org_id"`
	MessageID       int64         `json:"message_id"`
	AttemptNo       int           `json:"attempt_no"`
	Status          AttemptStatus `json:"status"`
	ProviderCode    string        `json:"provider_code,omitempty"`
	ProviderMessage string        `json:"provider_message,omitempty"`
	NextRetryAt     *time.Time    `json:"next_retry_at,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// ErrorPattern is one row of the failed-attempt aggregation used by the
// diagnostics surface.
type ErrorPattern struct {
	ErrorCode   string `json:"error_code"`
	Count       int64  `json:"count"`
	Explanation string `json:"explanation"`
	Transient   bool   `json:"transient"`
}
