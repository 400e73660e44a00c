package model

import "time"

// SessionWindowDuration is the WhatsApp customer-service window: free-form
// replies are only permitted within 24 hours of the last customer message.
const SessionWindowDuration = 24 * time.Hour

// SessionWindow is the per (org, phone number) admission-control record.
// It is written by the inbound ingestion path and read by dispatch.
type SessionWindow struct {
	ID                    int64      `json:"id"`
	OrgID                 string     `json:"org_id"`
	PhoneNumber           string     `json:"phone_number"`
	WindowOpensAt         time.Time  `json:"window_opens_at"`
	WindowExpiresAt       time.Time  `json:"window_expires_at"`
	LastInboundMessageAt  time.Time  `json:"last_inbound_message_at"`
	LastOutboundMessageAt *time.Time `json:"last_outbound_message_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// WithinWindowAt reports whether free-form sends are admitted at t.
func (w *SessionWindow) WithinWindowAt(t time.Time) bool {
	return t.Before(w.WindowExpiresAt)
}

// SecondsRemainingAt returns the window time left at t, floored at zero.
func (w *SessionWindow) SecondsRemainingAt(t time.Time) int64 {
	if !w.WithinWindowAt(t) {
		return 0
	}
	return int64(w.WindowExpiresAt.Sub(t).Seconds())
}
