package services

import (
	"context"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
)

const dryRunDuplicateWindow = 5 * time.Minute

type DiagnosticsMessageRepository interface {
	FindRetryQueue(ctx context.Context, limit int) ([]*model.Message, error)
	CountByChannelSince(ctx context.Context, channel model.Channel, since time.Time) (int64, error)
	FindRecentByTemplateAndPhone(ctx context.Context, orgID, templateCode, phone string, since time.Time) ([]*model.Message, error)
}

type DiagnosticsAttemptRepository interface {
	LatestByMessage(ctx context.Context, messageID int64) (*model.Attempt, error)
	CountFailuresByCode(ctx context.Context, since time.Time) (map[string]int64, error)
	CountFailedSince(ctx context.Context, since time.Time) (int64, error)
}

// DiagnosticsService backs the admin surface used to investigate WhatsApp
// delivery problems without direct database access.
type DiagnosticsService struct {
	messages DiagnosticsMessageRepository
	attempts DiagnosticsAttemptRepository
	windows  SessionWindowRepository
	clock    func() time.Time
}

func NewDiagnosticsService(messages DiagnosticsMessageRepository, attempts DiagnosticsAttemptRepository, windows SessionWindowRepository) *DiagnosticsService {
	return &DiagnosticsService{
		messages: messages,
		attempts: attempts,
		windows:  windows,
		clock:    time.Now,
	}
}

type SessionDiagnostics struct {
	Total    int                   `json:"total"`
	Active   int                   `json:"active"`
	Sessions []*SessionWindowState `json:"sessions"`
}

type SessionWindowState struct {
	OrgID                 string     `json:"org_id"`
	PhoneNumber           string     `json:"phone_number"`
	WindowExpiresAt       time.Time  `json:"window_expires_at"`
	LastInboundMessageAt  time.Time  `json:"last_inbound_message_at"`
	LastOutboundMessageAt *time.Time `json:"last_outbound_message_at,omitempty"`
	Active                bool       `json:"active"`
	SecondsRemaining      int64      `json:"seconds_remaining"`
}

// Sessions lists recent session windows with their remaining time.
func (s *DiagnosticsService) Sessions(ctx context.Context, activeOnly bool, limit int) (*SessionDiagnostics, error) {
	windows, err := s.windows.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	out := &SessionDiagnostics{Sessions: make([]*SessionWindowState, 0, len(windows))}
	for _, w := range windows {
		active := w.WithinWindowAt(now)
		out.Total++
		if active {
			out.Active++
		}
		if activeOnly && !active {
			continue
		}
		out.Sessions = append(out.Sessions, &SessionWindowState{
			OrgID:                 w.OrgID,
			PhoneNumber:           w.PhoneNumber,
			WindowExpiresAt:       w.WindowExpiresAt,
			LastInboundMessageAt:  w.LastInboundMessageAt,
			LastOutboundMessageAt: w.LastOutboundMessageAt,
			Active:                active,
			SecondsRemaining:      w.SecondsRemainingAt(now),
		})
	}
	return out, nil
}

type RetryQueueEntry struct {
	MessageID    int64      `json:"message_id"`
	OrgID        string     `json:"org_id"`
	To           string     `json:"to"`
	AttemptCount int        `json:"attempt_count"`
	MaxAttempts  int        `json:"max_attempts"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
}

// RetryQueue lists WhatsApp messages waiting on a backoff deadline, joined
// with the scheduling info of their most recent attempt.
func (s *DiagnosticsService) RetryQueue(ctx context.Context, limit int) ([]*RetryQueueEntry, error) {
	msgs, err := s.messages.FindRetryQueue(ctx, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]*RetryQueueEntry, 0, len(msgs))
	for _, m := range msgs {
		entry := &RetryQueueEntry{
			MessageID:    m.ID,
			OrgID:        m.OrgID,
			To:           m.To,
			AttemptCount: m.AttemptCount,
			MaxAttempts:  m.MaxAttempts,
			ErrorCode:    m.ErrorCode,
			ErrorMessage: m.ErrorMessage,
			NextRetryAt:  m.NextEligibleAt,
		}
		latest, err := s.attempts.LatestByMessage(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if latest != nil && latest.NextRetryAt != nil {
			entry.NextRetryAt = latest.NextRetryAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type ErrorPatternReport struct {
	PeriodHours     int                  `json:"period_hours"`
	MessagesCreated int64                `json:"messages_created"`
	FailedAttempts  int64                `json:"failed_attempts"`
	FailureRate     float64              `json:"failure_rate"`
	Patterns        []*model.ErrorPattern `json:"patterns"`
}

// ErrorPatterns aggregates failed WhatsApp attempts by provider error code
// over the trailing period and annotates each code from the catalog.
func (s *DiagnosticsService) ErrorPatterns(ctx context.Context, hours int) (*ErrorPatternReport, error) {
	if hours <= 0 || hours > 24*30 {
		hours = 24
	}
	since := s.clock().Add(-time.Duration(hours) * time.Hour)

	counts, err := s.attempts.CountFailuresByCode(ctx, since)
	if err != nil {
		return nil, err
	}
	failed, err := s.attempts.CountFailedSince(ctx, since)
	if err != nil {
		return nil, err
	}
	created, err := s.messages.CountByChannelSince(ctx, model.ChannelWhatsApp, since)
	if err != nil {
		return nil, err
	}

	report := &ErrorPatternReport{
		PeriodHours:     hours,
		MessagesCreated: created,
		FailedAttempts:  failed,
		Patterns:        make([]*model.ErrorPattern, 0, len(counts)),
	}
	if created > 0 {
		report.FailureRate = float64(failed) / float64(created)
	}
	for code, n := range counts {
		report.Patterns = append(report.Patterns, &model.ErrorPattern{
			ErrorCode:   code,
			Count:       n,
			Explanation: ExplainErrorCode(code),
			Transient:   IsTransientErrorCode(code),
		})
	}
	sortPatterns(report.Patterns)
	return report, nil
}

func sortPatterns(patterns []*model.ErrorPattern) {
	for i := 1; i < len(patterns); i++ {
		for j := i; j > 0 && patterns[j].Count > patterns[j-1].Count; j-- {
			patterns[j], patterns[j-1] = patterns[j-1], patterns[j]
		}
	}
}

type DryRunRequest struct {
	OrgID        string `json:"-"`
	To           string `json:"to"`
	TemplateCode string `json:"template_code,omitempty"`
}

type DryRunResult struct {
	WouldSend         bool       `json:"would_send"`
	Reason            string     `json:"reason,omitempty"`
	WithinWindow      bool       `json:"within_window"`
	WindowExpiresAt   *time.Time `json:"window_expires_at,omitempty"`
	RecentDuplicates  int        `json:"recent_duplicates"`
	TemplateBypass    bool       `json:"template_bypass"`
}

// DryRunSend evaluates the admission checks a WhatsApp send would face,
// without creating a message or touching the provider.
func (s *DiagnosticsService) DryRunSend(ctx context.Context, req DryRunRequest) (*DryRunResult, error) {
	now := s.clock()
	res := &DryRunResult{TemplateBypass: req.TemplateCode != ""}

	w, err := s.windows.Get(ctx, req.OrgID, req.To)
	if err != nil {
		return nil, err
	}
	if w != nil {
		res.WithinWindow = w.WithinWindowAt(now)
		t := w.WindowExpiresAt
		res.WindowExpiresAt = &t
	}

	if req.TemplateCode != "" {
		recent, err := s.messages.FindRecentByTemplateAndPhone(ctx, req.OrgID, req.TemplateCode, req.To, now.Add(-dryRunDuplicateWindow))
		if err != nil {
			return nil, err
		}
		res.RecentDuplicates = len(recent)
	}

	switch {
	case res.RecentDuplicates > 0:
		res.Reason = "an identical template was sent to this recipient in the last 5 minutes"
	case !res.WithinWindow && !res.TemplateBypass:
		res.Reason = ExplainErrorCode(CodeNoActiveSession)
	default:
		res.WouldSend = true
	}
	return res, nil
}
