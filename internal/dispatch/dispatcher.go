package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gateway "github.com/lamallamadel/outbound-gateway/internal/gateways"
	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/internal/services"
	"github.com/lamallamadel/outbound-gateway/pkg/logger"
	"github.com/lamallamadel/outbound-gateway/pkg/prom"
)

type MessageStore interface {
	ClaimForSending(ctx context.Context, id int64) (bool, error)
	MarkSent(ctx context.Context, id int64, providerMessageID string, delivered bool, at time.Time) error
	MarkFailedRetry(ctx context.Context, id int64, errCode, errMsg string, nextEligibleAt time.Time) error
	MarkFailedTerminal(ctx context.Context, id int64, errCode, errMsg string) error
}

type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) (*model.Attempt, error)
	MarkSuccess(ctx context.Context, id int64, providerCode, providerMsg string) error
	MarkFailed(ctx context.Context, id int64, providerCode, providerMsg string, nextRetryAt *time.Time) error
}

type SessionGate interface {
	IsWithinWindow(ctx context.Context, orgID, phone string) (bool, error)
	RecordOutbound(ctx context.Context, orgID, phone string) error
}

type Quota interface {
	Allow(orgID string) (bool, error)
}

type ProviderClient interface {
	Send(ctx context.Context, req *gateway.SendRequest) (*gateway.SendResponse, error)
}

// Dispatcher runs the per-message send state machine: claim, admission,
// provider call, outcome. Each message is handled exactly once per pull
// because the claim is a conditional update.
type Dispatcher struct {
	messages MessageStore
	attempts AttemptStore
	sessions SessionGate
	quota    Quota
	provider ProviderClient
	backoff  BackoffPolicy
	clock    func() time.Time
}

func NewDispatcher(messages MessageStore, attempts AttemptStore, sessions SessionGate, quota Quota, provider ProviderClient, backoff BackoffPolicy) *Dispatcher {
	return &Dispatcher{
		messages: messages,
		attempts: attempts,
		sessions: sessions,
		quota:    quota,
		provider: provider,
		backoff:  backoff,
		clock:    time.Now,
	}
}

// Dispatch processes one pulled message. A lost claim race is a silent
// no-op; every other path lands an attempt row and a message outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *model.Message) error {
	claimed, err := d.messages.ClaimForSending(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("claim message %d: %w", msg.ID, err)
	}
	if !claimed {
		logger.Debug("Claim lost, skipping", "message_id", msg.ID)
		return nil
	}

	attempt, err := d.attempts.Create(ctx, &model.Attempt{
		OrgID:     msg.OrgID,
		MessageID: msg.ID,
		AttemptNo: msg.AttemptCount + 1,
		Status:    model.AttemptStatusTrying,
		StartedAt: d.clock(),
	})
	if err != nil {
		return fmt.Errorf("create attempt for message %d: %w", msg.ID, err)
	}

	if msg.Channel == model.ChannelWhatsApp {
		if code, errMsg, blocked, err := d.admit(ctx, msg); err != nil {
			return err
		} else if blocked {
			return d.fail(ctx, msg, attempt, code, errMsg)
		}
	}

	start := d.clock()
	resp, err := d.provider.Send(ctx, &gateway.SendRequest{
		MessageID:    strconv.FormatInt(msg.ID, 10),
		Channel:      msg.Channel,
		To:           msg.To,
		TemplateCode: msg.TemplateCode,
		Subject:      msg.Subject,
		Payload:      msg.Payload,
	})
	prom.AddDispatchDuration(d.clock().Sub(start).Seconds(), string(msg.Channel))

	if err != nil {
		logger.Warn("Provider call failed", "message_id", msg.ID, "error", err)
		return d.fail(ctx, msg, attempt, services.CodeProviderUnavailable, err.Error())
	}
	if !resp.Success {
		return d.fail(ctx, msg, attempt, resp.ProviderErrorCode, resp.ProviderMessage)
	}
	return d.succeed(ctx, msg, attempt, resp)
}

// admit runs the local WhatsApp gates before any provider traffic: the
// 24-hour session window for free-form messages and the per-org quota.
func (d *Dispatcher) admit(ctx context.Context, msg *model.Message) (code, errMsg string, blocked bool, err error) {
	if !msg.IsTemplated() {
		within, err := d.sessions.IsWithinWindow(ctx, msg.OrgID, msg.To)
		if err != nil {
			return "", "", false, fmt.Errorf("session window lookup for message %d: %w", msg.ID, err)
		}
		if !within {
			return services.CodeNoActiveSession, services.ExplainErrorCode(services.CodeNoActiveSession), true, nil
		}
	}

	if d.quota != nil {
		ok, err := d.quota.Allow(msg.OrgID)
		if err != nil {
			logger.Warn("Quota check failed, admitting", "org_id", msg.OrgID, "error", err)
			return "", "", false, nil
		}
		if !ok {
			return services.CodeQuotaExceeded, services.ExplainErrorCode(services.CodeQuotaExceeded), true, nil
		}
	}
	return "", "", false, nil
}

func (d *Dispatcher) succeed(ctx context.Context, msg *model.Message, attempt *model.Attempt, resp *gateway.SendResponse) error {
	now := d.clock()

	if err := d.attempts.MarkSuccess(ctx, attempt.ID, "", resp.ProviderMessageID); err != nil {
		return err
	}
	if err := d.messages.MarkSent(ctx, msg.ID, resp.ProviderMessageID, resp.Delivered, now); err != nil {
		return err
	}
	if msg.Channel == model.ChannelWhatsApp {
		if err := d.sessions.RecordOutbound(ctx, msg.OrgID, msg.To); err != nil {
			logger.Warn("Failed to record outbound traffic", "message_id", msg.ID, "error", err)
		}
	}

	prom.IncDispatchAttempt(string(msg.Channel), "success")
	logger.Info("Message dispatched",
		"message_id", msg.ID,
		"channel", string(msg.Channel),
		"attempt", attempt.AttemptNo,
		"delivered", resp.Delivered)
	return nil
}

// fail lands a failed attempt. Failures are not classified by code: every
// failure retries behind its backoff deadline until the attempt budget is
// spent, then the message is terminal. Operators read the recorded codes
// through the error-patterns report.
func (d *Dispatcher) fail(ctx context.Context, msg *model.Message, attempt *model.Attempt, code, errMsg string) error {
	attemptCount := attempt.AttemptNo
	retryable := attemptCount < msg.MaxAttempts

	var nextRetryAt *time.Time
	if retryable {
		next := d.clock().Add(d.backoff.Delay(attemptCount))
		nextRetryAt = &next
	}

	if err := d.attempts.MarkFailed(ctx, attempt.ID, code, errMsg, nextRetryAt); err != nil {
		return err
	}

	if retryable {
		prom.IncDispatchAttempt(string(msg.Channel), "retry")
		logger.Warn("Attempt failed, will retry",
			"message_id", msg.ID,
			"attempt", attemptCount,
			"error_code", code,
			"next_retry_at", *nextRetryAt)
		return d.messages.MarkFailedRetry(ctx, msg.ID, code, errMsg, *nextRetryAt)
	}

	prom.IncDispatchAttempt(string(msg.Channel), "failed")
	logger.Error("Message failed terminally",
		"message_id", msg.ID,
		"attempt", attemptCount,
		"error_code", code)
	return d.messages.MarkFailedTerminal(ctx, msg.ID, code, errMsg)
}
