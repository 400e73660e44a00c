package ratelimit

import (
	"fmt"
	"time"

	"github.com/lamallamadel/outbound-gateway/pkg/redis"
)

// WhatsAppQuota is a fixed-window per-organization send quota. Exhaustion is
// a soft failure: dispatch records a retryable attempt and the message waits
// for the next window instead of burning its budget against the provider.
type WhatsAppQuota struct {
	adapter redis.RedisAdapter
	limit   int64
	window  time.Duration
}

func NewWhatsAppQuota(adapter redis.RedisAdapter, limit int64, window time.Duration) *WhatsAppQuota {
	if limit <= 0 {
		limit = 1000
	}
	if window <= 0 {
		window = time.Hour
	}
	return &WhatsAppQuota{
		adapter: adapter,
		limit:   limit,
		window:  window,
	}
}

// Allow consumes one quota unit for the org. It fails open when Redis is
// unreachable so a cache outage cannot stall all outbound traffic.
func (q *WhatsAppQuota) Allow(orgID string) (bool, error) {
	if q.adapter == nil {
		return true, nil
	}
	n, err := q.adapter.IncrWithTTL(q.counterKey(orgID), q.window)
	if err != nil {
		return true, err
	}
	return n <= q.limit, nil
}

// Remaining reports the unused quota in the current window.
func (q *WhatsAppQuota) Remaining(orgID string) (int64, error) {
	if q.adapter == nil {
		return q.limit, nil
	}
	raw, err := q.adapter.Get(q.counterKey(orgID))
	if err == redis.NilError {
		return q.limit, nil
	}
	if err != nil {
		return 0, err
	}
	var used int64
	if _, err := fmt.Sscanf(string(raw), "%d", &used); err != nil {
		return 0, err
	}
	if used >= q.limit {
		return 0, nil
	}
	return q.limit - used, nil
}

func (q *WhatsAppQuota) counterKey(orgID string) string {
	return fmt.Sprintf("quota:whatsapp:%s", orgID)
}
