package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lamallamadel/outbound-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQuota(t *testing.T, limit int64, window time.Duration) (*miniredis.Miniredis, *WhatsAppQuota) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}})
	adapter := redis.NewAdapterWithClient(client, "test")

	return mr, NewWhatsAppQuota(adapter, limit, window)
}

func TestWhatsAppQuota_Allow(t *testing.T) {
	_, quota := setupQuota(t, 3, time.Hour)

	for i := 0; i < 3; i++ {
		ok, err := quota.Allow("org-a")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := quota.Allow("org-a")
	require.NoError(t, err)
	assert.False(t, ok, "fourth send exceeds the limit")

	ok, err = quota.Allow("org-b")
	require.NoError(t, err)
	assert.True(t, ok, "quota is per organization")
}

func TestWhatsAppQuota_WindowReset(t *testing.T) {
	mr, quota := setupQuota(t, 1, time.Minute)

	ok, err := quota.Allow("org-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = quota.Allow("org-a")
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(time.Minute + time.Second)

	ok, err = quota.Allow("org-a")
	require.NoError(t, err)
	assert.True(t, ok, "counter expires with the window")
}

func TestWhatsAppQuota_Remaining(t *testing.T) {
	_, quota := setupQuota(t, 5, time.Hour)

	remaining, err := quota.Remaining("org-a")
	require.NoError(t, err)
	assert.Equal(t, int64(5), remaining)

	_, err = quota.Allow("org-a")
	require.NoError(t, err)
	_, err = quota.Allow("org-a")
	require.NoError(t, err)

	remaining, err = quota.Remaining("org-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining)
}

func TestWhatsAppQuota_NilAdapterFailsOpen(t *testing.T) {
	quota := NewWhatsAppQuota(nil, 1, time.Hour)

	for i := 0; i < 10; i++ {
		ok, err := quota.Allow("org-a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
