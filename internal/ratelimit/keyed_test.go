package ratelimit

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/garyellow/convobot-go/internal/metrics"
)

func TestKeyedLimiter_PerKeyBuckets(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	kl := NewKeyedLimiter(KeyedConfig{
		Name:          "user",
		Burst:         1,
		RefillRate:    0,
		CleanupPeriod: time.Hour,
		Metrics:       m,
	})
	defer kl.Stop()

	assert.True(t, kl.Allow("acme/support/u1"))
	assert.False(t, kl.Allow("acme/support/u1"))
	assert.True(t, kl.Allow("acme/support/u2"))
	assert.True(t, kl.Allow(""), "empty keys are not limited")

	assert.Equal(t, 2, kl.ActiveCount())
	assert.InDelta(t, 0.0, kl.Available("acme/support/u1"), 0.01)
	assert.InDelta(t, 1.0, kl.Available("never-seen"), 0.01)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("user")), 1e-9)
}

func TestKeyedLimiter_CleanupDropsIdleKeys(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{
		Name:          "user",
		Burst:         5,
		RefillRate:    1000,
		CleanupPeriod: 10 * time.Millisecond,
	})
	defer kl.Stop()

	kl.Allow("u1")
	assert.Eventually(t, func() bool { return kl.ActiveCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestKeyedLimiter_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Burst: 1, RefillRate: 1})
	kl.Stop()
	kl.Stop()
}
