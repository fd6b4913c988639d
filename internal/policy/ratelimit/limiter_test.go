package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitSpacesRequests(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://kokkai.ndl.go.jp/api/meeting"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://kokkai.ndl.go.jp/api/meeting?startRecord=101"))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHostsAreIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://jp.reuters.com/a"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.webtv.sangiin.go.jp/b"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterOverrideAndCancel(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0, PerDomainRPS: map[string]float64{"JP.Reuters.com": 0.01}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://jp.reuters.com/a"))
	require.Error(t, l.Wait(ctx, "https://jp.reuters.com/b"))

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://kokkai.ndl.go.jp/api"))
	}
}
