package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartJanitor(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Millisecond, 10)
	require.NoError(t, s.Create(context.Background(), newJob("x", time.Now())))

	c, err := StartJanitor(s, "@every 1s", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, c)
	defer c.Stop()

	require.Eventually(t, func() bool { return s.Len() == 0 }, 5*time.Second, 50*time.Millisecond)
}

func TestStartJanitorBadSchedule(t *testing.T) {
	t.Parallel()
	_, err := StartJanitor(NewMemoryStore(time.Minute, 1), "every now and then", zap.NewNop())
	require.Error(t, err)
}

func TestStartJanitorSkipsSelfExpiringStores(t *testing.T) {
	t.Parallel()
	s, _ := newRedisStore(t, time.Minute)
	c, err := StartJanitor(s, "@every 1s", zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, c)
}
