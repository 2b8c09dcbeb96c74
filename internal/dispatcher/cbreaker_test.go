package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMicroBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	b := NewMicroBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	require.True(t, b.TryAcquire())
	b.OnFailure()
	require.True(t, b.TryAcquire())
	b.OnFailure()
	require.False(t, b.TryAcquire(), "open after two failures")

	now = now.Add(2 * time.Minute)
	require.True(t, b.TryAcquire(), "one probe after cooldown")
	require.False(t, b.TryAcquire(), "only one probe in flight")

	b.OnFailure()
	require.False(t, b.TryAcquire(), "failed probe reopens")

	now = now.Add(2 * time.Minute)
	require.True(t, b.TryAcquire())
	b.OnSuccess()
	require.True(t, b.TryAcquire())
	require.True(t, b.TryAcquire())
}

func TestMicroBreakerDisabled(t *testing.T) {
	t.Parallel()
	var b *MicroBreaker = NewMicroBreaker(0, time.Second)
	require.Nil(t, b)
	for i := 0; i < 10; i++ {
		b.OnFailure()
		require.True(t, b.TryAcquire())
	}
	b.OnSuccess()
}
