package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is implemented by stores that need explicit expiry.
type Sweeper interface {
	Sweep(now time.Time) int
}

// StartJanitor runs store.Sweep on schedule (cron spec or @every).
// It returns nil when the store expires records on its own.
func StartJanitor(store Store, schedule string, log *zap.Logger) (*cron.Cron, error) {
	sw, ok := store.(Sweeper)
	if !ok {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if n := sw.Sweep(time.Now()); n > 0 {
			log.Debug("expired jobs swept", zap.Int("count", n))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("jobs sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
