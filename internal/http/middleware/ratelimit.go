package middleware

import (
	"math"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig config for the process-wide token bucket.
type RateLimitConfig struct {
	RPS            int  // 0 disables limiting
	Burst          int  // defaults to RPS
	RetryAfterHint bool // set Retry-After header when limited
}

// RateLimitMiddleware caps request throughput for the whole process.
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.RPS <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RPS
	}
	lim := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := lim.Reserve()
			if d := r.Delay(); d > 0 {
				r.Cancel()
				if cfg.RetryAfterHint {
					secs := int(math.Ceil(d.Seconds()))
					if secs < 1 {
						secs = 1
					}
					c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			return next(c)
		}
	}
}
