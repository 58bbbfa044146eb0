// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file adapts the sliding-window limiter from internal/ratelimit to
// Gin. Denied requests receive 429 with the denial reason and the remaining
// allowance for both windows; the limiter itself fails open, so a broken
// counter store never blocks traffic.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/1lyagent/agent-backend/internal/ratelimit"
)

// lowEnergyMessage is the body text shown to throttled callers.
const lowEnergyMessage = "The agent is conserving energy right now. Try again in a minute."

// RateLimit returns a Gin middleware enforcing the given limiter, keyed by
// client IP. Requests flagged for rate bypass (idempotent replays) skip the
// limiter entirely.
func RateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v, ok := c.Get(ctxKeyRateBypass); ok {
			if b, _ := v.(bool); b {
				c.Next()
				return
			}
		}

		d := l.Check(c.ClientIP())
		if d.Allowed {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"ok":               false,
			"error":            lowEnergyMessage,
			"code":             "too_many_requests",
			"reason":           d.Reason,
			"remaining_per_ip": d.RemainingCaller,
			"remaining_global": d.RemainingGlobal,
		})
	}
}
