// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for sponsorship submissions.
// It validates an Idempotency-Key header, stashes the normalized key in the
// request context, and optionally performs a lookup to detect previously
// queued sponsorships so downstream components can:
//   - read the normalized key (GetIdempotencyKey)
//   - detect replayed requests (IsReplay)
//   - bypass rate limiting when a replay is served (internal flag)
//
// Persistence stays decoupled behind the narrow SponsorshipLookup type.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header clients use to deduplicate
// retried sponsorship submissions.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated idempotency key stored by
// IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request would replay a previously queued
// sponsorship.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation. TTL enforcement belongs
// inside the lookup function, not here.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, a conservative
	// RFC7230-like token pattern is used: ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
}

// SponsorshipLookup answers whether a still-valid sponsorship receipt exists
// for (caller, key) at the given time. Return an error only for lookup
// failures; those never block normal processing.
type SponsorshipLookup func(ctx context.Context, caller, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header (if present)
// and stashes the normalized key in the request context. Absent headers make
// the middleware a no-op; invalid headers fail with 400. Replay detection
// lives in ReplayLookup, which must run after authentication.
func IdempotencyValidator(opts IdempotencyOptions) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"ok":    false,
				"error": "invalid Idempotency-Key",
				"code":  "bad_idempotency_key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)
		c.Next()
	}
}

// ReplayLookup checks whether a validated key replays a previously queued
// sponsorship and, if so, sets the replay and rate-bypass flags. It must be
// registered after the route's auth middleware so the receipt lookup keys on
// the authenticated caller, not the client IP. The handler still runs and
// decides how to serve the replay.
func ReplayLookup(lookup SponsorshipLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetIdempotencyKey(c)
		if !ok || lookup == nil {
			c.Next()
			return
		}
		caller := CallerKind(c)
		if caller == "" {
			caller = "ip:" + c.ClientIP()
		}
		now := time.Now().UTC()
		if exists, _ := lookup(c.Request.Context(), caller, key, now); exists {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
