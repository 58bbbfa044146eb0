// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the caller trust model. Two credentials exist:
//
//   - the shared agent secret (X-Agent-Secret header), identifying the
//     autonomous agent itself;
//   - the admin bearer token, accepted only while demo mode is enabled so
//     operators can drive trusted endpoints from the demo UI.
//
// A third static bearer token guards the answer-storage endpoint used by
// the agent runtime. All comparisons are constant-time.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAgentSecret carries the shared agent secret.
const HeaderAgentSecret = "X-Agent-Secret"

// ctxKeyCallerKind marks how the caller authenticated ("agent" or "admin").
const ctxKeyCallerKind = "auth.caller"

// AuthOptions configures the trust middleware.
type AuthOptions struct {
	// AgentSecret is the shared secret identifying the agent. Empty disables
	// agent authentication entirely.
	AgentSecret string
	// DemoMode enables the admin bearer token.
	DemoMode bool
	// AdminToken is the demo-mode bearer token.
	AdminToken string
	// HookToken is the static bearer guarding answer storage.
	HookToken string
}

// CallerKind returns how the current request authenticated, or "" for
// anonymous callers.
func CallerKind(c *gin.Context) string {
	v, _ := c.Get(ctxKeyCallerKind)
	s, _ := v.(string)
	return s
}

func equal(a, b string) bool {
	return a != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return h[7:]
	}
	return ""
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"ok":    false,
		"error": "unauthorized",
		"code":  "unauthorized",
	})
}

// TrustedOnly admits the agent (via X-Agent-Secret) and, in demo mode, the
// admin bearer token. All other callers receive 401 before any handler runs.
func TrustedOnly(opt AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if equal(opt.AgentSecret, c.GetHeader(HeaderAgentSecret)) {
			c.Set(ctxKeyCallerKind, "agent")
			c.Next()
			return
		}
		if opt.DemoMode && equal(opt.AdminToken, bearer(c)) {
			c.Set(ctxKeyCallerKind, "admin")
			c.Next()
			return
		}
		unauthorized(c)
	}
}

// AgentOnly admits only the agent secret; the admin token is not accepted.
func AgentOnly(opt AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if equal(opt.AgentSecret, c.GetHeader(HeaderAgentSecret)) {
			c.Set(ctxKeyCallerKind, "agent")
			c.Next()
			return
		}
		unauthorized(c)
	}
}

// HookTokenOnly admits the static hook bearer token used by the agent
// runtime to store answers.
func HookTokenOnly(opt AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if equal(opt.HookToken, bearer(c)) {
			c.Set(ctxKeyCallerKind, "agent")
			c.Next()
			return
		}
		unauthorized(c)
	}
}
