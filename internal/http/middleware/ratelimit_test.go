package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/1lyagent/agent-backend/internal/ratelimit"
)

func limitedRouter(l *ratelimit.Limiter, pre ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := append(pre, RateLimit(l), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/limited", chain...)
	return r
}

func hitLimited(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/limited", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_DeniesSixthRequest(t *testing.T) {
	l := ratelimit.New(ratelimit.NewMemoryStore(), time.Minute, 5, 100)
	r := limitedRouter(l)

	for i := 0; i < 5; i++ {
		if w := hitLimited(r, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: code = %d", i+1, w.Code)
		}
	}

	w := hitLimited(r, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth request: code = %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["ok"] != false || body["code"] != "too_many_requests" {
		t.Fatalf("body = %v", body)
	}
	if body["error"] != lowEnergyMessage {
		t.Fatalf("error text = %v", body["error"])
	}
	if _, ok := body["remaining_per_ip"]; !ok {
		t.Fatalf("remaining counters missing: %v", body)
	}

	// A different client is unaffected by the exhausted window.
	if w := hitLimited(r, "10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("other client blocked: %d", w.Code)
	}
}

func TestRateLimit_ReplayBypassesLimiter(t *testing.T) {
	l := ratelimit.New(ratelimit.NewMemoryStore(), time.Minute, 1, 100)
	flagReplay := func(c *gin.Context) { c.Set(ctxKeyRateBypass, true) }
	r := limitedRouter(l, flagReplay)

	for i := 0; i < 10; i++ {
		if w := hitLimited(r, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("replay %d throttled: %d", i+1, w.Code)
		}
	}
}
