package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func idemRouter(lookup SponsorshipLookup, pre ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := []gin.HandlerFunc{IdempotencyValidator(IdempotencyOptions{})}
	chain = append(chain, pre...)
	chain = append(chain, ReplayLookup(lookup), func(c *gin.Context) {
		key, _ := GetIdempotencyKey(c)
		c.JSON(http.StatusOK, gin.H{"key": key, "replay": IsReplay(c)})
	})
	r.POST("/sponsor", chain...)
	return r
}

func postWithKey(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/sponsor", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_NoHeaderPassesThrough(t *testing.T) {
	w := postWithKey(idemRouter(nil), "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"key":""`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	r := idemRouter(nil)
	bad := []string{
		"has spaces",
		"emoji-⚡",
		strings.Repeat("k", 201),
	}
	for _, key := range bad {
		w := postWithKey(r, key)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: code = %d", key, w.Code)
		}
		if !strings.Contains(w.Body.String(), "bad_idempotency_key") {
			t.Fatalf("key %q: body = %s", key, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_AcceptsTokenKeys(t *testing.T) {
	r := idemRouter(nil)
	for _, key := range []string{"abc-123", "a.b_c~d:e", strings.Repeat("k", 200)} {
		if w := postWithKey(r, key); w.Code != http.StatusOK {
			t.Fatalf("key %q rejected: %d", key, w.Code)
		}
	}
}

func TestIdempotencyValidator_FlagsReplays(t *testing.T) {
	var gotCaller, gotKey string
	lookup := func(ctx context.Context, caller, key string, now time.Time) (bool, error) {
		gotCaller, gotKey = caller, key
		return key == "seen-before", nil
	}
	r := idemRouter(lookup)

	w := postWithKey(r, "seen-before")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"replay":true`) {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if gotKey != "seen-before" || !strings.HasPrefix(gotCaller, "ip:") {
		t.Fatalf("lookup saw caller=%q key=%q", gotCaller, gotKey)
	}

	w = postWithKey(r, "fresh-key")
	if !strings.Contains(w.Body.String(), `"replay":false`) {
		t.Fatalf("fresh key flagged as replay: %s", w.Body.String())
	}
}

func TestReplayLookup_KeysOnAuthenticatedCaller(t *testing.T) {
	var gotCaller string
	lookup := func(ctx context.Context, caller, key string, now time.Time) (bool, error) {
		gotCaller = caller
		return true, nil
	}
	// ReplayLookup sits after auth in the chain, so receipts created under
	// the authenticated caller are found on retry.
	asAdmin := func(c *gin.Context) {
		c.Set(ctxKeyCallerKind, "admin")
		c.Next()
	}
	r := idemRouter(lookup, asAdmin)

	w := postWithKey(r, "retry-key")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"replay":true`) {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	if gotCaller != "admin" {
		t.Fatalf("lookup saw caller=%q, want the authenticated caller", gotCaller)
	}
}
