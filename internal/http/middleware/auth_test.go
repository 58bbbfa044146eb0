package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func authRouter(opt AuthOptions) *gin.Engine {
	r := gin.New()
	echo := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": CallerKind(c)})
	}
	r.POST("/trusted", TrustedOnly(opt), echo)
	r.POST("/agent", AgentOnly(opt), echo)
	r.POST("/hook", HookTokenOnly(opt), echo)
	return r
}

func doAuth(t *testing.T, r *gin.Engine, path string, hdr map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestTrustedOnly(t *testing.T) {
	opt := AuthOptions{AgentSecret: "s3cret", DemoMode: true, AdminToken: "admin-token"}
	r := authRouter(opt)

	t.Run("anonymous denied", func(t *testing.T) {
		code, body := doAuth(t, r, "/trusted", nil)
		if code != http.StatusUnauthorized {
			t.Fatalf("code = %d", code)
		}
		if body["ok"] != false || body["code"] != "unauthorized" {
			t.Fatalf("body = %v", body)
		}
	})

	t.Run("agent secret admitted", func(t *testing.T) {
		code, body := doAuth(t, r, "/trusted", map[string]string{HeaderAgentSecret: "s3cret"})
		if code != http.StatusOK || body["caller"] != "agent" {
			t.Fatalf("code=%d body=%v", code, body)
		}
	})

	t.Run("wrong secret denied", func(t *testing.T) {
		code, _ := doAuth(t, r, "/trusted", map[string]string{HeaderAgentSecret: "wrong"})
		if code != http.StatusUnauthorized {
			t.Fatalf("code = %d", code)
		}
	})

	t.Run("admin bearer admitted in demo mode", func(t *testing.T) {
		code, body := doAuth(t, r, "/trusted", map[string]string{"Authorization": "Bearer admin-token"})
		if code != http.StatusOK || body["caller"] != "admin" {
			t.Fatalf("code=%d body=%v", code, body)
		}
	})
}

func TestTrustedOnly_AdminRejectedOutsideDemoMode(t *testing.T) {
	r := authRouter(AuthOptions{AgentSecret: "s3cret", DemoMode: false, AdminToken: "admin-token"})
	code, _ := doAuth(t, r, "/trusted", map[string]string{"Authorization": "Bearer admin-token"})
	if code != http.StatusUnauthorized {
		t.Fatalf("admin token must not work outside demo mode, got %d", code)
	}
}

func TestAgentOnly_RejectsAdmin(t *testing.T) {
	r := authRouter(AuthOptions{AgentSecret: "s3cret", DemoMode: true, AdminToken: "admin-token"})

	code, _ := doAuth(t, r, "/agent", map[string]string{"Authorization": "Bearer admin-token"})
	if code != http.StatusUnauthorized {
		t.Fatalf("admin token admitted on agent-only route: %d", code)
	}
	code, _ = doAuth(t, r, "/agent", map[string]string{HeaderAgentSecret: "s3cret"})
	if code != http.StatusOK {
		t.Fatalf("agent secret rejected: %d", code)
	}
}

func TestHookTokenOnly(t *testing.T) {
	r := authRouter(AuthOptions{HookToken: "hook-token"})

	code, _ := doAuth(t, r, "/hook", map[string]string{"Authorization": "Bearer hook-token"})
	if code != http.StatusOK {
		t.Fatalf("hook token rejected: %d", code)
	}
	code, _ = doAuth(t, r, "/hook", map[string]string{"Authorization": "Bearer other"})
	if code != http.StatusUnauthorized {
		t.Fatalf("wrong token admitted: %d", code)
	}
}

func TestEmptyConfiguredSecretNeverMatches(t *testing.T) {
	// An unset secret must not turn into an open door for empty headers.
	r := authRouter(AuthOptions{})
	for _, path := range []string{"/trusted", "/agent", "/hook"} {
		code, _ := doAuth(t, r, path, map[string]string{
			HeaderAgentSecret: "",
			"Authorization":   "Bearer ",
		})
		if code != http.StatusUnauthorized {
			t.Fatalf("%s admitted with empty credentials: %d", path, code)
		}
	}
}
