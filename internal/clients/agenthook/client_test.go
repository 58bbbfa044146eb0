package agenthook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDispatch(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"runId": "run-7"})
	}))
	defer srv.Close()

	c := New(srv.URL, "hook-token", "https://backend.example")
	runID, err := c.Dispatch(context.Background(), "req-1", "write a poem")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if runID != "run-7" {
		t.Fatalf("runID = %q", runID)
	}
	if gotAuth != "Bearer hook-token" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
	if gotBody["sessionKey"] != "hook:1lyagent:req-1" {
		t.Fatalf("sessionKey = %q", gotBody["sessionKey"])
	}
	msg := gotBody["message"]
	if !strings.Contains(msg, "requestId: req-1") || !strings.Contains(msg, "write a poem") {
		t.Fatalf("message = %q", msg)
	}
	if !strings.Contains(msg, "https://backend.example/api/agent/callback") {
		t.Fatalf("callback instruction missing: %q", msg)
	}
}

func TestDispatch_EmptyBodyAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, "t", "https://backend.example")
	runID, err := c.Dispatch(context.Background(), "req-1", "hi")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if runID != "" {
		t.Fatalf("runID = %q, want empty", runID)
	}
}

func TestDispatch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("hook offline"))
	}))
	defer srv.Close()

	c := New(srv.URL, "t", "https://backend.example")
	_, err := c.Dispatch(context.Background(), "req-1", "hi")
	if err == nil || !strings.Contains(err.Error(), "status 503") || !strings.Contains(err.Error(), "hook offline") {
		t.Fatalf("err = %v", err)
	}
}
