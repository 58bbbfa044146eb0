package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/1lyagent/agent-backend/internal/domain"
)

type fakeDispatcher struct {
	err      error
	lastID   string
	lastText string
	calls    int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, requestID, prompt string) (string, error) {
	f.calls++
	f.lastID = requestID
	f.lastText = prompt
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

func newRequestSvc(t *testing.T, agent Dispatcher) (*RequestService, func() context.Context) {
	t.Helper()
	db := newTestDB(t)
	svc := NewRequestService(db, newTestSink(t, db), agent)
	return svc, context.Background
}

func TestSubmit_Validation(t *testing.T) {
	svc, ctx := newRequestSvc(t, &fakeDispatcher{})

	if _, err := svc.Submit(ctx(), ""); !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("empty prompt: want ErrEmptyPrompt, got %v", err)
	}
	long := strings.Repeat("a", 2001)
	if _, err := svc.Submit(ctx(), long); !errors.Is(err, ErrPromptTooLong) {
		t.Fatalf("long prompt: want ErrPromptTooLong, got %v", err)
	}
	// Rune count, not byte count: 2000 multi-byte runes are accepted.
	wide := strings.Repeat("ж", 2000)
	if _, err := svc.Submit(ctx(), wide); err != nil {
		t.Fatalf("2000-rune prompt rejected: %v", err)
	}
}

func TestSubmit_DispatchesAndCreatesNew(t *testing.T) {
	agent := &fakeDispatcher{}
	svc, ctx := newRequestSvc(t, agent)

	r, err := svc.Submit(ctx(), "write me a haiku")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if r.Status != domain.RequestStatusNew {
		t.Fatalf("status = %q, want NEW", r.Status)
	}
	if agent.calls != 1 || agent.lastID != r.ID || agent.lastText != "write me a haiku" {
		t.Fatalf("dispatcher saw id=%q text=%q calls=%d", agent.lastID, agent.lastText, agent.calls)
	}
}

func TestSubmit_DispatchFailureMarksFailed(t *testing.T) {
	agent := &fakeDispatcher{err: errors.New("agent offline")}
	svc, ctx := newRequestSvc(t, agent)

	_, err := svc.Submit(ctx(), "hello")
	if err == nil || !strings.Contains(err.Error(), "agent offline") {
		t.Fatalf("want wrapped dispatch error, got %v", err)
	}

	var r domain.Request
	if err := svc.DB.First(&r).Error; err != nil {
		t.Fatalf("request row missing: %v", err)
	}
	if r.Status != domain.RequestStatusFailed {
		t.Fatalf("status = %q, want FAILED", r.Status)
	}
}

func TestApplyCallback(t *testing.T) {
	agent := &fakeDispatcher{}
	svc, ctx := newRequestSvc(t, agent)

	r, err := svc.Submit(ctx(), "make a meme")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	t.Run("invalid", func(t *testing.T) {
		if err := svc.ApplyCallback(ctx(), Callback{RequestID: "", Classification: "FREE"}); !errors.Is(err, ErrInvalidCallback) {
			t.Fatalf("want ErrInvalidCallback, got %v", err)
		}
		if err := svc.ApplyCallback(ctx(), Callback{RequestID: r.ID}); !errors.Is(err, ErrInvalidCallback) {
			t.Fatalf("want ErrInvalidCallback, got %v", err)
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		err := svc.ApplyCallback(ctx(), Callback{RequestID: "nope", Classification: "FREE"})
		if !errors.Is(err, ErrRequestNotFound) {
			t.Fatalf("want ErrRequestNotFound, got %v", err)
		}
	})

	t.Run("payment link moves to LINK_CREATED", func(t *testing.T) {
		err := svc.ApplyCallback(ctx(), Callback{
			RequestID:      r.ID,
			Classification: "PAID",
			PriceUSDC:      decimal.RequireFromString("1.50"),
			PaymentLink:    "https://pay.example/abc",
		})
		if err != nil {
			t.Fatalf("ApplyCallback: %v", err)
		}
		view, err := svc.Status(ctx(), r.ID)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if view.Status != domain.RequestStatusLinkCreated || view.PaymentLink == "" {
			t.Fatalf("view = %+v", view)
		}
		if !view.PriceUSDC.Equal(decimal.RequireFromString("1.50")) {
			t.Fatalf("price = %s", view.PriceUSDC)
		}
	})

	t.Run("no link fulfils immediately", func(t *testing.T) {
		r2, _ := svc.Submit(ctx(), "free question")
		err := svc.ApplyCallback(ctx(), Callback{
			RequestID:      r2.ID,
			Classification: "FREE",
			Deliverable:    "the answer is 42",
		})
		if err != nil {
			t.Fatalf("ApplyCallback: %v", err)
		}
		view, _ := svc.Status(ctx(), r2.ID)
		if view.Status != domain.RequestStatusFulfilled || !view.HasDeliverable {
			t.Fatalf("view = %+v", view)
		}
	})
}

func TestStatus_NotFound(t *testing.T) {
	svc, ctx := newRequestSvc(t, &fakeDispatcher{})
	if _, err := svc.Status(ctx(), "missing"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("want ErrRequestNotFound, got %v", err)
	}
}

func TestStoreJSONAnswer(t *testing.T) {
	svc, ctx := newRequestSvc(t, &fakeDispatcher{})
	r, _ := svc.Submit(ctx(), "count my tokens")

	t.Run("rejects bad payloads", func(t *testing.T) {
		if _, err := svc.StoreJSONAnswer(ctx(), r.ID, nil); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("nil payload: %v", err)
		}
		if _, err := svc.StoreJSONAnswer(ctx(), r.ID, json.RawMessage("{broken")); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("broken payload: %v", err)
		}
		if _, err := svc.StoreJSONAnswer(ctx(), "missing", json.RawMessage(`{}`)); !errors.Is(err, ErrRequestNotFound) {
			t.Fatalf("missing request: %v", err)
		}
	})

	t.Run("stores and extracts tokens_used", func(t *testing.T) {
		payload := json.RawMessage(`{"answer":"done","tokens_used":321}`)
		tokens, err := svc.StoreJSONAnswer(ctx(), r.ID, payload)
		if err != nil {
			t.Fatalf("StoreJSONAnswer: %v", err)
		}
		if tokens != 321 {
			t.Fatalf("tokens = %d, want 321", tokens)
		}

		got, err := svc.JSONAnswer(ctx(), r.ID)
		if err != nil {
			t.Fatalf("JSONAnswer: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("stored payload changed: %s", got)
		}
		// Second read returns identical bytes.
		again, _ := svc.JSONAnswer(ctx(), r.ID)
		if !bytes.Equal(got, again) {
			t.Fatalf("payload not byte-stable across reads")
		}
	})
}

func TestJSONAnswer_NoAnswer(t *testing.T) {
	svc, ctx := newRequestSvc(t, &fakeDispatcher{})
	r, _ := svc.Submit(ctx(), "anything")
	if _, err := svc.JSONAnswer(ctx(), r.ID); !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("want ErrNoAnswer, got %v", err)
	}
}

func TestAnswer_FetchesDeliveryURL(t *testing.T) {
	payload := `{"result":"delivered"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	svc, ctx := newRequestSvc(t, &fakeDispatcher{})
	r, _ := svc.Submit(ctx(), "fetch it")
	err := svc.ApplyCallback(ctx(), Callback{
		RequestID:      r.ID,
		Classification: "PAID",
		DeliveryURL:    srv.URL + "/answer.json",
	})
	if err != nil {
		t.Fatalf("ApplyCallback: %v", err)
	}

	got, err := svc.Answer(ctx(), r.ID)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if string(got) != payload {
		t.Fatalf("answer = %s", got)
	}
}

func TestAnswer_UpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gone":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte("<html>not json</html>"))
		}
	}))
	defer srv.Close()

	svc, ctx := newRequestSvc(t, &fakeDispatcher{})

	mk := func(path string) string {
		r, _ := svc.Submit(ctx(), "q")
		if err := svc.ApplyCallback(ctx(), Callback{
			RequestID: r.ID, Classification: "PAID", DeliveryURL: srv.URL + path,
		}); err != nil {
			t.Fatalf("callback: %v", err)
		}
		return r.ID
	}

	if _, err := svc.Answer(ctx(), mk("/gone")); err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("want status error, got %v", err)
	}
	if _, err := svc.Answer(ctx(), mk("/html")); err == nil || !strings.Contains(err.Error(), "non-JSON") {
		t.Fatalf("want non-JSON error, got %v", err)
	}
}

func TestAnswer_FallsBackToStoredJSON(t *testing.T) {
	svc, ctx := newRequestSvc(t, &fakeDispatcher{})
	r, _ := svc.Submit(ctx(), "stored answer")
	if _, err := svc.StoreJSONAnswer(ctx(), r.ID, json.RawMessage(`{"x":1}`)); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := svc.Answer(ctx(), r.ID)
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if string(got) != `{"x":1}` {
		t.Fatalf("answer = %s", got)
	}
}
