// Package services – RequestService
//
// Orchestrates the request lifecycle: intake and validation, classification
// dispatch to the agent runtime, the trusted classification callback (the
// sole writer of classification fields), the public status poll, and answer
// delivery including the server-side delivery-url proxy.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/domain"
	"github.com/1lyagent/agent-backend/internal/repo"
)

// maxPromptRunes caps accepted prompt length.
const maxPromptRunes = 2000

// Dispatcher hands a prompt to the agent runtime for classification.
// Implemented by the agenthook client; tests substitute a fake.
type Dispatcher interface {
	Dispatch(ctx context.Context, requestID, prompt string) (runID string, err error)
}

// Callback carries the agent's classification verdict for one request.
type Callback struct {
	RequestID      string          `json:"request_id"`
	Classification string          `json:"classification"`
	PriceUSDC      decimal.Decimal `json:"price_usdc"`
	PaymentLink    string          `json:"payment_link,omitempty"`
	Deliverable    string          `json:"deliverable,omitempty"`
	DeliveryURL    string          `json:"delivery_url,omitempty"`
}

// StatusView is the public poll projection of a request.
type StatusView struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Classification string          `json:"classification,omitempty"`
	PriceUSDC      decimal.Decimal `json:"price_usdc"`
	PaymentLink    string          `json:"payment_link,omitempty"`
	HasDeliverable bool            `json:"has_deliverable"`
}

// RequestService manages request intake and fulfilment.
type RequestService struct {
	DB    *gorm.DB
	Sink  *Sink
	Agent Dispatcher

	// Fetch retrieves delivery URLs for the answer proxy.
	Fetch *http.Client
}

// NewRequestService constructs a RequestService.
func NewRequestService(db *gorm.DB, sink *Sink, agent Dispatcher) *RequestService {
	return &RequestService{
		DB:    db,
		Sink:  sink,
		Agent: agent,
		Fetch: &http.Client{Timeout: 15 * time.Second},
	}
}

// Submit validates the prompt, creates a NEW request, and dispatches it to
// the agent for classification. Dispatch failure marks the request FAILED
// and surfaces the upstream error.
func (s *RequestService) Submit(ctx context.Context, prompt string) (*domain.Request, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "Submit")
	defer span.End()

	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if utf8.RuneCountInString(prompt) > maxPromptRunes {
		return nil, ErrPromptTooLong
	}

	r, err := repo.CreateRequest(ctx, s.DB, prompt)
	if err != nil {
		return nil, err
	}

	s.Sink.Log(domain.EventRequestReceived, TruncatePrompt(prompt, 0), &r.ID)

	if _, err := s.Agent.Dispatch(ctx, r.ID, prompt); err != nil {
		_ = repo.MarkRequestFailed(ctx, s.DB, r.ID)
		s.Sink.Log(domain.EventError, "classification dispatch failed: "+err.Error(), &r.ID)
		return nil, fmt.Errorf("dispatch classification: %w", err)
	}
	return r, nil
}

// ApplyCallback applies the agent's verdict. A payment link moves the
// request to LINK_CREATED; otherwise it is fulfilled immediately.
func (s *RequestService) ApplyCallback(ctx context.Context, cb Callback) error {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "ApplyCallback",
		trace.WithAttributes(attribute.String("classification", cb.Classification)),
	)
	defer span.End()

	if cb.RequestID == "" || cb.Classification == "" {
		return ErrInvalidCallback
	}
	if _, err := repo.GetRequest(ctx, s.DB, cb.RequestID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRequestNotFound
		}
		return err
	}

	status := domain.RequestStatusFulfilled
	if cb.PaymentLink != "" {
		status = domain.RequestStatusLinkCreated
	}

	err := repo.ApplyClassification(ctx, s.DB, cb.RequestID, repo.ClassificationUpdate{
		Classification: cb.Classification,
		PriceUSDC:      cb.PriceUSDC,
		PaymentLink:    cb.PaymentLink,
		Deliverable:    cb.Deliverable,
		DeliveryURL:    cb.DeliveryURL,
		Status:         status,
	})
	if err != nil {
		return err
	}

	s.Sink.Log(domain.EventClassification,
		fmt.Sprintf("classified as %s ($%s)", cb.Classification, cb.PriceUSDC.StringFixed(2)),
		&cb.RequestID)
	if cb.PaymentLink != "" {
		s.Sink.Log(domain.EventLinkCreated,
			fmt.Sprintf("payment link created for $%s", cb.PriceUSDC.StringFixed(2)), &cb.RequestID)
	} else {
		s.Sink.Log(domain.EventFulfilled, "request fulfilled", &cb.RequestID)
	}
	return nil
}

// Status returns the public poll view.
func (s *RequestService) Status(ctx context.Context, id string) (*StatusView, error) {
	r, err := repo.GetRequest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return &StatusView{
		ID:             r.ID,
		Status:         r.Status,
		Classification: r.Classification,
		PriceUSDC:      r.PriceUSDC,
		PaymentLink:    r.PaymentLink,
		HasDeliverable: r.Deliverable != "" || len(r.JSONAnswer) > 0,
	}, nil
}

// Answer fetches the request's delivery URL server-side and returns its
// JSON payload, working around CORS restrictions on the storage host.
func (s *RequestService) Answer(ctx context.Context, id string) (json.RawMessage, error) {
	r, err := repo.GetRequest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if r.DeliveryURL == "" {
		if len(r.JSONAnswer) > 0 {
			return json.RawMessage(r.JSONAnswer), nil
		}
		return nil, ErrNoAnswer
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.DeliveryURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Fetch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch delivery url: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch delivery url: status %d", resp.StatusCode)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("delivery url returned non-JSON payload")
	}
	return json.RawMessage(raw), nil
}

// StoreJSONAnswer persists the agent's JSON deliverable, marks the request
// FULFILLED, and returns the tokens_used count embedded in the payload (0
// when absent) so the caller can record usage.
func (s *RequestService) StoreJSONAnswer(ctx context.Context, id string, payload json.RawMessage) (int64, error) {
	tr := otel.Tracer("services/RequestService")
	ctx, span := tr.Start(ctx, "StoreJSONAnswer")
	defer span.End()

	if len(payload) == 0 || !json.Valid(payload) {
		return 0, ErrInvalidPayload
	}
	if _, err := repo.GetRequest(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, ErrRequestNotFound
		}
		return 0, err
	}
	if err := repo.StoreJSONAnswer(ctx, s.DB, id, datatypes.JSON(payload)); err != nil {
		return 0, err
	}
	s.Sink.Log(domain.EventFulfilled, "json answer stored", &id)

	var meta struct {
		TokensUsed int64 `json:"tokens_used"`
	}
	_ = json.Unmarshal(payload, &meta)
	return meta.TokensUsed, nil
}

// JSONAnswer returns the stored payload unchanged. Returns ErrNoAnswer when
// nothing has been stored yet.
func (s *RequestService) JSONAnswer(ctx context.Context, id string) (json.RawMessage, error) {
	r, err := repo.GetRequest(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if len(r.JSONAnswer) == 0 {
		return nil, ErrNoAnswer
	}
	return json.RawMessage(r.JSONAnswer), nil
}
