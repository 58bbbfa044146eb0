// Request HTTP handlers.
//
// This file exposes the request lifecycle endpoints:
//   - POST /api/agent/request    (rate-limited intake)
//   - GET  /api/status/{id}      (public poll)
//   - POST /api/agent/callback   (trusted classification verdict)
//   - GET  /api/answer/{id}      (delivery-url proxy)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/1lyagent/agent-backend/internal/domain"
	"github.com/1lyagent/agent-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// RequestService defines request lifecycle operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type RequestService interface {
	// Submit validates and stores a prompt, then dispatches classification.
	Submit(ctx context.Context, prompt string) (*domain.Request, error)
	// ApplyCallback records the agent's classification verdict.
	ApplyCallback(ctx context.Context, cb services.Callback) error
	// Status returns the public poll view.
	Status(ctx context.Context, id string) (*services.StatusView, error)
	// Answer proxies the request's delivery URL and returns its payload.
	Answer(ctx context.Context, id string) (json.RawMessage, error)
	// StoreJSONAnswer persists a deliverable and returns tokens_used.
	StoreJSONAnswer(ctx context.Context, id string, payload json.RawMessage) (int64, error)
	// JSONAnswer returns the stored deliverable unchanged.
	JSONAnswer(ctx context.Context, id string) (json.RawMessage, error)
}

// CreditService defines credit ledger operations consumed by HTTP handlers.
type CreditService interface {
	State(ctx context.Context) (*services.StateView, error)
	QueueSponsorship(ctx context.Context, message string, amount decimal.Decimal, sponsorType, caller, key string) (*domain.CreditPurchase, error)
	ShouldAutoBuy(ctx context.Context) (bool, string, error)
	AutoBuy(ctx context.Context) (*services.AutoBuyResult, error)
}

// TokenTracker records token consumption reports.
type TokenTracker interface {
	Track(ctx context.Context, tokens int64, requestID *string, model string) error
}

// InfluenceService executes paid engagement orders.
type InfluenceService interface {
	Pricing() map[string]decimal.Decimal
	Execute(ctx context.Context, order services.InfluenceOrder) (*services.InfluenceResult, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for requests, credit, activity, and
// influence. It depends on abstract service interfaces to keep transport
// concerns separate from business logic; the raw DB handle is used only for
// cheap ETag pre-checks on the activity feed.
type Handlers struct {
	db        *gorm.DB
	reqSvc    RequestService
	creditSvc CreditService
	tokens    TokenTracker
	inflSvc   InfluenceService
}

// New constructs a Handlers instance bound to the given services.
func New(db *gorm.DB, reqSvc RequestService, creditSvc CreditService, tokens TokenTracker, inflSvc InfluenceService) *Handlers {
	return &Handlers{db: db, reqSvc: reqSvc, creditSvc: creditSvc, tokens: tokens, inflSvc: inflSvc}
}

//
// DTOs
//

// SubmitRequestBody is the JSON payload for submitting a prompt.
type SubmitRequestBody struct {
	Prompt string `json:"prompt" example:"Write a haiku about autonomous agents"`
}

//
// Handlers
//

// SubmitRequest godoc
// @ID          submitRequest
// @Summary     Submit a prompt
// @Description Accepts a prompt, stores it, and dispatches classification to the agent. Poll /api/status/{id} for the verdict.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.SubmitRequestBody  true  "Prompt payload"
// @Success     201  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse "Dispatch failed"
// @Router      /api/agent/request [post]
func (h *Handlers) SubmitRequest(c *gin.Context) {
	var req SubmitRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	r, err := h.reqSvc.Submit(c.Request.Context(), strings.TrimSpace(req.Prompt))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyPrompt), errors.Is(err, services.ErrPromptTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, gin.H{"id": r.ID, "status": r.Status})
}

// RequestStatus godoc
// @ID          requestStatus
// @Summary     Poll a request
// @Description Returns the current status, classification, price, and payment link of a request.
// @Tags        Requests
// @Produce     json
// @Param       id  path  string  true  "Request ID"
// @Success     200  {object}  handlers.Envelope
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /api/status/{id} [get]
func (h *Handlers) RequestStatus(c *gin.Context) {
	view, err := h.reqSvc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRequestNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, view)
}

// ClassifyCallback godoc
// @ID          classifyCallback
// @Summary     Apply a classification verdict
// @Description Trusted endpoint; the agent reports classification, price, and optional payment link or deliverable.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Param       body  body  services.Callback  true  "Verdict payload"
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /api/agent/callback [post]
func (h *Handlers) ClassifyCallback(c *gin.Context) {
	var cb services.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if err := h.reqSvc.ApplyCallback(c.Request.Context(), cb); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCallback):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrRequestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, gin.H{"applied": true})
}

// RequestAnswer godoc
// @ID          requestAnswer
// @Summary     Fetch a request's answer
// @Description Fetches the stored delivery URL server-side and returns its JSON payload, avoiding browser CORS limits.
// @Tags        Requests
// @Produce     json
// @Param       id  path  string  true  "Request ID"
// @Success     200  {object}  handlers.Envelope
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Failure     500  {object}  handlers.ErrorResponse "Fetch failed"
// @Router      /api/answer/{id} [get]
func (h *Handlers) RequestAnswer(c *gin.Context) {
	payload, err := h.reqSvc.Answer(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRequestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
		case errors.Is(err, services.ErrNoAnswer):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no answer available yet")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, payload)
}
