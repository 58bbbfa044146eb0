// Credit HTTP handlers.
//
//   - GET  /api/credit/state     (public balance and usage view)
//   - POST /api/credit/queue     (trusted; queue a sponsorship)
//   - GET  /api/credit/auto-buy  (trusted; dry-run decision)
//   - POST /api/credit/auto-buy  (trusted; execute the purchase rule)
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/1lyagent/agent-backend/internal/http/middleware"
	"github.com/1lyagent/agent-backend/internal/services"
)

// QueueSponsorshipBody is the JSON payload for queueing a sponsorship.
type QueueSponsorshipBody struct {
	Message     string          `json:"message" example:"Keep going little agent!"`
	AmountUSDC  decimal.Decimal `json:"amount_usdc" swaggertype:"string" example:"2.50"`
	SponsorType string          `json:"sponsor_type" example:"human"`
}

// CreditState godoc
// @ID          creditState
// @Summary     Current credit state
// @Description Returns the balance, token counters, purchase metadata, and the derived low-credit flag.
// @Tags        Credit
// @Produce     json
// @Success     200  {object}  handlers.Envelope
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /api/credit/state [get]
func (h *Handlers) CreditState(c *gin.Context) {
	view, err := h.creditSvc.State(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, view)
}

// QueueSponsorship godoc
// @ID          queueSponsorship
// @Summary     Queue a sponsorship
// @Description Trusted endpoint; records a sponsored credit purchase and credits the balance. Retries with the same Idempotency-Key are deduplicated.
// @Tags        Credit
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false "Deduplication key"
// @Param       body  body  handlers.QueueSponsorshipBody  true  "Sponsorship payload"
// @Success     201  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     409  {object}  handlers.ErrorResponse "Duplicate or conflict"
// @Router      /api/credit/queue [post]
func (h *Handlers) QueueSponsorship(c *gin.Context) {
	var req QueueSponsorshipBody
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	caller := middleware.CallerKind(c)
	key, _ := middleware.GetIdempotencyKey(c)

	p, err := h.creditSvc.QueueSponsorship(c.Request.Context(),
		strings.TrimSpace(req.Message), req.AmountUSDC, req.SponsorType, caller, key)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrDuplicateSponsorship):
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		case errors.Is(err, services.ErrStateConflict):
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, p)
}

// AutoBuyDryRun godoc
// @ID          autoBuyDryRun
// @Summary     Evaluate the purchase rule
// @Description Trusted endpoint; reports whether an auto-purchase is currently due, without side effects.
// @Tags        Credit
// @Produce     json
// @Success     200  {object}  handlers.Envelope
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /api/credit/auto-buy [get]
func (h *Handlers) AutoBuyDryRun(c *gin.Context) {
	due, reason, err := h.creditSvc.ShouldAutoBuy(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"should_buy": due, "reason": reason})
}

// AutoBuy godoc
// @ID          autoBuy
// @Summary     Execute the purchase rule
// @Description Trusted endpoint; buys the fixed top-up amount when the rule trips. Returns 402 when the balance cannot cover the purchase.
// @Tags        Credit
// @Produce     json
// @Success     200  {object}  handlers.Envelope
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     402  {object}  handlers.ErrorResponse "Insufficient balance"
// @Failure     409  {object}  handlers.ErrorResponse "State conflict"
// @Failure     500  {object}  handlers.ErrorResponse "Purchase failed"
// @Router      /api/credit/auto-buy [post]
func (h *Handlers) AutoBuy(c *gin.Context) {
	res, err := h.creditSvc.AutoBuy(c.Request.Context())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInsufficientBalance):
			fail(c, http.StatusPaymentRequired, ErrCodePaymentRequired, err.Error())
		case errors.Is(err, services.ErrStateConflict):
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodePurchaseFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, res)
}
