// JSON answer HTTP handlers.
//
//   - GET  /api/json/{id}  (public; serves the stored deliverable verbatim)
//   - POST /api/json/{id}  (hook bearer only; stores the deliverable,
//     records token usage, and triggers the purchase rule best-effort)
//
// The GET path writes the stored bytes unchanged so repeated reads are
// byte-identical and safely cacheable.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/1lyagent/agent-backend/internal/http/middleware"
	"github.com/1lyagent/agent-backend/internal/services"
)

// maxAnswerBytes caps stored deliverable payloads.
const maxAnswerBytes = 4 << 20

// JSONAnswer godoc
// @ID          getJSONAnswer
// @Summary     Fetch the stored JSON answer
// @Description Returns the stored deliverable verbatim with a one-hour public cache header.
// @Tags        Requests
// @Produce     json
// @Param       id  path  string  true  "Request ID"
// @Success     200  {object}  object
// @Header      200  {string}  Cache-Control "public, max-age=3600"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /api/json/{id} [get]
func (h *Handlers) JSONAnswer(c *gin.Context) {
	payload, err := h.reqSvc.JSONAnswer(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRequestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
		case errors.Is(err, services.ErrNoAnswer):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no answer stored")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

// StoreJSONAnswer godoc
// @ID          storeJSONAnswer
// @Summary     Store a JSON answer
// @Description Hook-token endpoint; stores the agent's deliverable, records token usage, and evaluates the purchase rule.
// @Tags        Requests
// @Accept      json
// @Produce     json
// @Param       id    path  string  true  "Request ID"
// @Param       body  body  object  true  "Arbitrary JSON deliverable; tokens_used is extracted when present"
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Invalid payload"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /api/json/{id} [post]
func (h *Handlers) StoreJSONAnswer(c *gin.Context) {
	id := c.Param("id")

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAnswerBytes))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}

	tokens, err := h.reqSvc.StoreJSONAnswer(c.Request.Context(), id, json.RawMessage(raw))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPayload):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrRequestNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "request not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	// Usage tracking and the purchase rule are best-effort relative to the
	// stored answer.
	if tokens > 0 {
		if err := h.tokens.Track(c.Request.Context(), tokens, &id, ""); err != nil {
			middleware.LoggerFrom(c).Error().Err(err).Msg("token tracking failed")
		}
	}
	if due, _, err := h.creditSvc.ShouldAutoBuy(c.Request.Context()); err == nil && due {
		// Detach from the request context; the purchase must not be
		// cancelled when the response is written.
		lg := middleware.LoggerFrom(c)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if _, err := h.creditSvc.AutoBuy(ctx); err != nil {
				lg.Error().Err(err).Msg("auto-buy failed")
			}
		}()
	}

	ok(c, http.StatusOK, gin.H{"stored": true, "tokens_used": tokens})
}
