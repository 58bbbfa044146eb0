// Influence HTTP handlers.
//
//   - GET  /api/influence  (public price list)
//   - POST /api/influence  (agent-secret only; dispatch a paid action)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/1lyagent/agent-backend/internal/services"
)

// InfluencePricing godoc
// @ID          influencePricing
// @Summary     Influence price list
// @Description Returns the fixed USD price for each engagement service.
// @Tags        Influence
// @Produce     json
// @Success     200  {object}  handlers.Envelope
// @Router      /api/influence [get]
func (h *Handlers) InfluencePricing(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"pricing": h.inflSvc.Pricing()})
}

// DispatchInfluence godoc
// @ID          dispatchInfluence
// @Summary     Dispatch an influence order
// @Description Agent-only endpoint; executes the ordered engagement actions on the platform and records a payment.
// @Tags        Influence
// @Accept      json
// @Produce     json
// @Param       body  body  services.InfluenceOrder  true  "Order payload"
// @Success     200  {object}  handlers.Envelope
// @Failure     400  {object}  handlers.ErrorResponse "Unknown service"
// @Failure     401  {object}  handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse "Platform error"
// @Router      /api/influence [post]
func (h *Handlers) DispatchInfluence(c *gin.Context) {
	var order services.InfluenceOrder
	if err := c.ShouldBindJSON(&order); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.inflSvc.Execute(c.Request.Context(), order)
	if err != nil {
		if errors.Is(err, services.ErrInvalidService) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}
