package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/vetflow"
	apimodel "github.com/blnkfinance/vetflow/api/model"
)

// ProceedToPayment moves a session with at least one selected service to the payment step.
func (a Api) ProceedToPayment(c *gin.Context) {
	resp, err := a.vetflow.ProceedToPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitPayment settles the selection total with the payment method in the body.
//
// Responses:
// - 400 Bad Request: If the payment method is invalid.
// - 402 Payment Required: If the payment was declined. The body carries the outcome.
// - 409 Conflict: If a payment is already in flight, or the payment was cancelled meanwhile.
// - 200 OK: The successful outcome.
func (a Api) SubmitPayment(c *gin.Context) {
	var req apimodel.Payment
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidatePayment(); err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := a.vetflow.SubmitPayment(c.Request.Context(), c.Param("id"), req.ToPaymentMethod())
	if err != nil {
		if errors.Is(err, vetflow.ErrInFlight) {
			c.Header("Retry-After", "1")
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, outcome)
}

// CancelPayment returns the session to service selection.
func (a Api) CancelPayment(c *gin.Context) {
	resp, err := a.vetflow.CancelPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
