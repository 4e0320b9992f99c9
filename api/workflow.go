/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/vetflow/api/model"
)

// GetReadiness reports whether every selected service has a completed form.
func (a Api) GetReadiness(c *gin.Context) {
	resp, err := a.vetflow.Readiness(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// StreamReadiness pushes a "readiness" server-sent event every time the selection or
// the completed forms change, until the client goes away.
func (a Api) StreamReadiness(c *gin.Context) {
	updates, cancel, err := a.vetflow.SubscribeReadiness(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		select {
		case r, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("readiness", r)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ProceedToFinalSubmission moves payment_success to final_submission. It is refused
// until every selected form is complete.
//
// Responses:
// - 400 Bad Request: If some selected form is not complete. The body lists them.
// - 409 Conflict: If the session is not in payment_success.
// - 200 OK: The session.
func (a Api) ProceedToFinalSubmission(c *gin.Context) {
	resp, err := a.vetflow.ProceedToFinalSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) BackToPaymentSuccess(c *gin.Context) {
	resp, err := a.vetflow.BackToPaymentSuccess(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Submit sends the collected forms to the backend. Consent must be given in the body.
//
// Responses:
// - 400 Bad Request: If consent was not given.
// - 409 Conflict: If the session is not in final_submission or a submission is in flight.
// - 502 Bad Gateway: If the backend failed. Nothing was cleared and the call can be retried.
// - 201 Created: The submission receipt.
func (a Api) Submit(c *gin.Context) {
	var req apimodel.Submit
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	receipt, err := a.vetflow.Submit(c.Request.Context(), c.Param("id"), req.ConsentGiven)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}
