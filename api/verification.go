package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/vetflow/api/model"
	"github.com/blnkfinance/vetflow/internal/apierror"
)

// VerifyDocument sends a form document to a verification provider. A provider
// failure answers 502 with the failed check in the details.
func (a Api) VerifyDocument(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}
	var req apimodel.VerifyDocument
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateVerifyDocument(); err != nil {
		badRequest(c, err)
		return
	}

	check, err := a.vetflow.VerifyDocument(c.Request.Context(), c.Param("id"), serviceID, req.Index, req.Provider)
	if err != nil {
		var apiErr apierror.APIError
		if check != nil && errors.As(err, &apiErr) {
			apiErr.Details = check
			err = apiErr
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, check)
}

func (a Api) DocumentChecks(c *gin.Context) {
	checks, err := a.vetflow.DocumentChecks(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, checks)
}

// AttestDocument signs a verified document with the connected wallet.
func (a Api) AttestDocument(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}

	attestation, err := a.vetflow.AttestDocument(c.Request.Context(), c.Param("id"), serviceID, index)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attestation)
}
