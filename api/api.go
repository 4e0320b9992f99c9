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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/vetflow"
	"github.com/blnkfinance/vetflow/api/middleware"
	"github.com/blnkfinance/vetflow/config"
	"github.com/blnkfinance/vetflow/internal/apierror"
)

type Api struct {
	vetflow *vetflow.Vetflow
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.GET("/sessions/:id", a.GetSession)
	router.PUT("/sessions/:id", a.StartSession)
	router.DELETE("/sessions/:id", a.DeleteSession)
	router.GET("/sessions/:id/catalog", a.GetCatalog)

	router.GET("/sessions/:id/selection", a.GetSelection)
	router.POST("/sessions/:id/selection/toggle", a.ToggleService)

	router.POST("/sessions/:id/payment/proceed", a.ProceedToPayment)
	router.POST("/sessions/:id/payment", a.SubmitPayment)
	router.POST("/sessions/:id/payment/cancel", a.CancelPayment)

	router.GET("/sessions/:id/forms/:service", a.GetForm)
	router.PUT("/sessions/:id/forms/:service/fields", a.UpdateField)
	router.POST("/sessions/:id/forms/:service/items", a.AddListItem)
	router.DELETE("/sessions/:id/forms/:service/items", a.RemoveListItem)
	router.POST("/sessions/:id/forms/:service/documents/:index", a.AttachDocument)
	router.GET("/sessions/:id/forms/:service/documents/:index", a.GetDocument)
	router.POST("/sessions/:id/forms/:service/complete", a.MarkFormComplete)
	router.GET("/sessions/:id/forms", a.CompletedForms)

	router.GET("/sessions/:id/readiness", a.GetReadiness)
	router.GET("/sessions/:id/readiness/stream", a.StreamReadiness)
	router.POST("/sessions/:id/final", a.ProceedToFinalSubmission)
	router.POST("/sessions/:id/final/back", a.BackToPaymentSuccess)
	router.POST("/sessions/:id/submit", a.Submit)

	router.POST("/sessions/:id/forms/:service/verify", a.VerifyDocument)
	router.GET("/sessions/:id/checks", a.DocumentChecks)
	router.POST("/sessions/:id/forms/:service/documents/:index/attest", a.AttestDocument)

	return a.router
}

func NewAPI(v *vetflow.Vetflow) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.MaxMultipartMemory = v.MaxDocumentSize()
	if conf.EnableTelemetry {
		r.Use(otelgin.Middleware(conf.ProjectName))
	}
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{vetflow: v, router: r}
}

// respondError writes err with the status its error code maps to.
func respondError(c *gin.Context, err error) {
	var apiErr apierror.APIError
	if !errors.As(err, &apiErr) {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"error": apiErr.Message, "code": apiErr.Code}
	if apiErr.Details != nil {
		body["details"] = apiErr.Details
	}
	if apiErr.Retryable() {
		body["retryable"] = true
	}
	c.JSON(apierror.MapErrorToHTTPStatus(apiErr), body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apierror.ErrValidation})
}
