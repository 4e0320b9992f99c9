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
	"net/http"

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/vetflow/api/model"
	"github.com/blnkfinance/vetflow/model"
)

// StartSession starts a session under the id in the route, or returns it when it
// already exists. The service catalog is frozen for the session here.
//
// Responses:
// - 400 Bad Request: If the session id is malformed.
// - 200 OK: The session.
func (a Api) StartSession(c *gin.Context) {
	resp, err := a.vetflow.StartSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetSession retrieves a session by its id.
//
// Responses:
// - 404 Not Found: If the session was never started.
// - 200 OK: The session.
func (a Api) GetSession(c *gin.Context) {
	resp, err := a.vetflow.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteSession removes a session together with its selection and forms.
func (a Api) DeleteSession(c *gin.Context) {
	if err := a.vetflow.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Session deleted successfully"})
}

func (a Api) GetCatalog(c *gin.Context) {
	resp, err := a.vetflow.Catalog(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

type selectionResponse struct {
	Selected []model.ServiceType `json:"selected"`
	Total    string              `json:"total"`
}

func (a Api) selection(c *gin.Context, sel model.Selection) {
	total, err := a.vetflow.Total(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, selectionResponse{Selected: sel.Sorted(), Total: total.StringFixed(2)})
}

// GetSelection returns the selected services with their total.
func (a Api) GetSelection(c *gin.Context) {
	sel, err := a.vetflow.GetSelection(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	a.selection(c, sel)
}

// ToggleService adds the service to the selection, or removes it when already selected.
//
// Responses:
// - 400 Bad Request: If the service id is missing or unknown.
// - 409 Conflict: If the session is no longer selecting services.
// - 200 OK: The new selection and total.
func (a Api) ToggleService(c *gin.Context) {
	var req apimodel.ToggleService
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateToggleService(); err != nil {
		badRequest(c, err)
		return
	}

	sel, err := a.vetflow.ToggleService(c.Request.Context(), c.Param("id"), model.ServiceType(req.ServiceID))
	if err != nil {
		respondError(c, err)
		return
	}
	a.selection(c, sel)
}
