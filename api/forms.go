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
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/vetflow/api/model"
	"github.com/blnkfinance/vetflow/model"
)

const multipartOverhead = 1 << 20

// serviceParam reads the :service route parameter. It writes the error response itself.
func serviceParam(c *gin.Context) (model.ServiceType, bool) {
	serviceID, err := apimodel.ParseServiceID(c.Param("service"))
	if err != nil {
		badRequest(c, err)
		return "", false
	}
	return serviceID, true
}

func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		badRequest(c, errors.New("index must be a non-negative number"))
		return 0, false
	}
	return index, true
}

// respondForm writes a form without the attached file contents; those are served
// by GetDocument.
func respondForm(c *gin.Context, form model.FormData) {
	model.StripDocumentData(form)
	c.JSON(http.StatusOK, form)
}

// GetForm returns the form of a selected service, empty when nothing was entered yet.
func (a Api) GetForm(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}

	resp, err := a.vetflow.GetForm(c.Request.Context(), c.Param("id"), serviceID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondForm(c, resp)
}

// UpdateField sets one field of a form. Every update is persisted.
//
// Responses:
// - 400 Bad Request: If the field is unknown or the value has the wrong type.
// - 200 OK: The updated form.
func (a Api) UpdateField(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}
	var req apimodel.UpdateField
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateUpdateField(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.vetflow.UpdateField(c.Request.Context(), c.Param("id"), serviceID, req.ToFieldPath(), req.Value)
	if err != nil {
		respondError(c, err)
		return
	}

	respondForm(c, resp)
}

func (a Api) AddListItem(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}
	var req apimodel.ListItem
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateListItem(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.vetflow.AddListItem(c.Request.Context(), c.Param("id"), serviceID, req.List)
	if err != nil {
		respondError(c, err)
		return
	}

	respondForm(c, resp)
}

func (a Api) RemoveListItem(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}
	var req apimodel.ListItem
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.ValidateListItem(); err != nil {
		badRequest(c, err)
		return
	}

	resp, err := a.vetflow.RemoveListItem(c.Request.Context(), c.Param("id"), serviceID, req.List, req.Index)
	if err != nil {
		respondError(c, err)
		return
	}

	respondForm(c, resp)
}

// AttachDocument stores the multipart "document" file on the form record at :index.
//
// Responses:
// - 400 Bad Request: If the file is missing, empty, too large or of a type the service does not accept.
// - 201 Created: The document metadata with its preview URL.
func (a Api) AttachDocument(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}

	// Multipart framing needs some room on top of the file itself.
	maxSize := a.vetflow.MaxDocumentSize()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)

	header, err := c.FormFile("document")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(c, fmt.Errorf("document exceeds the %d byte limit", maxSize))
			return
		}
		badRequest(c, errors.New("document file is required"))
		return
	}
	if header.Size > maxSize {
		badRequest(c, fmt.Errorf("document exceeds the %d byte limit", maxSize))
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		badRequest(c, err)
		return
	}

	// Browsers fall back to octet-stream; let the content be sniffed instead.
	contentType := header.Header.Get("Content-Type")
	if contentType == "application/octet-stream" {
		contentType = ""
	}

	doc, err := a.vetflow.AttachDocument(c.Request.Context(), c.Param("id"), serviceID, index,
		header.Filename, contentType, data)
	if err != nil {
		respondError(c, err)
		return
	}

	meta := *doc
	meta.Data = nil
	c.JSON(http.StatusCreated, meta)
}

// GetDocument serves the attached file itself for previews.
func (a Api) GetDocument(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}

	doc, err := a.vetflow.GetDocument(c.Request.Context(), c.Param("id"), serviceID, index)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.FileName))
	c.Data(http.StatusOK, doc.ContentType, doc.Data)
}

// MarkFormComplete records the form as complete once every required field is filled.
func (a Api) MarkFormComplete(c *gin.Context) {
	serviceID, ok := serviceParam(c)
	if !ok {
		return
	}

	completed, err := a.vetflow.MarkFormComplete(c.Request.Context(), c.Param("id"), serviceID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"completed": completed.Sorted()})
}

func (a Api) CompletedForms(c *gin.Context) {
	completed, err := a.vetflow.CompletedForms(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"completed": completed.Sorted()})
}
