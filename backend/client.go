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

// Package backend is the client of the external verification API that owns the service
// catalog, document verification and final submissions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/blnkfinance/vetflow/config"
	"github.com/blnkfinance/vetflow/internal/request"
	"github.com/blnkfinance/vetflow/model"
)

// VerifyResponse is the backend's answer to a document verification request.
type VerifyResponse struct {
	Reference string                 `json:"reference"`
	Status    string                 `json:"status"`
	Reason    string                 `json:"reason,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// SubmitResponse is the backend's receipt for a final submission. Some deployments answer
// with "id" instead of "reference".
type SubmitResponse struct {
	Reference string `json:"reference"`
	ID        string `json:"id"`
	Status    string `json:"status"`
}

// Ref returns whichever identifier the backend supplied.
func (r SubmitResponse) Ref() string {
	if r.Reference != "" {
		return r.Reference
	}
	return r.ID
}

// Client talks to the backend verification API with a bearer token.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	catalogRetries int
	retryInterval  time.Duration
}

// NewClient builds a client from the backend section of the configuration.
func NewClient(cfg config.BackendConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		token:          cfg.Token,
		httpClient:     &http.Client{Timeout: timeout},
		catalogRetries: cfg.CatalogRetries,
		retryInterval:  200 * time.Millisecond,
	}
}

// WithRetryInterval overrides the initial backoff between catalog attempts.
func (c *Client) WithRetryInterval(d time.Duration) *Client {
	c.retryInterval = d
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body *bytes.Buffer) (*http.Request, error) {
	var req *http.Request
	var err error
	if body == nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	}
	if err != nil {
		return nil, err
	}
	if auth := request.Bearer(c.token); auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// FetchServices loads the catalog with exponential backoff. The backend may answer with a
// bare array or with {"services": [...]}. Entries with unknown ids are dropped.
func (c *Client) FetchServices(ctx context.Context) (model.Catalog, error) {
	ctx, span := otel.Tracer("Backend client").Start(ctx, "Fetching service catalog")
	defer span.End()

	var raw json.RawMessage
	operation := func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/services", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		_, err = request.Call(c.httpClient, req, &raw)
		if err != nil {
			var statusErr *request.StatusError
			if errors.As(err, &statusErr) && !statusErr.Retryable() {
				return backoff.Permanent(err)
			}
			logrus.WithError(err).Debug("catalog fetch attempt failed")
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(maxInt(c.catalogRetries, 0)))
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "fetch services")
	}

	catalog, err := decodeCatalog(raw)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("catalog.size", len(catalog)))
	return catalog, nil
}

func decodeCatalog(raw json.RawMessage) (model.Catalog, error) {
	var services []model.VerificationService
	if err := json.Unmarshal(raw, &services); err != nil {
		var wrapped struct {
			Services []model.VerificationService `json:"services"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, errors.Wrap(err, "decode services")
		}
		services = wrapped.Services
	}

	catalog := make(model.Catalog, 0, len(services))
	seen := make(map[model.ServiceType]bool)
	for _, s := range services {
		if !s.ID.Valid() || seen[s.ID] {
			logrus.WithField("service_id", s.ID).Warn("ignoring unknown or duplicate catalog entry")
			continue
		}
		if s.Price.IsNegative() {
			logrus.WithField("service_id", s.ID).Warn("ignoring catalog entry with negative price")
			continue
		}
		seen[s.ID] = true
		catalog = append(catalog, s)
	}
	if len(catalog) == 0 {
		return nil, errors.New("backend returned an empty catalog")
	}
	return catalog, nil
}

// VerifyDocument uploads doc for serviceID as multipart form data.
func (c *Client) VerifyDocument(ctx context.Context, serviceID model.ServiceType, doc *model.Document) (*VerifyResponse, error) {
	ctx, span := otel.Tracer("Backend client").Start(ctx, "Verifying document",
		trace.WithAttributes(attribute.String("service.id", string(serviceID))))
	defer span.End()

	if doc == nil {
		return nil, errors.New("no document to verify")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("service_id", string(serviceID)); err != nil {
		return nil, errors.Wrap(err, "write service_id")
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename=%q`, doc.FileName))
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, errors.Wrap(err, "create document part")
	}
	if _, err := part.Write(doc.Data); err != nil {
		return nil, errors.Wrap(err, "write document")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart body")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/verify", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp VerifyResponse
	if _, err := request.Call(c.httpClient, req, &resp); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "verify document")
	}
	return &resp, nil
}

// CheckVerification polls the state of an earlier verification request.
func (c *Client) CheckVerification(ctx context.Context, reference string) (*VerifyResponse, error) {
	ctx, span := otel.Tracer("Backend client").Start(ctx, "Checking verification")
	defer span.End()

	req, err := c.newRequest(ctx, http.MethodGet, "/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	var resp VerifyResponse
	if _, err := request.Call(c.httpClient, req, &resp); err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(err, "check verification %s", reference)
	}
	return &resp, nil
}

// Submit posts the aggregated submission payload.
func (c *Client) Submit(ctx context.Context, payload *model.SubmissionPayload) (*SubmitResponse, error) {
	ctx, span := otel.Tracer("Backend client").Start(ctx, "Submitting verification request")
	defer span.End()

	body, err := request.ToJsonReq(payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode submission")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/submit", body)
	if err != nil {
		return nil, err
	}
	var resp SubmitResponse
	if _, err := request.Call(c.httpClient, req, &resp); err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "submit verification request")
	}
	return &resp, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
