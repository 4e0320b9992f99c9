package kyc

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/blnkfinance/vetflow/internal/request"
)

type configurableProviderAdapter struct {
	config     ProviderConfig
	httpClient *http.Client
}

func newConfigurableProviderAdapter(config ProviderConfig) ProviderAdapter {
	timeout := time.Duration(config.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &configurableProviderAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *configurableProviderAdapter) Name() string {
	return p.config.Name
}

func (p *configurableProviderAdapter) VerifyDocument(ctx context.Context, dr DocumentRequest) (*VerificationResult, error) {
	if dr.Document == nil {
		return nil, ErrNoDocument
	}

	endpoint := replacePlaceholders(p.config.Endpoints.VerifyDocument, map[string]string{
		"session_id": dr.SessionID,
		"service_id": string(dr.ServiceID),
	})

	field := p.config.RequestConfig.DocumentField
	if field == "" {
		field = "file"
	}
	body := map[string]interface{}{
		"session_id":   dr.SessionID,
		"service_id":   string(dr.ServiceID),
		"file_name":    dr.Document.FileName,
		"content_type": dr.Document.ContentType,
		"sha256":       dr.Document.SHA256,
		field:          base64.StdEncoding.EncodeToString(dr.Document.Data),
	}
	for k, v := range p.config.RequestConfig.StaticFields {
		body[k] = envValue(v)
	}

	payload, err := request.ToJsonReq(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.addAuth(req)

	return p.do(req)
}

func (p *configurableProviderAdapter) CheckStatus(ctx context.Context, providerRef string) (*VerificationResult, error) {
	endpoint := replacePlaceholders(p.config.Endpoints.GetStatus, map[string]string{
		"provider_ref": providerRef,
		"check_id":     providerRef,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.addAuth(req)

	return p.do(req)
}

func (p *configurableProviderAdapter) do(req *http.Request) (*VerificationResult, error) {
	var data map[string]interface{}
	if _, err := request.Call(p.httpClient, req, &data); err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.config.Name, err)
	}
	return p.parseResponse(data), nil
}

func (p *configurableProviderAdapter) addAuth(req *http.Request) {
	switch strings.ToLower(p.config.AuthType) {
	case "basic":
		req.Header.Set("Authorization", "Basic "+request.BasicAuth(p.config.APIKey, p.config.APISecret))
	case "header":
		header := p.config.AuthHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, p.config.APIKey)
	default:
		req.Header.Set("Authorization", request.Bearer(p.config.APIKey))
	}
}

func replacePlaceholders(endpoint string, values map[string]string) string {
	result := endpoint
	for k, v := range values {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

func (p *configurableProviderAdapter) parseResponse(data map[string]interface{}) *VerificationResult {
	statusStr, _ := getNestedValue(data, p.config.ResponseMapping.StatusField).(string)
	refStr, _ := getNestedValue(data, p.config.ResponseMapping.ReferenceField).(string)

	var reason string
	if p.config.ResponseMapping.ReasonField != "" {
		reason, _ = getNestedValue(data, p.config.ResponseMapping.ReasonField).(string)
	}

	return &VerificationResult{
		Status:      p.mapStatus(statusStr),
		Reason:      reason,
		ProviderRef: refStr,
		RawData:     data,
		Timestamp:   time.Now(),
	}
}

func getNestedValue(data map[string]interface{}, path string) interface{} {
	current := interface{}(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func (p *configurableProviderAdapter) mapStatus(status string) VerificationStatus {
	statusLower := strings.ToLower(status)

	for _, v := range p.config.ResponseMapping.VerifiedValues {
		if strings.ToLower(v) == statusLower {
			return StatusVerified
		}
	}

	for _, v := range p.config.ResponseMapping.FailedValues {
		if strings.ToLower(v) == statusLower {
			return StatusFailed
		}
	}

	for _, v := range p.config.ResponseMapping.ReviewValues {
		if strings.ToLower(v) == statusLower {
			return StatusReview
		}
	}

	return StatusPending
}
