package adapters

import (
	"context"
	"strings"
	"time"

	"github.com/blnkfinance/vetflow/backend"
	"github.com/blnkfinance/vetflow/kyc"
	"github.com/blnkfinance/vetflow/model"
)

// BackendAPI is the slice of backend.Client used for document checks.
type BackendAPI interface {
	VerifyDocument(ctx context.Context, serviceID model.ServiceType, doc *model.Document) (*backend.VerifyResponse, error)
	CheckVerification(ctx context.Context, reference string) (*backend.VerifyResponse, error)
}

// BackendProvider routes document checks to the backend's /verify endpoint.
type BackendProvider struct {
	api BackendAPI
}

func NewBackendProvider(api BackendAPI) *BackendProvider {
	return &BackendProvider{api: api}
}

func (b *BackendProvider) Name() string {
	return "backend"
}

func (b *BackendProvider) VerifyDocument(ctx context.Context, req kyc.DocumentRequest) (*kyc.VerificationResult, error) {
	resp, err := b.api.VerifyDocument(ctx, req.ServiceID, req.Document)
	if err != nil {
		return nil, err
	}
	return toResult(resp), nil
}

func (b *BackendProvider) CheckStatus(ctx context.Context, providerRef string) (*kyc.VerificationResult, error) {
	resp, err := b.api.CheckVerification(ctx, providerRef)
	if err != nil {
		return nil, err
	}
	result := toResult(resp)
	if result.ProviderRef == "" {
		result.ProviderRef = providerRef
	}
	return result, nil
}

func toResult(resp *backend.VerifyResponse) *kyc.VerificationResult {
	return &kyc.VerificationResult{
		Status:      backendStatus(resp.Status),
		Reason:      resp.Reason,
		ProviderRef: resp.Reference,
		RawData:     resp.Data,
		Timestamp:   time.Now(),
	}
}

func backendStatus(s string) kyc.VerificationStatus {
	switch strings.ToLower(s) {
	case "verified", "passed", "approved", "success":
		return kyc.StatusVerified
	case "failed", "rejected", "declined":
		return kyc.StatusFailed
	case "review", "review_needed", "manual_review":
		return kyc.StatusReview
	default:
		return kyc.StatusPending
	}
}
