package kyc

import (
	"context"
	"time"

	"github.com/blnkfinance/vetflow/model"
)

type VerificationStatus string

const (
	StatusVerified VerificationStatus = "VERIFIED"
	StatusFailed   VerificationStatus = "FAILED"
	StatusPending  VerificationStatus = "PENDING"
	StatusReview   VerificationStatus = "REVIEW_NEEDED"
)

type VerificationResult struct {
	Status      VerificationStatus     `json:"status"`
	Reason      string                 `json:"reason"`
	ProviderRef string                 `json:"provider_ref"`
	RawData     map[string]interface{} `json:"raw_data"`
	Timestamp   time.Time              `json:"timestamp"`
}

// DocumentRequest carries one attached document to a provider.
type DocumentRequest struct {
	SessionID string
	ServiceID model.ServiceType
	Document  *model.Document
}

type ProviderAdapter interface {
	Name() string
	VerifyDocument(ctx context.Context, req DocumentRequest) (*VerificationResult, error)
	CheckStatus(ctx context.Context, providerRef string) (*VerificationResult, error)
}

// checkStatusFor maps a provider verdict onto the stored check status.
func checkStatusFor(s VerificationStatus) model.CheckStatus {
	switch s {
	case StatusVerified:
		return model.CheckStatusPassed
	case StatusFailed:
		return model.CheckStatusFailed
	case StatusReview:
		return model.CheckStatusReview
	default:
		return model.CheckStatusSubmitted
	}
}
