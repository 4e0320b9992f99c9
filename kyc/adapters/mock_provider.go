package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/blnkfinance/vetflow/kyc"
	"github.com/google/uuid"
)

// MockProvider is a stand-in verification provider for local runs and tests.
type MockProvider struct {
	ShouldFail  bool
	ReturnError bool
	Async       bool
	Delay       time.Duration
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Name() string {
	return "mock_provider"
}

func (m *MockProvider) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockProvider) VerifyDocument(ctx context.Context, req kyc.DocumentRequest) (*kyc.VerificationResult, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.ReturnError {
		return nil, errors.New("mock provider unavailable")
	}

	ref := "doc_" + uuid.New().String()

	if m.ShouldFail {
		return &kyc.VerificationResult{
			Status:      kyc.StatusFailed,
			Reason:      "Mock verification failure triggered",
			ProviderRef: ref,
			Timestamp:   time.Now(),
		}, nil
	}

	if m.Async {
		return &kyc.VerificationResult{
			Status:      kyc.StatusPending,
			Reason:      "Document received, processing started",
			ProviderRef: ref,
			Timestamp:   time.Now(),
		}, nil
	}

	return &kyc.VerificationResult{
		Status:      kyc.StatusVerified,
		Reason:      "Document verified by mock provider",
		ProviderRef: ref,
		Timestamp:   time.Now(),
	}, nil
}

func (m *MockProvider) CheckStatus(ctx context.Context, providerRef string) (*kyc.VerificationResult, error) {
	if m.ReturnError {
		return nil, errors.New("mock provider unavailable")
	}
	status := kyc.StatusVerified
	if m.ShouldFail {
		status = kyc.StatusFailed
	}
	return &kyc.VerificationResult{
		Status:      status,
		Reason:      "Async check completed",
		ProviderRef: providerRef,
		Timestamp:   time.Now(),
	}, nil
}
