package model

import (
	"time"
)

// CheckStatus represents the status of a document verification check
type CheckStatus string

const (
	CheckStatusPending   CheckStatus = "pending"
	CheckStatusSubmitted CheckStatus = "submitted" // Sent to provider
	CheckStatusPassed    CheckStatus = "passed"
	CheckStatusFailed    CheckStatus = "failed"
	CheckStatusReview    CheckStatus = "review_needed"
)

// Terminal reports whether a check will not change any more.
func (s CheckStatus) Terminal() bool {
	return s == CheckStatusPassed || s == CheckStatusFailed
}

// DocumentCheck is the verification of one service's document by an external provider
type DocumentCheck struct {
	CheckID        string                 `json:"check_id"`
	SessionID      string                 `json:"session_id"`
	ServiceID      ServiceType            `json:"service_id"`
	ProviderID     string                 `json:"provider_id"`
	ProviderRef    string                 `json:"provider_ref"` // Reference ID from the external provider
	DocumentIndex  int                    `json:"document_index"`
	DocumentSHA256 string                 `json:"document_sha256"` // Digest of the file that was sent
	Status         CheckStatus            `json:"status"`
	Reason         string                 `json:"reason,omitempty"`
	Result         map[string]interface{} `json:"result,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Attestation is a wallet signature over the hash of a verified document.
type Attestation struct {
	ServiceID    ServiceType `json:"service_id"`
	DocumentHash string      `json:"document_hash"`
	Signature    string      `json:"signature"`
	Address      string      `json:"address"`
	ChainID      int64       `json:"chain_id"`
	CreatedAt    time.Time   `json:"created_at"`
}
