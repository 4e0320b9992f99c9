package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// SubmissionPayload is the aggregated request sent to the backend on final submission.
// It marshals to {selectedServices, <type>Data..., paymentAmount} with one
// data key per known service type, null when not collected.
type SubmissionPayload struct {
	SelectedServices []ServiceType
	Forms            map[ServiceType]FormData
	PaymentAmount    decimal.Decimal
}

func (p SubmissionPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(ServiceTypes)+2)
	selected := p.SelectedServices
	if selected == nil {
		selected = []ServiceType{}
	}
	out["selectedServices"] = selected
	for _, t := range ServiceTypes {
		form, ok := p.Forms[t]
		if !ok || form == nil {
			out[t.PayloadKey()] = nil
			continue
		}
		out[t.PayloadKey()] = form
	}
	amount, _ := p.PaymentAmount.Float64()
	out["paymentAmount"] = amount
	return json.Marshal(out)
}

// SubmissionReceipt is returned to the candidate after a successful submission.
type SubmissionReceipt struct {
	ReferenceID      string          `json:"referenceId"`
	SubmittedAt      time.Time       `json:"submittedAt"`
	SelectedServices []ServiceType   `json:"selectedServices"`
	PaymentAmount    decimal.Decimal `json:"paymentAmount"`
	BackendReference string          `json:"backendReference,omitempty"`
}
