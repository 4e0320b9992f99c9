package model

import (
	"time"
)

// WorkflowStep is the state of a candidate's verification workflow.
type WorkflowStep string

const (
	StepSelectServices  WorkflowStep = "select_services"
	StepPayment         WorkflowStep = "payment"
	StepPaymentSuccess  WorkflowStep = "payment_success"
	StepFinalSubmission WorkflowStep = "final_submission"
)

// Session is the persisted workflow state of one candidate.
type Session struct {
	SessionID        string         `json:"sessionId"`
	Step             WorkflowStep   `json:"step"`
	SelectedServices []ServiceType  `json:"selectedServices"`
	PaymentEpoch     int64          `json:"paymentEpoch"`
	PaymentInFlight  bool           `json:"paymentInFlight"`
	SubmitInFlight   bool           `json:"submitInFlight"`
	LastPayment      *PaymentRecord `json:"lastPayment,omitempty"`
	Catalog          Catalog        `json:"catalog"` // Frozen when the session starts
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

func NewSession(sessionID string) *Session {
	now := time.Now()
	return &Session{
		SessionID:        sessionID,
		Step:             StepSelectServices,
		SelectedServices: []ServiceType{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Selection is a set of selected service ids.
type Selection map[ServiceType]struct{}

func NewSelection(ids ...ServiceType) Selection {
	s := make(Selection, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Selection) Has(id ServiceType) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the selection in catalog order.
func (s Selection) Sorted() []ServiceType {
	out := make([]ServiceType, 0, len(s))
	for _, t := range ServiceTypes {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Readiness tells whether every selected service has a completed form.
type Readiness struct {
	SessionID string        `json:"sessionId"`
	Step      WorkflowStep  `json:"step"`
	Ready     bool          `json:"ready"`
	Selected  []ServiceType `json:"selected"`
	Completed []ServiceType `json:"completed"`
	Missing   []ServiceType `json:"missing"`
}

// ComputeReadiness checks completed ⊇ selected.
func ComputeReadiness(selected, completed Selection) Readiness {
	r := Readiness{
		Selected:  selected.Sorted(),
		Completed: completed.Sorted(),
		Missing:   []ServiceType{},
	}
	for _, id := range r.Selected {
		if !completed.Has(id) {
			r.Missing = append(r.Missing, id)
		}
	}
	r.Ready = len(r.Selected) > 0 && len(r.Missing) == 0
	return r
}
