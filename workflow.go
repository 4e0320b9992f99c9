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

package vetflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/model"
)

var (
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrInFlight          = errors.New("operation already in progress")
	ErrStalePayment      = errors.New("payment was cancelled before it settled")
	ErrFormIncomplete    = errors.New("form is missing required fields")
	ErrNoServices        = errors.New("no services selected")
	ErrNotReady          = errors.New("not every selected form is complete")
	ErrConsentRequired   = errors.New("consent is required to submit")
	ErrUnknownService    = errors.New("unknown verification service")
	ErrServiceNotChosen  = errors.New("service is not selected")
)

func invalidTransition(s *model.Session, op string) error {
	msg := fmt.Sprintf("cannot %s while in step %s", op, s.Step)
	return apierror.Wrap(apierror.ErrInvalidTransition, msg, ErrInvalidTransition)
}

func inFlight(op string) error {
	return apierror.Wrap(apierror.ErrInFlight, op+" is already in progress", ErrInFlight)
}

func requireStep(s *model.Session, step model.WorkflowStep, op string) error {
	if s.Step != step {
		return invalidTransition(s, op)
	}
	return nil
}

// ProceedToPayment moves select_services to payment once something is selected.
func (v *Vetflow) ProceedToPayment(ctx context.Context, sessionID string) (*model.Session, error) {
	return v.withSession(ctx, sessionID, func(s *model.Session) error {
		if err := requireStep(s, model.StepSelectServices, "proceed to payment"); err != nil {
			return err
		}
		sel, err := v.datasource.GetSelection(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(sel) == 0 {
			return apierror.Wrap(apierror.ErrValidation, "select at least one service", ErrNoServices)
		}
		s.Step = model.StepPayment
		s.SelectedServices = sel.Sorted()
		logrus.WithField("session_id", sessionID).Info("proceeding to payment")
		return nil
	})
}

// ProceedToFinalSubmission requires a completed form for every selected service. The
// check runs against the current selection on every call.
func (v *Vetflow) ProceedToFinalSubmission(ctx context.Context, sessionID string) (*model.Session, error) {
	return v.withSession(ctx, sessionID, func(s *model.Session) error {
		if err := requireStep(s, model.StepPaymentSuccess, "proceed to final submission"); err != nil {
			return err
		}
		r, err := v.readiness(ctx, s)
		if err != nil {
			return err
		}
		if !r.Ready {
			return apierror.Wrap(apierror.ErrValidation, "complete every selected form first", ErrNotReady)
		}
		s.Step = model.StepFinalSubmission
		return nil
	})
}

// BackToPaymentSuccess leaves the final submission step without submitting.
func (v *Vetflow) BackToPaymentSuccess(ctx context.Context, sessionID string) (*model.Session, error) {
	return v.withSession(ctx, sessionID, func(s *model.Session) error {
		if err := requireStep(s, model.StepFinalSubmission, "go back to payment success"); err != nil {
			return err
		}
		s.Step = model.StepPaymentSuccess
		return nil
	})
}

func (v *Vetflow) readiness(ctx context.Context, s *model.Session) (model.Readiness, error) {
	sel, err := v.datasource.GetSelection(ctx, s.SessionID)
	if err != nil {
		return model.Readiness{}, err
	}
	completed, err := v.datasource.GetCompletedForms(ctx, s.SessionID)
	if err != nil {
		return model.Readiness{}, err
	}
	r := model.ComputeReadiness(sel, completed)
	r.SessionID = s.SessionID
	r.Step = s.Step
	return r, nil
}

// Readiness reports whether the session could proceed to final submission.
func (v *Vetflow) Readiness(ctx context.Context, sessionID string) (model.Readiness, error) {
	s, err := v.GetSession(ctx, sessionID)
	if err != nil {
		return model.Readiness{}, err
	}
	return v.readiness(ctx, s)
}

// SubscribeReadiness streams readiness every time the selection, the completed forms
// or the session itself is written. The channel keeps only the latest value and is
// closed by the returned cancel func or when ctx ends.
func (v *Vetflow) SubscribeReadiness(ctx context.Context, sessionID string) (<-chan model.Readiness, func(), error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, nil, err
	}

	out := make(chan model.Readiness, 1)
	var (
		mu     sync.Mutex
		closed bool
	)
	publish := func(r model.Readiness) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-out:
		default:
		}
		out <- r
	}

	unsubscribe := v.datasource.Subscribe(sessionID, func(ev database.Event) {
		switch ev.Key {
		case database.KeySelectedServices, database.KeyCompletedForms, database.KeyWorkflowSession:
		default:
			return
		}
		r, err := v.Readiness(context.Background(), sessionID)
		if err != nil {
			if !errors.Is(err, ErrSessionNotFound) {
				logrus.WithError(err).WithField("session_id", sessionID).Warn("failed to compute readiness")
			}
			return
		}
		publish(r)
	})

	if r, err := v.Readiness(ctx, sessionID); err == nil {
		publish(r)
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(out)
			mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return out, cancel, nil
}
