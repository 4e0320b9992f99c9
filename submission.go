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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/vetflow/database"
	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/model"
)

// buildPayload aggregates the selection, every stored form of a selected service and
// the total. Callers hold the session lock.
func (v *Vetflow) buildPayload(ctx context.Context, s *model.Session) (*model.SubmissionPayload, error) {
	sel, err := v.datasource.GetSelection(ctx, s.SessionID)
	if err != nil {
		return nil, err
	}

	payload := &model.SubmissionPayload{
		SelectedServices: sel.Sorted(),
		Forms:            make(map[model.ServiceType]model.FormData, len(sel)),
		PaymentAmount:    ComputeTotal(sel, sessionCatalog(s)),
	}
	for _, id := range payload.SelectedServices {
		form, err := v.datasource.GetForm(ctx, s.SessionID, id)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		payload.Forms[id] = form
	}
	return payload, nil
}

// Submit sends everything collected in the session to the backend. Without consent
// nothing is sent. On success the session is reset to service selection with its
// forms, selection and completed set cleared; on failure all state is kept so the
// candidate can retry.
func (v *Vetflow) Submit(ctx context.Context, sessionID string, consentGiven bool) (*model.SubmissionReceipt, error) {
	ctx, span := otel.Tracer("Vetflow").Start(ctx, "Submit verification request")
	defer span.End()

	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	if !consentGiven {
		return nil, apierror.Wrap(apierror.ErrValidation, "consent is required to submit", ErrConsentRequired)
	}

	release, err := v.guard.Acquire(ctx, sessionID+":submit")
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			return nil, inFlight("submission")
		}
		return nil, err
	}
	defer release()

	var payload *model.SubmissionPayload
	_, err = v.withSession(ctx, sessionID, func(s *model.Session) error {
		if err := requireStep(s, model.StepFinalSubmission, "submit"); err != nil {
			return err
		}
		// Forms stay editable here, so completeness is checked again.
		r, err := v.readiness(ctx, s)
		if err != nil {
			return err
		}
		if !r.Ready {
			notReady := apierror.Wrap(apierror.ErrValidation, "complete every selected form first", ErrNotReady)
			notReady.Details = r
			return notReady
		}
		p, err := v.buildPayload(ctx, s)
		if err != nil {
			return err
		}
		payload = p
		s.SubmitInFlight = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("submission.services", len(payload.SelectedServices)))

	submitCtx, cancel := context.WithTimeout(ctx, v.timeout)
	resp, err := v.backend.Submit(submitCtx, payload)
	cancel()

	ctx = context.WithoutCancel(ctx)
	if err != nil {
		span.RecordError(err)
		logrus.WithError(err).WithField("session_id", sessionID).Error("verification submission failed")
		if _, saveErr := v.withSession(ctx, sessionID, func(s *model.Session) error {
			s.SubmitInFlight = false
			return nil
		}); saveErr != nil {
			logrus.WithError(saveErr).Error("failed to clear submission flag")
		}
		return nil, apierror.Wrap(apierror.ErrExternalCall, "submission failed, please try again", err)
	}

	now := v.now()
	receipt := &model.SubmissionReceipt{
		ReferenceID:      model.GenerateReferenceID(now),
		SubmittedAt:      now,
		SelectedServices: payload.SelectedServices,
		PaymentAmount:    payload.PaymentAmount,
	}
	if resp != nil {
		receipt.BackendReference = resp.Ref()
	}

	_, err = v.withSession(ctx, sessionID, func(s *model.Session) error {
		if err := v.datasource.ClearForms(ctx, sessionID); err != nil {
			return err
		}
		if err := v.datasource.ClearSelection(ctx, sessionID); err != nil {
			return err
		}
		if err := v.datasource.ClearCompletedForms(ctx, sessionID); err != nil {
			return err
		}
		s.Step = model.StepSelectServices
		s.SelectedServices = []model.ServiceType{}
		s.SubmitInFlight = false
		s.PaymentInFlight = false
		s.LastPayment = nil
		s.PaymentEpoch++
		return nil
	})
	if err != nil {
		// The backend already accepted the request, so the receipt is still returned.
		logrus.WithError(err).WithField("session_id", sessionID).Error("failed to reset session after submission")
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"reference":  receipt.ReferenceID,
	}).Info("verification request submitted")
	if err := v.SendWebhook(NewWebhook{Event: "submission.created", Payload: receipt}); err != nil {
		logrus.WithError(err).Warn("failed to queue submission webhook")
	}
	return receipt, nil
}
