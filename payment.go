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
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/vetflow/internal/apierror"
	"github.com/blnkfinance/vetflow/model"
)

var (
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrPaymentDeclined      = errors.New("payment was declined")
)

var (
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvPattern    = regexp.MustCompile(`^\d{3}$`)
	upiPattern    = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9]+$`)

	approvedUPIHandles = []string{"@okaxis", "@okicici", "@oksbi"}
)

// Settler settles a validated payment.
type Settler interface {
	Settle(ctx context.Context, method model.PaymentMethod, amount decimal.Decimal) (model.PaymentOutcome, error)
}

// SimulatedSettler approves payments by fixed demo rules after Latency: cards whose
// number starts with 4, UPI ids of approved handles, and every net banking or wallet
// payment.
type SimulatedSettler struct {
	Latency time.Duration
}

func (s *SimulatedSettler) Settle(ctx context.Context, method model.PaymentMethod, _ decimal.Decimal) (model.PaymentOutcome, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return model.PaymentOutcome{}, ctx.Err()
		}
	}

	method, err := paymentValue(method)
	if err != nil {
		return model.PaymentOutcome{}, err
	}

	switch m := method.(type) {
	case model.CardPayment:
		if strings.HasPrefix(normalizeCardNumber(m.Number), "4") {
			return model.PaymentOutcome{Status: model.PaymentSuccess}, nil
		}
		return model.PaymentOutcome{
			Status: model.PaymentFailure,
			Reason: "card was declined",
			Hint:   "Check the card details or pay with a different card.",
		}, nil
	case model.UPIPayment:
		for _, handle := range approvedUPIHandles {
			if strings.HasSuffix(m.ID, handle) {
				return model.PaymentOutcome{Status: model.PaymentSuccess}, nil
			}
		}
		return model.PaymentOutcome{
			Status: model.PaymentFailure,
			Reason: "UPI request was not approved",
			Hint:   "Approve the request in your UPI app or use an id ending in @okaxis, @okicici or @oksbi.",
		}, nil
	default:
		return model.PaymentOutcome{Status: model.PaymentSuccess}, nil
	}
}

// paymentValue turns pointer variants into values so callers switch over one set of types.
func paymentValue(method model.PaymentMethod) (model.PaymentMethod, error) {
	switch m := method.(type) {
	case model.CardPayment, model.UPIPayment, model.NetBankingPayment, model.WalletPayment:
		return m, nil
	case *model.CardPayment:
		if m != nil {
			return *m, nil
		}
	case *model.UPIPayment:
		if m != nil {
			return *m, nil
		}
	case *model.NetBankingPayment:
		if m != nil {
			return *m, nil
		}
	case *model.WalletPayment:
		if m != nil {
			return *m, nil
		}
	}
	return nil, ErrUnknownPaymentMethod
}

func normalizeCardNumber(number string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(number)
}

func sixteenDigits(value interface{}) error {
	digits := normalizeCardNumber(value.(string))
	if digits == "" {
		return nil
	}
	if len(digits) != 16 {
		return errors.New("card number must have 16 digits")
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return errors.New("card number may only contain digits")
		}
	}
	return nil
}

func notBlank(message string) validation.RuleFunc {
	return func(value interface{}) error {
		if strings.TrimSpace(value.(string)) == "" {
			return errors.New(message)
		}
		return nil
	}
}

// memberOf accepts ids from list and suggests the closest entry for anything else.
func memberOf(list []string, noun string) validation.RuleFunc {
	return func(value interface{}) error {
		id := value.(string)
		if id == "" {
			return nil
		}
		best, bestDistance := "", -1
		for _, candidate := range list {
			if candidate == id {
				return nil
			}
			distance := levenshtein.DistanceForStrings([]rune(strings.ToLower(id)), []rune(candidate), levenshtein.DefaultOptions)
			if bestDistance < 0 || distance < bestDistance {
				best, bestDistance = candidate, distance
			}
		}
		if bestDistance >= 0 && bestDistance <= 3 {
			return fmt.Errorf("unknown %s %q, did you mean %q?", noun, id, best)
		}
		return fmt.Errorf("unknown %s %q", noun, id)
	}
}

// ValidatePayment checks the method's fields without settling anything.
func ValidatePayment(method model.PaymentMethod) error {
	method, err := paymentValue(method)
	if err != nil {
		return apierror.Wrap(apierror.ErrValidation, "choose a payment method", err)
	}

	switch m := method.(type) {
	case model.CardPayment:
		err = validation.ValidateStruct(&m,
			validation.Field(&m.Number, validation.Required.Error("card number is required"), validation.By(sixteenDigits)),
			validation.Field(&m.HolderName, validation.By(notBlank("cardholder name is required"))),
			validation.Field(&m.Expiry, validation.Required.Error("expiry is required"), validation.Match(expiryPattern).Error("expiry must be MM/YY")),
			validation.Field(&m.CVV, validation.Required.Error("CVV is required"), validation.Match(cvvPattern).Error("CVV must be 3 digits")),
		)
	case model.UPIPayment:
		err = validation.ValidateStruct(&m,
			validation.Field(&m.ID, validation.Required.Error("UPI id is required"), validation.Match(upiPattern).Error("UPI id must look like name@bank")),
		)
	case model.NetBankingPayment:
		err = validation.ValidateStruct(&m,
			validation.Field(&m.BankID, validation.Required.Error("select a bank"), validation.By(memberOf(model.Banks, "bank"))),
		)
	case model.WalletPayment:
		err = validation.ValidateStruct(&m,
			validation.Field(&m.WalletID, validation.Required.Error("select a wallet"), validation.By(memberOf(model.Wallets, "wallet"))),
		)
	}
	if err != nil {
		return apierror.Wrap(apierror.ErrValidation, err.Error(), err)
	}
	return nil
}

// SubmitPayment validates and settles a payment for the current selection. Settlement
// runs outside the session lock; a result that arrives after CancelPayment is discarded
// with ErrStalePayment. A declined payment keeps the session in the payment step.
func (v *Vetflow) SubmitPayment(ctx context.Context, sessionID string, method model.PaymentMethod) (model.PaymentOutcome, error) {
	ctx, span := otel.Tracer("Vetflow").Start(ctx, "Submit payment")
	defer span.End()

	if err := validateSessionID(sessionID); err != nil {
		return model.PaymentOutcome{}, err
	}
	if err := ValidatePayment(method); err != nil {
		return model.PaymentOutcome{}, err
	}
	method, _ = paymentValue(method)
	span.SetAttributes(attribute.String("payment.method", string(method.Kind())))

	release, err := v.guard.Acquire(ctx, sessionID+":payment")
	if err != nil {
		if errors.Is(err, ErrInFlight) {
			return model.PaymentOutcome{}, inFlight("payment")
		}
		return model.PaymentOutcome{}, err
	}
	defer release()

	var (
		epoch  int64
		amount decimal.Decimal
	)
	_, err = v.withSession(ctx, sessionID, func(s *model.Session) error {
		if err := requireStep(s, model.StepPayment, "pay"); err != nil {
			return err
		}
		sel, err := v.datasource.GetSelection(ctx, sessionID)
		if err != nil {
			return err
		}
		epoch = s.PaymentEpoch
		amount = ComputeTotal(sel, sessionCatalog(s))
		s.PaymentInFlight = true
		return nil
	})
	if err != nil {
		return model.PaymentOutcome{}, err
	}

	settleCtx, cancel := context.WithTimeout(ctx, v.timeout)
	outcome, err := v.settler.Settle(settleCtx, method, amount)
	cancel()
	if err != nil {
		span.RecordError(err)
		logrus.WithError(err).WithField("session_id", sessionID).Warn("payment settlement did not complete")
		outcome = model.PaymentOutcome{
			Status: model.PaymentFailure,
			Reason: "payment could not be confirmed in time",
			Hint:   "No money was taken. Try the payment again.",
		}
	}

	// The caller may be gone, the outcome still has to be recorded.
	ctx = context.WithoutCancel(ctx)
	record := &model.PaymentRecord{
		Method:    method.Kind(),
		Amount:    amount,
		Currency:  v.cfg.Payment.Currency,
		Outcome:   outcome,
		SettledAt: v.now(),
	}
	_, err = v.withSession(ctx, sessionID, func(s *model.Session) error {
		if s.PaymentEpoch != epoch || s.Step != model.StepPayment {
			return apierror.Wrap(apierror.ErrConflict, "payment was cancelled", ErrStalePayment)
		}
		s.PaymentInFlight = false
		s.LastPayment = record
		if !outcome.Succeeded() {
			return nil
		}
		sel, err := v.datasource.GetSelection(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := v.datasource.SetSelection(ctx, sessionID, sel); err != nil {
			return err
		}
		s.SelectedServices = sel.Sorted()
		s.Step = model.StepPaymentSuccess
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStalePayment) {
			logrus.WithField("session_id", sessionID).Info("discarding settlement of a cancelled payment")
		}
		return model.PaymentOutcome{}, err
	}

	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"method":     method.Kind(),
		"amount":     amount.String(),
		"status":     outcome.Status,
	}).Info("payment settled")
	if err := v.SendWebhook(NewWebhook{Event: "payment." + string(outcome.Status), Payload: record}); err != nil {
		logrus.WithError(err).Warn("failed to queue payment webhook")
	}

	if !outcome.Succeeded() {
		apiErr := apierror.Wrap(apierror.ErrSettlementFailure, outcome.Reason, ErrPaymentDeclined)
		apiErr.Details = outcome
		return outcome, apiErr
	}
	return outcome, nil
}

// CancelPayment returns to service selection. Any settlement still running for the
// session is discarded when it resolves.
func (v *Vetflow) CancelPayment(ctx context.Context, sessionID string) (*model.Session, error) {
	return v.withSession(ctx, sessionID, func(s *model.Session) error {
		if err := requireStep(s, model.StepPayment, "cancel payment"); err != nil {
			return err
		}
		s.Step = model.StepSelectServices
		s.PaymentEpoch++
		s.PaymentInFlight = false
		logrus.WithField("session_id", sessionID).Info("payment cancelled")
		return nil
	})
}
