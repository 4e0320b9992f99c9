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
package model

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/vetflow/model"
)

var paymentMethods = []interface{}{
	string(model.MethodCard),
	string(model.MethodUPI),
	string(model.MethodNetBanking),
	string(model.MethodWallet),
}

type ToggleService struct {
	ServiceID string `json:"service_id"`
}

type UpdateField struct {
	Field string      `json:"field"`
	Index int         `json:"index"`
	Value interface{} `json:"value"`
}

type ListItem struct {
	List  string `json:"list"`
	Index int    `json:"index"`
}

// Payment carries one payment method. Only the fields of Method are read.
type Payment struct {
	Method     string `json:"method"`
	CardNumber string `json:"card_number,omitempty"`
	HolderName string `json:"holder_name,omitempty"`
	Expiry     string `json:"expiry,omitempty"`
	CVV        string `json:"cvv,omitempty"`
	UpiID      string `json:"upi_id,omitempty"`
	BankID     string `json:"bank_id,omitempty"`
	WalletID   string `json:"wallet_id,omitempty"`
}

type Submit struct {
	ConsentGiven bool `json:"consent_given"`
}

type VerifyDocument struct {
	Index    int    `json:"index"`
	Provider string `json:"provider"`
}

func serviceType(value interface{}) error {
	id, ok := value.(string)
	if !ok {
		return errors.New("invalid service id")
	}
	if !model.ServiceType(id).Valid() {
		return errors.New("unknown service " + id)
	}
	return nil
}

// ParseServiceID validates a service id taken from a route or body.
func ParseServiceID(id string) (model.ServiceType, error) {
	err := validation.Validate(id, validation.Required.Error("service id is required"), validation.By(serviceType))
	if err != nil {
		return "", err
	}
	return model.ServiceType(id), nil
}

func (t *ToggleService) ValidateToggleService() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.ServiceID, validation.Required, validation.By(serviceType)),
	)
}

func (u *UpdateField) ValidateUpdateField() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Field, validation.Required),
		validation.Field(&u.Index, validation.Min(0)),
	)
}

func (l *ListItem) ValidateListItem() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.List, validation.Required),
		validation.Field(&l.Index, validation.Min(0)),
	)
}

func (v *VerifyDocument) ValidateVerifyDocument() error {
	return validation.ValidateStruct(v,
		validation.Field(&v.Index, validation.Min(0)),
	)
}

// ValidatePayment checks the method name only. Method fields are validated by the workflow
// so that every caller gets the same messages.
func (p *Payment) ValidatePayment() error {
	p.Method = strings.ToLower(strings.TrimSpace(p.Method))
	return validation.ValidateStruct(p,
		validation.Field(&p.Method, validation.Required.Error("choose a payment method"), validation.In(paymentMethods...).Error("unknown payment method")),
	)
}

func (u *UpdateField) ToFieldPath() model.FieldPath {
	return model.FieldPath{Field: u.Field, Index: u.Index}
}

func (p *Payment) ToPaymentMethod() model.PaymentMethod {
	switch model.PaymentMethodKind(p.Method) {
	case model.MethodCard:
		return model.CardPayment{Number: p.CardNumber, HolderName: p.HolderName, Expiry: p.Expiry, CVV: p.CVV}
	case model.MethodUPI:
		return model.UPIPayment{ID: p.UpiID}
	case model.MethodNetBanking:
		return model.NetBankingPayment{BankID: p.BankID}
	case model.MethodWallet:
		return model.WalletPayment{WalletID: p.WalletID}
	}
	return nil
}
