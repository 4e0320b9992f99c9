package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethodKind string

const (
	MethodCard       PaymentMethodKind = "card"
	MethodUPI        PaymentMethodKind = "upi"
	MethodNetBanking PaymentMethodKind = "netbanking"
	MethodWallet     PaymentMethodKind = "wallet"
)

// PaymentMethod is one of CardPayment, UPIPayment, NetBankingPayment or WalletPayment.
type PaymentMethod interface {
	Kind() PaymentMethodKind
}

type CardPayment struct {
	Number     string `json:"number"`
	HolderName string `json:"holderName"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
}

func (CardPayment) Kind() PaymentMethodKind { return MethodCard }

type UPIPayment struct {
	ID string `json:"id"`
}

func (UPIPayment) Kind() PaymentMethodKind { return MethodUPI }

type NetBankingPayment struct {
	BankID string `json:"bankId"`
}

func (NetBankingPayment) Kind() PaymentMethodKind { return MethodNetBanking }

type WalletPayment struct {
	WalletID string `json:"walletId"`
}

func (WalletPayment) Kind() PaymentMethodKind { return MethodWallet }

// Banks is the fixed list of net banking providers.
var Banks = []string{"sbi", "hdfc", "icici", "axis", "kotak", "pnb", "bob", "yes"}

// Wallets is the fixed list of supported payment wallets.
var Wallets = []string{"paytm", "phonepe", "amazonpay", "mobikwik", "freecharge"}

type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "success"
	PaymentFailure PaymentStatus = "failure"
)

type PaymentOutcome struct {
	Status PaymentStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Hint   string        `json:"hint,omitempty"`
}

func (o PaymentOutcome) Succeeded() bool {
	return o.Status == PaymentSuccess
}

// PaymentRecord is the last settled payment of a session.
type PaymentRecord struct {
	Method    PaymentMethodKind `json:"method"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Outcome   PaymentOutcome    `json:"outcome"`
	SettledAt time.Time         `json:"settledAt"`
}
