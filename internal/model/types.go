package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle status of a withdrawal or conversion request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusSuccess   RequestStatus = "success"
	StatusFailed    RequestStatus = "failed"
	StatusCancelled RequestStatus = "cancelled"
)

// Money is an amount in a single currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// NewMoney builds a Money value.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// String renders the amount followed by the currency code.
func (m Money) String() string {
	if m.Currency == "" {
		return m.Amount.String()
	}
	return m.Amount.String() + " " + m.Currency
}

// -----------------------------------------------------------------------------
// Tracked Requests
// -----------------------------------------------------------------------------

// WithdrawalRequest is an in-flight or finished withdrawal as reported by the backend.
type WithdrawalRequest struct {
	ID          string        // Backend request ID
	Status      RequestStatus // pending, success, failed, cancelled, ...
	Stage       Stage         // Processing stage; null when the backend has not assigned one
	Amount      Money         // Requested amount
	Destination string        // Masked destination (IBAN, wallet address)
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConversionRequest is an in-flight or finished currency conversion.
type ConversionRequest struct {
	ID        string
	Status    RequestStatus
	Stage     Stage
	From      Money           // Source amount
	To        Money           // Quoted target amount
	Rate      decimal.Decimal // Quoted rate From -> To
	CreatedAt time.Time
	UpdatedAt time.Time
}

// -----------------------------------------------------------------------------
// User
// -----------------------------------------------------------------------------

// Balance is the available amount in one currency.
type Balance struct {
	Currency  string
	Available decimal.Decimal
	Reserved  decimal.Decimal
}

// User is the full current-user state returned by the profile endpoint.
type User struct {
	ID                string
	Email             string
	Name              string
	Balances          []Balance
	WithdrawalRequest *WithdrawalRequest // nil when there is nothing to track
	ConversionRequest *ConversionRequest // nil when there is nothing to track
	UpdatedAt         time.Time
}

// Clone returns a copy that shares no mutable state with u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Balances != nil {
		c.Balances = append([]Balance(nil), u.Balances...)
	}
	if u.WithdrawalRequest != nil {
		w := *u.WithdrawalRequest
		c.WithdrawalRequest = &w
	}
	if u.ConversionRequest != nil {
		cr := *u.ConversionRequest
		c.ConversionRequest = &cr
	}
	return &c
}
