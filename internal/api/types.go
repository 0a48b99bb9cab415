package api

import "github.com/rickgao/fundsync/internal/model"

// UserResponse from GET /user
type UserResponse struct {
	Data APIUser `json:"data"`
}

// APIUser represents the current user as returned by the API.
type APIUser struct {
	ID                string                `json:"id"`
	Email             string                `json:"email"`
	Name              string                `json:"name"`
	Balances          []APIBalance          `json:"balances"`
	WithdrawalRequest *APIWithdrawalRequest `json:"withdrawal_request"`
	ConversionRequest *APIConversionRequest `json:"conversion_request"`
	UpdatedAt         string                `json:"updated_at"`
}

// APIBalance is a per-currency balance. Amounts are decimal strings.
type APIBalance struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Reserved  string `json:"reserved"`
}

// APIWithdrawalRequest is the withdrawal request payload, shared by the REST
// response and the realtime withdrawal-request.updated event.
type APIWithdrawalRequest struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Stage       model.Stage `json:"stage"`
	Amount      string      `json:"amount"`
	Currency    string      `json:"currency"`
	Destination string      `json:"destination"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
}

// APIConversionRequest is the conversion request payload.
type APIConversionRequest struct {
	ID           string      `json:"id"`
	Status       string      `json:"status"`
	Stage        model.Stage `json:"stage"`
	FromAmount   string      `json:"from_amount"`
	FromCurrency string      `json:"from_currency"`
	ToAmount     string      `json:"to_amount"`
	ToCurrency   string      `json:"to_currency"`
	Rate         string      `json:"rate"`
	CreatedAt    string      `json:"created_at"`
	UpdatedAt    string      `json:"updated_at"`
}

// ChannelAuthResponse from POST /broadcasting/auth
type ChannelAuthResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}
