package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/fundsync/internal/model"
)

// ParseAmount parses a decimal amount string.
// Returns zero for empty or invalid input.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseTimestamp parses an ISO 8601 timestamp.
// Returns the zero time for empty or invalid input.
func ParseTimestamp(iso string) time.Time {
	if iso == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			t, err = time.Parse("2006-01-02 15:04:05", iso)
			if err != nil {
				return time.Time{}
			}
		}
	}

	return t.UTC()
}

// ToModel converts an APIUser to model.User.
func (u *APIUser) ToModel() *model.User {
	balances := make([]model.Balance, 0, len(u.Balances))
	for _, b := range u.Balances {
		balances = append(balances, model.Balance{
			Currency:  b.Currency,
			Available: ParseAmount(b.Available),
			Reserved:  ParseAmount(b.Reserved),
		})
	}

	return &model.User{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		Balances:          balances,
		WithdrawalRequest: u.WithdrawalRequest.ToModel(),
		ConversionRequest: u.ConversionRequest.ToModel(),
		UpdatedAt:         ParseTimestamp(u.UpdatedAt),
	}
}

// ToModel converts an APIWithdrawalRequest to model.WithdrawalRequest.
// A nil receiver yields nil.
func (w *APIWithdrawalRequest) ToModel() *model.WithdrawalRequest {
	if w == nil {
		return nil
	}
	return &model.WithdrawalRequest{
		ID:          w.ID,
		Status:      model.RequestStatus(strings.ToLower(w.Status)),
		Stage:       w.Stage,
		Amount:      model.NewMoney(ParseAmount(w.Amount), w.Currency),
		Destination: w.Destination,
		CreatedAt:   ParseTimestamp(w.CreatedAt),
		UpdatedAt:   ParseTimestamp(w.UpdatedAt),
	}
}

// ToModel converts an APIConversionRequest to model.ConversionRequest.
// A nil receiver yields nil.
func (c *APIConversionRequest) ToModel() *model.ConversionRequest {
	if c == nil {
		return nil
	}
	return &model.ConversionRequest{
		ID:        c.ID,
		Status:    model.RequestStatus(strings.ToLower(c.Status)),
		Stage:     c.Stage,
		From:      model.NewMoney(ParseAmount(c.FromAmount), c.FromCurrency),
		To:        model.NewMoney(ParseAmount(c.ToAmount), c.ToCurrency),
		Rate:      ParseAmount(c.Rate),
		CreatedAt: ParseTimestamp(c.CreatedAt),
		UpdatedAt: ParseTimestamp(c.UpdatedAt),
	}
}
