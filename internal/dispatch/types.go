package dispatch

import (
	"errors"

	"github.com/rickgao/fundsync/internal/model"
	"github.com/rickgao/fundsync/internal/realtime"
	"github.com/rickgao/fundsync/internal/session"
)

// Channel event names.
const (
	EventWithdrawalUpdated = "withdrawal-request.updated"
	EventConversionUpdated = "conversion-request.updated"
	EventUserUpdated       = "user.updated"
)

// Outcome labels for observers.
const (
	OutcomeApplied    = "applied"
	OutcomeIgnored    = "ignored"
	OutcomeParseError = "parse_error"
)

// Errors
var (
	ErrEmptyPayload = errors.New("empty payload")
)

// Subscriber binds channel handlers. *realtime.Manager implements it.
type Subscriber interface {
	SubscribeToPrivateChannel(name string, handlers realtime.Handlers) func()
}

// Store is the part of the session store the dispatcher writes.
type Store interface {
	CurrentUser() *model.User
	SetCurrentUser(u *model.User)
	ApplyWithdrawal(w *model.WithdrawalRequest) bool
	ApplyConversion(c *model.ConversionRequest) bool
	Subscribe(fn session.Subscriber) func()
}

// Stats contains runtime statistics.
type Stats struct {
	Channel     string // Bound channel, "" when unbound
	Received    int64
	Applied     int64
	Ignored     int64
	ParseErrors int64
}

// UserChannel returns the private channel name for a user, without the
// private- prefix the manager adds.
func UserChannel(userID string) string {
	return "user." + userID
}
