package session

// CurrentUserKey is the query key for the current user.
const CurrentUserKey = "current-user"

// ChangeKind identifies what a mutation touched.
type ChangeKind int

const (
	ChangeToken ChangeKind = iota + 1
	ChangeHydrated
	ChangeUser
	ChangeWithdrawal
	ChangeConversion
	ChangeInvalidated
	ChangeLogout
)

// String returns the change kind name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeToken:
		return "token"
	case ChangeHydrated:
		return "hydrated"
	case ChangeUser:
		return "user"
	case ChangeWithdrawal:
		return "withdrawal"
	case ChangeConversion:
		return "conversion"
	case ChangeInvalidated:
		return "invalidated"
	case ChangeLogout:
		return "logout"
	default:
		return "unknown"
	}
}

// Change describes one store mutation.
type Change struct {
	Kind ChangeKind
	Key  string // Query key, for ChangeInvalidated
}

// Subscriber is called once per change, outside the store lock.
type Subscriber func(Change)
