package entity

import "fmt"

type Tier int

const (
	TierAnonymous Tier = iota
	TierRegistered
	TierSubscribed
)

func (t Tier) String() string {
	switch t {
	case TierAnonymous:
		return "anonymous"
	case TierRegistered:
		return "registered"
	case TierSubscribed:
		return "subscribed"
	}

	return "unknown"
}

// Identity is the quota-tracked principal, resolved once at the boundary.
// Anonymous identities carry a caller-supplied session key (or a last-resort
// IP-derived key), registered and subscribed ones a user id.
type Identity struct {
	Tier       Tier
	SessionKey string
	UserID     string
}

func NewAnonymous(sessionKey string) Identity {
	return Identity{Tier: TierAnonymous, SessionKey: sessionKey}
}

func NewRegistered(userID string) Identity {
	return Identity{Tier: TierRegistered, UserID: userID}
}

func NewSubscribed(userID string) Identity {
	return Identity{Tier: TierSubscribed, UserID: userID}
}

// Key returns the opaque ledger key for the identity. All quota state is
// keyed by this string; the tier only selects the limit schedule.
func (i Identity) Key() string {
	if i.Tier == TierAnonymous {
		return fmt.Sprintf("anon:%s", i.SessionKey)
	}

	return fmt.Sprintf("user:%s", i.UserID)
}
