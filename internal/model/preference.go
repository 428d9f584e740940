package model

import "time"

// ConfluenceScope controls where a user's confluence threshold applies.
// The source material leaves this ambiguous, so it is explicit per user.
type ConfluenceScope string

const (
	ConfluenceAlerts  ConfluenceScope = "alertas"
	ConfluenceDigests ConfluenceScope = "digests"
	ConfluenceBoth    ConfluenceScope = "ambos"
)

// UserPreference is one subscriber's dispatch settings. Records are
// replaced whole on mutation; readers always see a consistent copy.
type UserPreference struct {
	UserID              string
	Paused              bool
	MutedUntil          time.Time // zero or past = not muted
	Filter              []string  // instrument tickers; empty = all
	TimezoneOffset      int       // hours from UTC
	ConfluenceThreshold int       // signal families required before enrichment
	ConfluenceScope     ConfluenceScope
	UpdatedAt           time.Time
}

// Muted reports whether the user is muted at the given instant.
func (p UserPreference) Muted(now time.Time) bool {
	return !p.MutedUntil.IsZero() && now.Before(p.MutedUntil)
}

// Wants reports whether the user's filter admits the instrument. An empty
// filter admits everything.
func (p UserPreference) Wants(ticker string) bool {
	if len(p.Filter) == 0 {
		return true
	}
	for _, t := range p.Filter {
		if t == ticker {
			return true
		}
	}
	return false
}

// ConfluenceAppliesTo reports whether the threshold gates the given kind
// of message.
func (p UserPreference) ConfluenceAppliesTo(digest bool) bool {
	switch p.ConfluenceScope {
	case ConfluenceAlerts:
		return !digest
	case ConfluenceDigests:
		return digest
	default:
		return true
	}
}

// DefaultPreference returns the initial record for a new subscriber.
func DefaultPreference(userID string) UserPreference {
	return UserPreference{
		UserID:              userID,
		TimezoneOffset:      -3, // Brasil
		ConfluenceThreshold: 2,
		ConfluenceScope:     ConfluenceBoth,
		UpdatedAt:           time.Now().UTC(),
	}
}
