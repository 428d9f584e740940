package prefs

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"MetalWatch/internal/model"
	"MetalWatch/internal/storage"
)

// ErrUnknownInstrument is returned when a filter names a ticker outside
// the monitored universe; the user's state is left unchanged.
var ErrUnknownInstrument = errors.New("unknown instrument in filter")

// ErrBadDuration is returned for malformed mute durations.
var ErrBadDuration = errors.New("malformed duration")

// Store holds per-subscriber preferences. Reads return value copies;
// mutations replace the whole record and write through to persistence, so
// a change takes effect for the next dispatch decision, never
// retroactively.
type Store struct {
	persist storage.Store

	mu    sync.RWMutex
	users map[string]model.UserPreference
}

// NewStore creates the store and loads persisted records.
func NewStore(persist storage.Store) (*Store, error) {
	s := &Store{persist: persist, users: make(map[string]model.UserPreference)}
	loaded, err := persist.LoadPreferences()
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	for _, p := range loaded {
		s.users[p.UserID] = p
	}
	log.Printf("[INFO] loaded %d user preference records", len(loaded))
	return s, nil
}

// Get returns the user's record, creating a default one on first contact.
func (s *Store) Get(userID string) model.UserPreference {
	s.mu.RLock()
	p, ok := s.users[userID]
	s.mu.RUnlock()
	if ok {
		return p
	}

	p = model.DefaultPreference(userID)
	s.replace(p)
	return p
}

// UserIDs returns all known subscribers in a stable order.
func (s *Store) UserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Each calls fn with a copy of every subscriber's record.
func (s *Store) Each(fn func(model.UserPreference)) {
	for _, id := range s.UserIDs() {
		fn(s.Get(id))
	}
}

func (s *Store) replace(p model.UserPreference) {
	p.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.users[p.UserID] = p
	s.mu.Unlock()
	if err := s.persist.SavePreference(p); err != nil {
		log.Printf("[ERROR] persist preference for %s: %v", p.UserID, err)
	}
}

// Mute silences the user until now+d.
func (s *Store) Mute(userID string, d time.Duration) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("%w: non-positive", ErrBadDuration)
	}
	p := s.Get(userID)
	p.MutedUntil = time.Now().UTC().Add(d)
	s.replace(p)
	return p.MutedUntil, nil
}

// Unmute clears the mute window.
func (s *Store) Unmute(userID string) {
	p := s.Get(userID)
	p.MutedUntil = time.Time{}
	s.replace(p)
}

// SetPaused toggles the global pause flag.
func (s *Store) SetPaused(userID string, paused bool) {
	p := s.Get(userID)
	p.Paused = paused
	s.replace(p)
}

// SetFilter replaces the instrument filter. An empty list means all
// instruments. Unknown tickers reject the whole command.
func (s *Store) SetFilter(userID string, tickers []string) error {
	normalized := make([]string, 0, len(tickers))
	for _, t := range tickers {
		inst, ok := model.LookupInstrument(t)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInstrument, t)
		}
		normalized = append(normalized, inst.Ticker)
	}
	p := s.Get(userID)
	p.Filter = normalized
	s.replace(p)
	return nil
}

// SetTimezone sets the user's UTC offset in hours.
func (s *Store) SetTimezone(userID string, offset int) error {
	if offset < -12 || offset > 14 {
		return fmt.Errorf("timezone offset %d out of range", offset)
	}
	p := s.Get(userID)
	p.TimezoneOffset = offset
	s.replace(p)
	return nil
}

// SetConfluence sets the signal-agreement threshold and its scope.
func (s *Store) SetConfluence(userID string, threshold int, scope model.ConfluenceScope) error {
	if threshold < 0 || threshold > 3 {
		return fmt.Errorf("confluence threshold %d out of range (0-3)", threshold)
	}
	switch scope {
	case model.ConfluenceAlerts, model.ConfluenceDigests, model.ConfluenceBoth:
	default:
		return fmt.Errorf("unknown confluence scope %q", scope)
	}
	p := s.Get(userID)
	p.ConfluenceThreshold = threshold
	p.ConfluenceScope = scope
	s.replace(p)
	return nil
}

// ParseMuteDuration accepts the command-surface forms "30min", "2h", "1d".
func ParseMuteDuration(arg string) (time.Duration, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	var n int
	var unit string
	if _, err := fmt.Sscanf(arg, "%d%s", &n, &unit); err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, arg)
	}
	switch unit {
	case "min", "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: unit %q", ErrBadDuration, unit)
	}
}
