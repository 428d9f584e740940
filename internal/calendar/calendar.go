// Package calendar tracks scheduled macro events (FOMC, CPI, COT releases)
// and emits reminders at fixed offsets before each one.
package calendar

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ReminderOffsets are how far ahead of each event a reminder fires.
var ReminderOffsets = []time.Duration{
	7 * 24 * time.Hour,
	24 * time.Hour,
	time.Hour,
}

// OffsetLabel renders an offset for user-facing reminder text.
func OffsetLabel(d time.Duration) string {
	switch {
	case d >= 7*24*time.Hour:
		return "7 dias"
	case d >= 24*time.Hour:
		return "1 dia"
	default:
		return "1 hora"
	}
}

// Event is one entry on the economic agenda. Instrument is optional; when
// set, per-user instrument filters apply to its reminders.
type Event struct {
	ID         string
	Title      string
	At         time.Time
	Instrument string
}

// Reminder is a single pending fire: one (event, offset) pair.
type Reminder struct {
	Event  Event
	Offset time.Duration
	FireAt time.Time
}

// reminderHeap orders pending reminders by fire time, earliest first.
type reminderHeap []Reminder

func (h reminderHeap) Len() int            { return len(h) }
func (h reminderHeap) Less(i, j int) bool  { return h[i].FireAt.Before(h[j].FireAt) }
func (h reminderHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *reminderHeap) Push(x interface{}) { *h = append(*h, x.(Reminder)) }
func (h *reminderHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Notifier holds the agenda and the pending reminder heap. One heap covers
// every event; Due pops whatever has come ripe instead of running a timer
// per trigger.
type Notifier struct {
	mu      sync.Mutex
	events  map[string]Event
	pending reminderHeap
}

func NewNotifier() *Notifier {
	return &Notifier{events: make(map[string]Event)}
}

// Add registers an event and queues its not-yet-past reminders. Re-adding
// an ID replaces the event but does not rebuild already-queued reminders
// for the old time; callers should use fresh IDs for rescheduled events.
func (n *Notifier) Add(ev Event, now time.Time) {
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%s@%d", ev.Title, ev.At.Unix())
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, dup := n.events[ev.ID]; dup {
		return
	}
	n.events[ev.ID] = ev
	for _, off := range ReminderOffsets {
		fire := ev.At.Add(-off)
		if fire.Before(now) {
			continue
		}
		heap.Push(&n.pending, Reminder{Event: ev, Offset: off, FireAt: fire})
	}
}

// Due pops every reminder whose fire time is at or before now. Events whose
// own time has passed are dropped from the agenda once their last reminder
// clears.
func (n *Notifier) Due(now time.Time) []Reminder {
	n.mu.Lock()
	defer n.mu.Unlock()

	var due []Reminder
	for len(n.pending) > 0 && !n.pending[0].FireAt.After(now) {
		due = append(due, heap.Pop(&n.pending).(Reminder))
	}
	for id, ev := range n.events {
		if ev.At.Before(now) && !n.hasPendingLocked(id) {
			delete(n.events, id)
		}
	}
	return due
}

func (n *Notifier) hasPendingLocked(id string) bool {
	for _, r := range n.pending {
		if r.Event.ID == id {
			return true
		}
	}
	return false
}

// Next reports the earliest pending fire time, if any.
func (n *Notifier) Next() (time.Time, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.pending) == 0 {
		return time.Time{}, false
	}
	return n.pending[0].FireAt, true
}

// Upcoming lists future events in chronological order for the agenda
// command, capped at limit (limit <= 0 means all).
func (n *Notifier) Upcoming(now time.Time, limit int) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	evs := make([]Event, 0, len(n.events))
	for _, ev := range n.events {
		if ev.At.After(now) {
			evs = append(evs, ev)
		}
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].At.Before(evs[j].At) })
	if limit > 0 && len(evs) > limit {
		evs = evs[:limit]
	}
	return evs
}
