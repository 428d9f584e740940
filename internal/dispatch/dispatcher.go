package dispatch

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"MetalWatch/internal/model"
	"MetalWatch/internal/prefs"
	"MetalWatch/internal/storage"
)

// Outbound is the messaging collaborator. A failed send is retried once
// by the dispatcher, then dropped with a logged record.
type Outbound interface {
	Send(ctx context.Context, userID, text string) error
}

// Formatter composes user-facing message text. Implemented by the
// notifier package.
type Formatter interface {
	Movement(ev model.MovementEvent, enr model.Enrichment, withEnrichment bool, pref model.UserPreference) string
	Signal(ev model.SignalEvent, pref model.UserPreference) string
	Broadcast(b Broadcast, pref model.UserPreference) string
}

// Broadcast is a synthetic dispatcher payload for digests and calendar
// reminders. It flows through the same per-user preference checks as a
// movement alert but is exempt from the rate-limit ledger.
type Broadcast struct {
	Kind       model.AlertKind
	Instrument string // optional; empty for multi-instrument digests
	Title      string
	Body       string

	// Confluence carries agreeing-signal counts per instrument so the
	// formatter can apply each user's own threshold to digest sections.
	Confluence map[string]int
}

// Result reports the per-user outcome of one submission.
type Result struct {
	AlertID    string
	Sent       []string
	Suppressed map[string]model.SuppressReason
}

// Dispatcher is the central orchestrator: it consumes classified events
// and enrichment, applies per-user preference filtering, deduplicates
// via the ledger, and hands approved alerts to the outbound channel.
type Dispatcher struct {
	prefs  *prefs.Store
	ledger *Ledger
	out    Outbound
	format Formatter
	store  storage.Store

	now func() time.Time // test hook
}

func NewDispatcher(p *prefs.Store, l *Ledger, out Outbound, f Formatter, st storage.Store) *Dispatcher {
	return &Dispatcher{prefs: p, ledger: l, out: out, format: f, store: st, now: time.Now}
}

// Submit runs one classified movement event through the pipeline. The
// ledger gates generation once globally; mute, filter, and pause are then
// evaluated independently per subscriber, so one event can be sent to
// some users and suppressed for others.
func (d *Dispatcher) Submit(ctx context.Context, ev model.MovementEvent, enr model.Enrichment) Result {
	now := d.now().UTC()
	res := Result{AlertID: uuid.NewString(), Suppressed: make(map[string]model.SuppressReason)}

	acquired := d.ledger.TryAcquire(ev.Instrument, ev.Severity, now)

	d.prefs.Each(func(p model.UserPreference) {
		reason := d.userSuppression(p, ev.Instrument, now)
		if reason == model.SuppressNone && !acquired {
			reason = model.SuppressRateLimited
		}
		if reason != model.SuppressNone {
			d.record(res.AlertID, p.UserID, ev.Instrument, ev.Severity, model.AlertMovement, false, reason, now)
			res.Suppressed[p.UserID] = reason
			return
		}

		withEnrichment := !p.ConfluenceAppliesTo(false) ||
			enr.ConfluenceCount(ev.Direction()) >= p.ConfluenceThreshold
		text := d.format.Movement(ev, enr, withEnrichment, p)

		if d.deliver(ctx, p.UserID, text) {
			d.record(res.AlertID, p.UserID, ev.Instrument, ev.Severity, model.AlertMovement, true, model.SuppressNone, now)
			res.Sent = append(res.Sent, p.UserID)
		} else {
			d.record(res.AlertID, p.UserID, ev.Instrument, ev.Severity, model.AlertMovement, false, model.SuppressDelivery, now)
			res.Suppressed[p.UserID] = model.SuppressDelivery
		}
	})
	return res
}

// SubmitSignal delivers a level or whale signal. The pipeline matches
// Submit, but the ledger is keyed by the event's own (instrument, kind)
// key so level and movement alerts rate-limit independently.
func (d *Dispatcher) SubmitSignal(ctx context.Context, ev model.SignalEvent) Result {
	now := d.now().UTC()
	res := Result{AlertID: uuid.NewString(), Suppressed: make(map[string]model.SuppressReason)}

	acquired := d.ledger.TryAcquire(ev.LedgerKey(), ev.Severity, now)

	d.prefs.Each(func(p model.UserPreference) {
		reason := d.userSuppression(p, ev.Instrument, now)
		if reason == model.SuppressNone && !acquired {
			reason = model.SuppressRateLimited
		}
		if reason != model.SuppressNone {
			d.record(res.AlertID, p.UserID, ev.Instrument, ev.Severity, model.AlertSignal, false, reason, now)
			res.Suppressed[p.UserID] = reason
			return
		}

		text := d.format.Signal(ev, p)
		if d.deliver(ctx, p.UserID, text) {
			d.record(res.AlertID, p.UserID, ev.Instrument, ev.Severity, model.AlertSignal, true, model.SuppressNone, now)
			res.Sent = append(res.Sent, p.UserID)
		} else {
			d.record(res.AlertID, p.UserID, ev.Instrument, ev.Severity, model.AlertSignal, false, model.SuppressDelivery, now)
			res.Suppressed[p.UserID] = model.SuppressDelivery
		}
	})
	return res
}

// SubmitBroadcast delivers a digest or reminder. Per-user mute, filter,
// and pause still apply; the rate-limit ledger does not, since scheduled
// broadcasts are non-repeating within their own cadence.
func (d *Dispatcher) SubmitBroadcast(ctx context.Context, b Broadcast) Result {
	now := d.now().UTC()
	res := Result{AlertID: uuid.NewString(), Suppressed: make(map[string]model.SuppressReason)}

	d.prefs.Each(func(p model.UserPreference) {
		reason := d.userSuppression(p, b.Instrument, now)
		if reason != model.SuppressNone {
			d.record(res.AlertID, p.UserID, b.Instrument, "", b.Kind, false, reason, now)
			res.Suppressed[p.UserID] = reason
			return
		}

		text := d.format.Broadcast(b, p)
		if d.deliver(ctx, p.UserID, text) {
			d.record(res.AlertID, p.UserID, b.Instrument, "", b.Kind, true, model.SuppressNone, now)
			res.Sent = append(res.Sent, p.UserID)
		} else {
			d.record(res.AlertID, p.UserID, b.Instrument, "", b.Kind, false, model.SuppressDelivery, now)
			res.Suppressed[p.UserID] = model.SuppressDelivery
		}
	})
	return res
}

// userSuppression applies the per-user rules in order; the first match
// wins. An empty instrument (multi-instrument digest) skips the filter
// check.
func (d *Dispatcher) userSuppression(p model.UserPreference, instrument string, now time.Time) model.SuppressReason {
	switch {
	case p.Paused:
		return model.SuppressPaused
	case p.Muted(now):
		return model.SuppressMuted
	case instrument != "" && !p.Wants(instrument):
		return model.SuppressFiltered
	default:
		return model.SuppressNone
	}
}

// deliver sends with a single retry. No unbounded retry queue: a second
// failure drops the message.
func (d *Dispatcher) deliver(ctx context.Context, userID, text string) bool {
	if err := d.out.Send(ctx, userID, text); err != nil {
		log.Printf("[WARN] send to %s failed, retrying once: %v", userID, err)
		if err := d.out.Send(ctx, userID, text); err != nil {
			log.Printf("[ERROR] send to %s failed twice, dropping: %v", userID, err)
			if lerr := d.store.LogError("dispatch", "send", err.Error()); lerr != nil {
				log.Printf("[ERROR] log delivery failure: %v", lerr)
			}
			return false
		}
	}
	return true
}

func (d *Dispatcher) record(alertID, userID, instrument string, sev model.Severity, kind model.AlertKind, sent bool, reason model.SuppressReason, at time.Time) {
	if err := d.store.RecordDecision(model.Decision{
		AlertID: alertID, UserID: userID, Instrument: instrument,
		Severity: sev, Kind: kind, Sent: sent, Reason: reason, At: at,
	}); err != nil {
		log.Printf("[ERROR] record decision: %v", err)
	}
}
