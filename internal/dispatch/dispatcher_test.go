package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MetalWatch/internal/model"
	"MetalWatch/internal/prefs"
	"MetalWatch/internal/storage"
)

type fakeOutbound struct {
	mu       sync.Mutex
	sent     []string // "user:text"
	failures map[string]int // remaining failures per user
}

func (f *fakeOutbound) Send(_ context.Context, userID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[userID] > 0 {
		f.failures[userID]--
		return errors.New("transport down")
	}
	f.sent = append(f.sent, userID+":"+text)
	return nil
}

func (f *fakeOutbound) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type plainFormatter struct{}

func (plainFormatter) Movement(ev model.MovementEvent, _ model.Enrichment, withEnrichment bool, _ model.UserPreference) string {
	if withEnrichment {
		return fmt.Sprintf("%s %s enriched", ev.Instrument, ev.Severity)
	}
	return fmt.Sprintf("%s %s", ev.Instrument, ev.Severity)
}

func (plainFormatter) Signal(ev model.SignalEvent, _ model.UserPreference) string {
	return fmt.Sprintf("%s %s %s", ev.Instrument, ev.Kind, ev.Severity)
}

func (plainFormatter) Broadcast(b Broadcast, _ model.UserPreference) string {
	return b.Title
}

func newTestDispatcher(t *testing.T, users ...string) (*Dispatcher, *prefs.Store, *fakeOutbound, *time.Time) {
	t.Helper()
	st := storage.NewNoopStore()
	ps, err := prefs.NewStore(st)
	require.NoError(t, err)
	for _, u := range users {
		ps.Get(u)
	}
	ledger, err := NewLedger(st)
	require.NoError(t, err)

	out := &fakeOutbound{failures: make(map[string]int)}
	d := NewDispatcher(ps, ledger, out, plainFormatter{}, st)

	// Anchored to wall time because prefs.Mute stamps mute-until with
	// time.Now; tests advance it through the returned pointer.
	now := time.Now().UTC()
	d.now = func() time.Time { return now }
	return d, ps, out, &now
}

func event(sev model.Severity) model.MovementEvent {
	return model.MovementEvent{
		Instrument:     "XAU",
		Severity:       sev,
		ChangePercent:  2.5,
		ReferencePrice: 2000,
		CurrentPrice:   2050,
	}
}

func TestSubmit_SentToSubscriber(t *testing.T) {
	d, _, out, _ := newTestDispatcher(t, "u1")
	res := d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Equal(t, []string{"u1"}, res.Sent)
	assert.Equal(t, 1, out.count())
}

func TestSubmit_PausedWinsOverEverything(t *testing.T) {
	d, ps, out, _ := newTestDispatcher(t, "u1")
	ps.SetPaused("u1", true)
	ps.Mute("u1", time.Hour) // pause is checked first

	res := d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Empty(t, res.Sent)
	assert.Equal(t, model.SuppressPaused, res.Suppressed["u1"])
	assert.Zero(t, out.count())
}

func TestSubmit_MutedUserReceivesNothingUntilMutePasses(t *testing.T) {
	d, ps, out, now := newTestDispatcher(t, "u1")
	_, err := ps.Mute("u1", 30*time.Minute)
	require.NoError(t, err)

	res := d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Equal(t, model.SuppressMuted, res.Suppressed["u1"])
	assert.Zero(t, out.count())

	// Once mute-until passes, the next qualifying alert goes through
	// immediately (the tier interval has also elapsed by then).
	*now = now.Add(31 * time.Minute)
	res = d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Equal(t, []string{"u1"}, res.Sent)
}

func TestSubmit_FilteredInstrument(t *testing.T) {
	d, ps, _, _ := newTestDispatcher(t, "u1", "u2")
	require.NoError(t, ps.SetFilter("u1", []string{"XAG"}))

	res := d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Equal(t, model.SuppressFiltered, res.Suppressed["u1"])
	assert.Equal(t, []string{"u2"}, res.Sent)
}

func TestSubmit_RateLimitPerTier(t *testing.T) {
	d, _, out, now := newTestDispatcher(t, "u1")

	res := d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	require.Len(t, res.Sent, 1)

	// 10 minutes later: inside the 15-minute critical interval.
	*now = now.Add(10 * time.Minute)
	res = d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Equal(t, model.SuppressRateLimited, res.Suppressed["u1"])

	// A different tier for the same instrument is an independent key.
	res = d.Submit(context.Background(), event(model.SeverityImportant), model.Enrichment{})
	assert.Len(t, res.Sent, 1)

	// Past the interval the critical key frees up.
	*now = now.Add(6 * time.Minute)
	res = d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Len(t, res.Sent, 1)
	assert.Equal(t, 3, out.count())
}

func TestSubmit_ConcurrentCyclesSendAtMostOnce(t *testing.T) {
	d, _, out, _ := newTestDispatcher(t, "u1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, out.count(), "ledger must admit exactly one concurrent cycle")
}

func TestSubmit_EnrichmentGatedByConfluence(t *testing.T) {
	d, ps, out, _ := newTestDispatcher(t, "u1")
	require.NoError(t, ps.SetConfluence("u1", 2, model.ConfluenceAlerts))

	enr := model.Enrichment{TechnicalVote: 1, InstitutionalVote: 1}
	d.Submit(context.Background(), event(model.SeverityCritical), enr)

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.sent, 1)
	assert.Contains(t, out.sent[0], "enriched")
}

func TestSubmit_EnrichmentOmittedBelowConfluence(t *testing.T) {
	d, ps, out, _ := newTestDispatcher(t, "u1")
	require.NoError(t, ps.SetConfluence("u1", 3, model.ConfluenceAlerts))

	enr := model.Enrichment{TechnicalVote: 1} // one agreeing family of three required
	d.Submit(context.Background(), event(model.SeverityCritical), enr)

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.sent, 1)
	assert.NotContains(t, out.sent[0], "enriched")
}

func TestSubmit_DeliveryRetriedOnceThenDropped(t *testing.T) {
	d, _, out, _ := newTestDispatcher(t, "u1")
	out.failures["u1"] = 1 // first attempt fails, retry succeeds

	res := d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Equal(t, []string{"u1"}, res.Sent)

	d2, _, out2, _ := newTestDispatcher(t, "u1")
	out2.failures["u1"] = 2 // both attempts fail
	res = d2.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Equal(t, model.SuppressDelivery, res.Suppressed["u1"])
	assert.Zero(t, out2.count())
}

func TestBroadcast_ExemptFromLedger(t *testing.T) {
	d, _, out, now := newTestDispatcher(t, "u1")

	b := Broadcast{Kind: model.AlertDigest, Title: "digest"}
	d.SubmitBroadcast(context.Background(), b)

	// Five minutes apart: both digests deliver.
	*now = now.Add(5 * time.Minute)
	d.SubmitBroadcast(context.Background(), b)

	assert.Equal(t, 2, out.count())
}

func TestBroadcast_StillSubjectToPreferences(t *testing.T) {
	d, ps, out, _ := newTestDispatcher(t, "u1", "u2", "u3")
	ps.SetPaused("u1", true)
	require.NoError(t, ps.SetFilter("u2", []string{"XAG"}))

	// Instrument-typed reminder: u2's filter applies.
	res := d.SubmitBroadcast(context.Background(), Broadcast{
		Kind: model.AlertReminder, Instrument: "XAU", Title: "lembrete",
	})
	assert.Equal(t, model.SuppressPaused, res.Suppressed["u1"])
	assert.Equal(t, model.SuppressFiltered, res.Suppressed["u2"])
	assert.Equal(t, []string{"u3"}, res.Sent)

	// Instrument-less digest: the filter check is skipped.
	res = d.SubmitBroadcast(context.Background(), Broadcast{
		Kind: model.AlertDigest, Title: "digest",
	})
	assert.Equal(t, []string{"u2", "u3"}, res.Sent)
	assert.Equal(t, 3, out.count())
}

func TestSignal_LedgerIndependentFromMovement(t *testing.T) {
	d, _, out, _ := newTestDispatcher(t, "u1")

	// A critical movement alert does not consume the level-break key.
	res := d.Submit(context.Background(), event(model.SeverityCritical), model.Enrichment{})
	assert.Equal(t, []string{"u1"}, res.Sent)

	res = d.SubmitSignal(context.Background(), model.SignalEvent{
		Instrument: "XAU", Kind: model.SignalLevelBreak,
		Severity: model.SeverityCritical, Direction: 1,
		LevelName: "pivot_r1", LevelValue: 2040, CurrentPrice: 2050,
	})
	assert.Equal(t, []string{"u1"}, res.Sent)
	assert.Equal(t, 2, out.count())
}

func TestSignal_RateLimitedPerKind(t *testing.T) {
	d, _, out, now := newTestDispatcher(t, "u1")

	breakEv := model.SignalEvent{
		Instrument: "XAU", Kind: model.SignalLevelBreak,
		Severity: model.SeverityCritical, LevelName: "pivot_r1", LevelValue: 2040, CurrentPrice: 2050,
	}
	res := d.SubmitSignal(context.Background(), breakEv)
	assert.Equal(t, []string{"u1"}, res.Sent)

	// Same kind inside the critical interval: suppressed.
	*now = now.Add(10 * time.Minute)
	res = d.SubmitSignal(context.Background(), breakEv)
	assert.Equal(t, model.SuppressRateLimited, res.Suppressed["u1"])

	// A whale signal on the same instrument uses its own key.
	res = d.SubmitSignal(context.Background(), model.SignalEvent{
		Instrument: "XAU", Kind: model.SignalWhale,
		Severity: model.SeverityImportant, Direction: 1,
		Whale: &model.WhaleSummary{Transfers: 3, TotalUSD: 5_000_000, NetDirection: 1},
	})
	assert.Equal(t, []string{"u1"}, res.Sent)
	assert.Equal(t, 3, out.count())
}
