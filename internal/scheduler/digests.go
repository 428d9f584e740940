package scheduler

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"MetalWatch/internal/dispatch"
	"MetalWatch/internal/institutional"
	"MetalWatch/internal/model"
	"MetalWatch/internal/notifier"
)

// digest instrument groups, in display order.
var (
	digestAsiaTickers = []string{"XAU", "XAG", "FE", "XAL"}
	digestEUUSTickers = []string{"XAU", "XAG", "XPT", "XCU"}
)

func (s *Scheduler) digestAsiaJob() {
	body := s.priceLines(digestAsiaTickers)
	if body == "" {
		log.Println("[WARN] asia digest skipped: no prices yet")
		return
	}
	if hl := s.highlights(4); len(hl) > 0 {
		body += "\n📌 Destaques:\n" + branchList(hl)
	}
	s.sendDigest("🌏 DIGEST | Fechamento Ásia", body)
}

func (s *Scheduler) digestEUUSJob() {
	body := s.priceLines(digestEUUSTickers)
	if body == "" {
		log.Println("[WARN] eu/us digest skipped: no prices yet")
		return
	}
	if hl := s.highlights(4); len(hl) > 0 {
		body += "\n📌 Destaques:\n" + branchList(hl)
	}
	if up := s.upcomingEvents(36*time.Hour, 3); len(up) > 0 {
		body += "\n📅 Amanhã:\n" + branchList(up)
	}
	s.sendDigest("🌍 DIGEST | Fechamento EU/US", body)
}

func (s *Scheduler) digestWeeklyJob() {
	var b strings.Builder
	b.WriteString("Performance da semana:\n")
	wrote := false
	for _, ticker := range model.Tickers() {
		pct, ok := s.weeklyChange(ticker)
		if !ok {
			continue
		}
		inst := model.Instruments[ticker]
		b.WriteString(fmt.Sprintf("%s %s: %s\n", inst.Emoji, inst.DisplayName(), notifier.FormatPercent(pct)))
		wrote = true
	}
	if !wrote {
		log.Println("[WARN] weekly digest skipped: no history yet")
		return
	}

	if cot := s.cotHighlights(3); len(cot) > 0 {
		b.WriteString("\n🏦 COT Highlights:\n" + branchList(cot))
	}
	if up := s.upcomingEvents(7*24*time.Hour, 5); len(up) > 0 {
		b.WriteString("\n📅 Próxima semana:\n" + branchList(up))
	}
	s.sendDigest("📊 DIGEST | Resumo Semanal", b.String())
}

func (s *Scheduler) sendDigest(title, body string) {
	b := dispatch.Broadcast{
		Kind:       model.AlertDigest,
		Title:      title,
		Body:       strings.TrimRight(body, "\n"),
		Confluence: s.confluenceCounts(),
	}
	res := s.Dispatcher.SubmitBroadcast(s.Ctx, b)
	log.Printf("[INFO] digest %q sent to %d users, suppressed %d", title, len(res.Sent), len(res.Suppressed))
}

// priceLines renders emoji-price-change rows for the given instruments,
// skipping those without a tick yet.
func (s *Scheduler) priceLines(tickers []string) string {
	var b strings.Builder
	for _, ticker := range tickers {
		tick, ok := s.Series.LatestPrice(ticker)
		if !ok {
			continue
		}
		inst := model.Instruments[ticker]
		line := fmt.Sprintf("%s %s: %s", inst.Emoji, inst.DisplayName(), notifier.FormatPrice(tick.Price))
		if pct, ok := s.dayChange(ticker); ok {
			line += fmt.Sprintf(" (%s)", notifier.FormatPercent(pct))
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// dayChange is the percent move against the tick 24h back.
func (s *Scheduler) dayChange(ticker string) (float64, bool) {
	snap, err := s.Series.Snapshot(ticker)
	if err != nil {
		return 0, false
	}
	latest, ok := snap.Latest()
	if !ok {
		return 0, false
	}
	ref, ok := snap.At(latest.Time.Add(-24 * time.Hour))
	if !ok || ref.Price == 0 {
		return 0, false
	}
	return (latest.Price - ref.Price) / ref.Price * 100, true
}

// weeklyChange compares the latest price to the close seven days back.
func (s *Scheduler) weeklyChange(ticker string) (float64, bool) {
	snap, err := s.Series.Snapshot(ticker)
	if err != nil {
		return 0, false
	}
	latest, ok := snap.Latest()
	if !ok || len(snap.DailyCloses) == 0 {
		return 0, false
	}
	cutoff := latest.Time.Add(-7 * 24 * time.Hour)
	var ref float64
	for _, dc := range snap.DailyCloses {
		if dc.Day.After(cutoff) {
			break
		}
		ref = dc.Close
	}
	if ref == 0 {
		return 0, false
	}
	return (latest.Price - ref) / ref * 100, true
}

// highlights picks the biggest absolute 24h movers.
func (s *Scheduler) highlights(limit int) []string {
	type mover struct {
		ticker string
		pct    float64
	}
	var movers []mover
	for _, ticker := range model.Tickers() {
		if pct, ok := s.dayChange(ticker); ok && (pct >= 0.5 || pct <= -0.5) {
			movers = append(movers, mover{ticker, pct})
		}
	}
	sort.Slice(movers, func(i, j int) bool {
		ai, aj := movers[i].pct, movers[j].pct
		if ai < 0 {
			ai = -ai
		}
		if aj < 0 {
			aj = -aj
		}
		return ai > aj
	})
	if len(movers) > limit {
		movers = movers[:limit]
	}
	out := make([]string, len(movers))
	for i, m := range movers {
		inst := model.Instruments[m.ticker]
		out[i] = fmt.Sprintf("%s %s %s em 24h", inst.Emoji, inst.Name, notifier.FormatPercent(m.pct))
	}
	return out
}

// cotHighlights lists crowded positioning across the complex.
func (s *Scheduler) cotHighlights(limit int) []string {
	var out []string
	for _, ticker := range model.Tickers() {
		snap, ok := s.Fuser.Latest(ticker)
		if !ok || snap.COT == nil {
			continue
		}
		if !institutional.CrowdedCOT(*snap.COT) {
			continue
		}
		inst := model.Instruments[ticker]
		out = append(out, fmt.Sprintf("%s: MM net %+d (%+d na semana) ⚠️",
			inst.Name, snap.COT.ManagedMoneyNet, snap.COT.WeeklyChange))
		if len(out) == limit {
			break
		}
	}
	return out
}

func (s *Scheduler) upcomingEvents(window time.Duration, limit int) []string {
	now := time.Now().UTC()
	var out []string
	for _, ev := range s.Calendar.Upcoming(now, limit) {
		if ev.At.Sub(now) > window {
			continue
		}
		out = append(out, fmt.Sprintf("%s (%s UTC)", ev.Title, ev.At.UTC().Format("02/01 15:04")))
	}
	return out
}

// confluenceCounts maps each instrument to its agreeing-signal count in
// the direction of its recent drift, for the digest confluence section.
func (s *Scheduler) confluenceCounts() map[string]int {
	counts := make(map[string]int)
	for _, ticker := range model.Tickers() {
		tick, ok := s.Series.LatestPrice(ticker)
		if !ok {
			continue
		}
		direction := 1
		if pct, ok := s.dayChange(ticker); ok && pct < 0 {
			direction = -1
		}
		techVote := s.Analyzer.TechnicalVote(ticker, tick.Price)
		enr := s.Fuser.Enrich(ticker, techVote)
		if n := enr.ConfluenceCount(direction); n > 0 {
			counts[ticker] = n
		}
	}
	return counts
}

func branchList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		branch := "├─"
		if i == len(items)-1 {
			branch = "└─"
		}
		b.WriteString(branch + " " + item + "\n")
	}
	return b.String()
}
