package notifier

import (
	"fmt"
	"strings"
	"time"

	"MetalWatch/internal/dispatch"
	"MetalWatch/internal/institutional"
	"MetalWatch/internal/model"
)

// MessageFormatter renders outbound Telegram text in Portuguese, with
// timestamps localized to each subscriber's timezone offset.
type MessageFormatter struct{}

// FormatPrice renders a price with thousands separators and two decimals.
func FormatPrice(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	parts := strings.SplitN(s, ".", 2)
	intPart := parts[0]
	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s.%s", sign, b.String(), parts[1])
}

// FormatPercent renders a signed percentage.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%+.2f%%", v)
}

func windowLabel(w time.Duration) string {
	switch {
	case w <= 15*time.Minute:
		return "15min"
	case w <= time.Hour:
		return "1h"
	default:
		return "24h"
	}
}

// Stamp renders the event time in UTC plus the user's local offset.
func Stamp(t time.Time, pref model.UserPreference) string {
	utc := t.UTC()
	local := utc.Add(time.Duration(pref.TimezoneOffset) * time.Hour)
	return fmt.Sprintf("🕐 %s UTC | %s (UTC%+d)",
		utc.Format("15:04"), local.Format("15:04"), pref.TimezoneOffset)
}

// Movement renders one classified price movement. The enrichment block is
// appended only when the dispatcher decided the user's confluence gate
// passes.
func (MessageFormatter) Movement(ev model.MovementEvent, enr model.Enrichment, withEnrichment bool, pref model.UserPreference) string {
	inst := model.Instruments[ev.Instrument]

	movimento, verbo, arrow := "ALTA", "Alta", "📈"
	if ev.Direction() < 0 {
		movimento, verbo, arrow = "QUEDA", "Queda", "📉"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s %s | %s %s\n\n",
		ev.Severity.Emoji(), ev.Severity, movimento, inst.DisplayName(), inst.Emoji))
	pct := ev.ChangePercent
	if pct < 0 {
		pct = -pct
	}
	b.WriteString(fmt.Sprintf("%s %s de %.2f%% em %s\n", arrow, verbo, pct, windowLabel(ev.Window)))
	b.WriteString(fmt.Sprintf("💰 Preço: %s (ref %s)\n", FormatPrice(ev.CurrentPrice), FormatPrice(ev.ReferencePrice)))

	if withEnrichment {
		writeEnrichment(&b, ev, enr)
	}

	b.WriteString("\n" + Stamp(ev.Time, pref))
	return b.String()
}

func writeEnrichment(b *strings.Builder, ev model.MovementEvent, enr model.Enrichment) {
	lines := enrichmentLines(enr)
	if len(lines) == 0 && enr.LLMNote == "" {
		return
	}
	b.WriteString(fmt.Sprintf("\n📊 Contexto (confluência %d/3):\n", enr.ConfluenceCount(ev.Direction())))
	for i, line := range lines {
		branch := "├─"
		if i == len(lines)-1 && enr.LLMNote == "" {
			branch = "└─"
		}
		b.WriteString(fmt.Sprintf("%s %s\n", branch, line))
	}
	if enr.LLMNote != "" {
		b.WriteString(fmt.Sprintf("└─ 💡 %s\n", enr.LLMNote))
	}
}

func enrichmentLines(enr model.Enrichment) []string {
	var lines []string
	snap := enr.Snapshot
	if snap == nil {
		return lines
	}
	if c := snap.COT; c != nil {
		line := fmt.Sprintf("COT: MM net %+d (%+d na semana)", c.ManagedMoneyNet, c.WeeklyChange)
		if institutional.CrowdedCOT(*c) {
			line += " ⚠️ crowded"
		}
		lines = append(lines, line)
	}
	if e := snap.ETF; e != nil && e.DeltaUSD != 0 {
		verb := "entrada"
		if e.DeltaUSD < 0 {
			verb = "saída"
		}
		line := fmt.Sprintf("ETF (%s): %s de %s", strings.Join(e.Symbols, "/"), verb, FormatLargeUSD(e.DeltaUSD))
		if institutional.SignificantETFFlow(*e) {
			line += " 🔥"
		}
		lines = append(lines, line)
	}
	if w := snap.Whale; w != nil && w.Transfers > 0 {
		dir := "misto"
		switch w.NetDirection {
		case 1:
			dir = "acumulação"
		case -1:
			dir = "distribuição"
		}
		lines = append(lines, fmt.Sprintf("🐋 On-chain: %d transferências, %s (%s)",
			w.Transfers, FormatLargeUSD(w.TotalUSD), dir))
	}
	return lines
}

// Signal renders a level break, level proximity, or whale signal.
func (MessageFormatter) Signal(ev model.SignalEvent, pref model.UserPreference) string {
	inst := model.Instruments[ev.Instrument]

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s %s | %s %s\n\n",
		ev.Severity.Emoji(), ev.Severity, strings.ToUpper(string(ev.Kind)), inst.DisplayName(), inst.Emoji))

	switch ev.Kind {
	case model.SignalLevelBreak:
		sentido := "para cima"
		if ev.Direction < 0 {
			sentido = "para baixo"
		}
		b.WriteString(fmt.Sprintf("💥 Preço rompeu %s (%s) %s\n", levelLabel(ev.LevelName), FormatPrice(ev.LevelValue), sentido))
		b.WriteString(fmt.Sprintf("💰 Preço: %s\n", FormatPrice(ev.CurrentPrice)))
	case model.SignalLevelProximity:
		b.WriteString(fmt.Sprintf("🎯 Preço a %.2f%% de %s (%s)\n", ev.DistancePct, levelLabel(ev.LevelName), FormatPrice(ev.LevelValue)))
		b.WriteString(fmt.Sprintf("💰 Preço: %s\n", FormatPrice(ev.CurrentPrice)))
	case model.SignalWhale:
		if w := ev.Whale; w != nil {
			dir := "misto"
			switch w.NetDirection {
			case 1:
				dir = "acumulação"
			case -1:
				dir = "distribuição"
			}
			b.WriteString(fmt.Sprintf("🐋 %d transferências on-chain, %s (%s)\n",
				w.Transfers, FormatLargeUSD(w.TotalUSD), dir))
		}
	}

	b.WriteString("\n" + Stamp(ev.Time, pref))
	return b.String()
}

// levelLabel turns internal level names into the user-facing form.
func levelLabel(name string) string {
	switch name {
	case "pivot_pp":
		return "Pivô"
	case "pivot_r1", "pivot_r2", "pivot_r3", "pivot_s1", "pivot_s2", "pivot_s3":
		return strings.ToUpper(strings.TrimPrefix(name, "pivot_"))
	case "sma_50":
		return "SMA50"
	case "sma_200":
		return "SMA200"
	case "vwap":
		return "VWAP"
	case "max_52w":
		return "máxima de 52 semanas"
	case "min_52w":
		return "mínima de 52 semanas"
	default:
		return name
	}
}

// FormatLargeUSD renders dollar amounts in compact M/B notation.
func FormatLargeUSD(v float64) string {
	abs := v
	sign := ""
	if abs < 0 {
		abs = -abs
		sign = "-"
	}
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%s$%.2fB", sign, abs/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%s$%.1fM", sign, abs/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%s$%.0fK", sign, abs/1e3)
	default:
		return fmt.Sprintf("%s$%.0f", sign, abs)
	}
}

// Broadcast renders a digest or reminder. The body is shared; only the
// timestamp is per-user.
func (MessageFormatter) Broadcast(bc dispatch.Broadcast, pref model.UserPreference) string {
	var b strings.Builder
	b.WriteString(bc.Title)
	if bc.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(bc.Body)
	}
	if section := confluenceSection(bc.Confluence, pref); section != "" {
		b.WriteString("\n\n")
		b.WriteString(section)
	}
	b.WriteString("\n\n" + Stamp(time.Now(), pref))
	return b.String()
}

// confluenceSection lists instruments whose agreeing-signal count clears
// the user's own bar. Users whose scope excludes digests see every
// instrument with at least one agreeing family.
func confluenceSection(counts map[string]int, pref model.UserPreference) string {
	if len(counts) == 0 {
		return ""
	}
	min := 1
	if pref.ConfluenceAppliesTo(true) {
		min = pref.ConfluenceThreshold
	}
	var lines []string
	for _, ticker := range model.Tickers() {
		n, ok := counts[ticker]
		if !ok || n < min {
			continue
		}
		inst := model.Instruments[ticker]
		lines = append(lines, fmt.Sprintf("├─ %s %s: %d/3 sinais alinhados", inst.Emoji, inst.Name, n))
	}
	if len(lines) == 0 {
		return ""
	}
	lines[len(lines)-1] = "└─" + strings.TrimPrefix(lines[len(lines)-1], "├─")
	return "🔭 Confluências:\n" + strings.Join(lines, "\n")
}
