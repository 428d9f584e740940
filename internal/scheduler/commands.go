package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MetalWatch/internal/dispatch"
	"MetalWatch/internal/institutional"
	"MetalWatch/internal/model"
	"MetalWatch/internal/notifier"
	"MetalWatch/internal/prefs"
	"MetalWatch/internal/storage"
)

const helpText = `🤖 MetalWatch — comandos

📊 Mercado
/ativos — preços de todos os metais
/preco [metal] — preço de um metal
/resumo [metal] — técnico + institucional
/cot — posicionamento COT dos futuros
/digest — digest sob demanda
/agenda — próximos eventos macro

🔔 Alertas
/silenciar [tempo] — pausa alertas (ex: 2h, 30min, 1d)
/ativar — remove o silêncio
/pausartudo — pausa tudo indefinidamente
/despausar — retoma
/filtrar [metais] — só esses metais (ou "todos")
/timezone [offset] — ex: /timezone -3
/confluencia [n] [alertas|digests|ambos] — mínimo de sinais

ℹ️ Sistema
/status — saúde do bot
/erros — últimos erros`

// HandleCommand processes one user command and returns the reply text.
// An empty reply means nothing is sent back.
func (s *Scheduler) HandleCommand(userID, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(strings.TrimSuffix(fields[0], "@metalwatchbot"))
	args := fields[1:]

	switch cmd {
	case "/start":
		s.Prefs.Get(userID) // registers the subscriber with defaults
		return "👋 Bem-vindo ao MetalWatch!\n\nVocê receberá alertas dos 12 metais monitorados.\nUse /comandos para ver tudo que posso fazer."
	case "/comandos", "/help":
		return helpText
	case "/status":
		return s.statusReply()
	case "/erros":
		return s.errosReply()
	case "/ativos":
		return s.ativosReply()
	case "/preco":
		return s.precoReply(args)
	case "/resumo":
		return s.resumoReply(args)
	case "/cot":
		return s.cotReply()
	case "/digest":
		return s.digestReply(userID)
	case "/agenda":
		return s.agendaReply(userID)
	case "/silenciar":
		return s.silenciarReply(userID, args)
	case "/ativar":
		s.Prefs.Unmute(userID)
		return "🔔 Alertas reativados."
	case "/pausartudo":
		s.Prefs.SetPaused(userID, true)
		return "⏸ Tudo pausado. Use /despausar para voltar."
	case "/despausar":
		s.Prefs.SetPaused(userID, false)
		return "▶️ Alertas retomados."
	case "/filtrar":
		return s.filtrarReply(userID, args)
	case "/timezone":
		return s.timezoneReply(userID, args)
	case "/confluencia":
		return s.confluenciaReply(userID, args)
	default:
		return "Comando desconhecido. Use /comandos."
	}
}

func (s *Scheduler) statusReply() string {
	uptime := time.Since(s.StartedAt).Round(time.Minute)
	sent, suppressed, err := s.Store.DecisionCounts(time.Now().Add(-24 * time.Hour))
	if err != nil {
		sent, suppressed = 0, 0
	}
	last := "nenhum ainda"
	if t := s.lastAlertAt(); !t.IsZero() {
		last = t.UTC().Format("02/01 15:04 UTC")
	}
	var b strings.Builder
	b.WriteString("🤖 STATUS | MetalWatch\n\n")
	b.WriteString(fmt.Sprintf("⏱ Uptime: %s\n", uptime))
	b.WriteString(fmt.Sprintf("📊 Último alerta: %s\n", last))
	b.WriteString("\n📈 STATS (24h)\n")
	b.WriteString(fmt.Sprintf("├─ Alertas enviados: %d\n", sent))
	b.WriteString(fmt.Sprintf("├─ Suprimidos: %d\n", suppressed))
	b.WriteString(fmt.Sprintf("└─ Calls LLM restantes: %d\n", s.LLM.Remaining()))
	return b.String()
}

func (s *Scheduler) errosReply() string {
	entries, err := s.Store.RecentErrors(10)
	if err != nil {
		return "❌ Não consegui ler o log de erros."
	}
	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString("✅ Nenhum erro registrado.\n")
	} else {
		b.WriteString("🧾 ÚLTIMOS ERROS\n\n")
		for _, e := range entries {
			b.WriteString(fmt.Sprintf("├─ [%s] %s/%s: %s\n",
				e.At.UTC().Format("02/01 15:04"), e.Component, e.Operation, e.Message))
		}
	}
	if suppressed := recentSuppressed(s.Store, 20, 5); len(suppressed) > 0 {
		b.WriteString("\n🔇 ÚLTIMAS SUPRESSÕES\n\n")
		for _, d := range suppressed {
			b.WriteString(fmt.Sprintf("├─ [%s] %s %s: %s\n",
				d.At.UTC().Format("02/01 15:04"), d.Instrument, d.Kind, d.Reason))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// recentSuppressed scans the newest decisions for undelivered ones, up to
// max entries.
func recentSuppressed(st storage.Store, scan, max int) []model.Decision {
	decisions, err := st.RecentDecisions(scan)
	if err != nil {
		return nil
	}
	var out []model.Decision
	for _, d := range decisions {
		if d.Sent {
			continue
		}
		out = append(out, d)
		if len(out) == max {
			break
		}
	}
	return out
}

func (s *Scheduler) ativosReply() string {
	groups := []struct {
		title   string
		class   model.InstrumentClass
	}{
		{"🥇 PRECIOSOS", model.ClassPrecious},
		{"⚙️ INDUSTRIAIS", model.ClassIndustrial},
		{"☢️ ESTRATÉGICOS", model.ClassStrategic},
	}
	var b strings.Builder
	b.WriteString("📊 ATIVOS | Preços Atuais\n")
	any := false
	for _, g := range groups {
		var lines []string
		for _, ticker := range model.Tickers() {
			inst := model.Instruments[ticker]
			if inst.Class != g.class {
				continue
			}
			tick, ok := s.Series.LatestPrice(ticker)
			if !ok {
				continue
			}
			line := fmt.Sprintf("%s %s: %s", inst.Emoji, inst.DisplayName(), notifier.FormatPrice(tick.Price))
			if pct, ok := s.dayChange(ticker); ok {
				line += fmt.Sprintf(" (%s)", notifier.FormatPercent(pct))
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		any = true
		b.WriteString("\n" + g.title + "\n" + strings.Join(lines, "\n") + "\n")
	}
	if !any {
		return "⏳ Ainda sem cotações. Tente novamente em instantes."
	}
	return b.String()
}

func (s *Scheduler) precoReply(args []string) string {
	if len(args) == 0 {
		return "Uso: /preco [metal]\nExemplo: /preco XAU ou /preco ouro"
	}
	inst, ok := model.LookupInstrument(strings.Join(args, " "))
	if !ok {
		return "Metal desconhecido. Use /ativos para ver a lista."
	}
	tick, ok := s.Series.LatestPrice(inst.Ticker)
	if !ok {
		return fmt.Sprintf("⏳ Ainda sem cotação para %s.", inst.DisplayName())
	}
	reply := fmt.Sprintf("%s %s: %s", inst.Emoji, inst.DisplayName(), notifier.FormatPrice(tick.Price))
	if pct, ok := s.dayChange(inst.Ticker); ok {
		reply += fmt.Sprintf(" (%s em 24h)", notifier.FormatPercent(pct))
	}
	return reply
}

func (s *Scheduler) resumoReply(args []string) string {
	if len(args) == 0 {
		return "Uso: /resumo [metal]\nExemplo: /resumo XAG ou /resumo prata"
	}
	inst, ok := model.LookupInstrument(strings.Join(args, " "))
	if !ok {
		return "Metal desconhecido. Use /ativos para ver a lista."
	}
	tick, ok := s.Series.LatestPrice(inst.Ticker)
	if !ok {
		return fmt.Sprintf("⏳ Ainda sem cotação para %s.", inst.DisplayName())
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s RESUMO | %s\n\n", inst.Emoji, inst.DisplayName()))
	b.WriteString("💰 PREÇO\n")
	b.WriteString(fmt.Sprintf("├─ Atual: %s\n", notifier.FormatPrice(tick.Price)))
	if pct, ok := s.dayChange(inst.Ticker); ok {
		b.WriteString(fmt.Sprintf("└─ Variação 24h: %s\n", notifier.FormatPercent(pct)))
	} else {
		b.WriteString("└─ Variação 24h: n/d\n")
	}

	if levels, ok := s.Analyzer.Latest(inst.Ticker); ok {
		b.WriteString("\n📊 TÉCNICO\n")
		var tech []string
		if levels.HasSMA50 {
			tech = append(tech, fmt.Sprintf("MM50: %s", notifier.FormatPrice(levels.SMA50)))
		}
		if levels.HasSMA200 {
			tech = append(tech, fmt.Sprintf("MM200: %s", notifier.FormatPrice(levels.SMA200)))
		}
		if levels.HasPivots {
			tech = append(tech,
				fmt.Sprintf("Pivot: %s", notifier.FormatPrice(levels.Pivots.PP)),
				fmt.Sprintf("R1: %s", notifier.FormatPrice(levels.Pivots.R1)),
				fmt.Sprintf("S1: %s", notifier.FormatPrice(levels.Pivots.S1)))
		}
		if levels.HasVWAP {
			tech = append(tech, fmt.Sprintf("VWAP sessão: %s", notifier.FormatPrice(levels.VWAP)))
		}
		if len(tech) == 0 {
			tech = append(tech, "histórico insuficiente")
		}
		b.WriteString(branchList(tech))

		above, below := s.Analyzer.NearestLevels(inst.Ticker, tick.Price, 1)
		if len(above) > 0 || len(below) > 0 {
			b.WriteString("\n📍 NÍVEIS PRÓXIMOS\n")
			var lvl []string
			for _, l := range above {
				lvl = append(lvl, fmt.Sprintf("Acima: %s (%s)", notifier.FormatPrice(l.Value), l.Name))
			}
			for _, l := range below {
				lvl = append(lvl, fmt.Sprintf("Abaixo: %s (%s)", notifier.FormatPrice(l.Value), l.Name))
			}
			b.WriteString(branchList(lvl))
		}
	}

	if snap, ok := s.Fuser.Latest(inst.Ticker); ok {
		if c := snap.COT; c != nil {
			b.WriteString("\n🏦 INSTITUCIONAL (COT)\n")
			b.WriteString(fmt.Sprintf("├─ MM Net: %+d\n", c.ManagedMoneyNet))
			b.WriteString(fmt.Sprintf("└─ Variação semanal: %+d\n", c.WeeklyChange))
		}
		if e := snap.ETF; e != nil {
			b.WriteString("\n📦 ETF\n")
			b.WriteString(fmt.Sprintf("├─ Holdings: %.1f ton\n", e.HoldingsTons))
			b.WriteString(fmt.Sprintf("└─ Fluxo: %s\n", notifier.FormatLargeUSD(e.DeltaUSD)))
		}
	}
	return b.String()
}

func (s *Scheduler) cotReply() string {
	var b strings.Builder
	b.WriteString("🏦 COT | Managed Money\n\n")
	wrote := false
	for _, ticker := range model.Tickers() {
		snap, ok := s.Fuser.Latest(ticker)
		if !ok || snap.COT == nil {
			continue
		}
		c := snap.COT
		inst := model.Instruments[ticker]
		flag := ""
		if institutional.CrowdedCOT(*c) {
			flag = " ⚠️"
		}
		b.WriteString(fmt.Sprintf("%s %s: net %+d (%+d sem., %.1f%% do OI)%s\n",
			inst.Emoji, inst.Name, c.ManagedMoneyNet, c.WeeklyChange, c.NetPercentOfOI(), flag))
		wrote = true
	}
	if !wrote {
		return "⏳ Relatório COT ainda não coletado."
	}
	b.WriteString("\nFonte: CFTC, semanal.")
	return b.String()
}

func (s *Scheduler) digestReply(userID string) string {
	body := s.priceLines(model.Tickers())
	if body == "" {
		return "⏳ Ainda sem cotações para montar o digest."
	}
	if hl := s.highlights(4); len(hl) > 0 {
		body += "\n📌 Destaques:\n" + branchList(hl)
	}
	pref := s.Prefs.Get(userID)
	return notifier.MessageFormatter{}.Broadcast(dispatchDigest(body, s.confluenceCounts()), pref)
}

func (s *Scheduler) agendaReply(userID string) string {
	pref := s.Prefs.Get(userID)
	events := s.Calendar.Upcoming(time.Now().UTC(), 10)
	if len(events) == 0 {
		return "📅 Nenhum evento na agenda."
	}
	var b strings.Builder
	b.WriteString("📅 AGENDA | Próximos eventos\n\n")
	for _, ev := range events {
		local := ev.At.UTC().Add(time.Duration(pref.TimezoneOffset) * time.Hour)
		b.WriteString(fmt.Sprintf("├─ %s — %s (UTC%+d)\n",
			local.Format("02/01 15:04"), ev.Title, pref.TimezoneOffset))
	}
	return b.String()
}

func (s *Scheduler) silenciarReply(userID string, args []string) string {
	if len(args) == 0 {
		return "Uso: /silenciar [tempo]\nExemplo: /silenciar 2h ou /silenciar 30min"
	}
	d, err := prefs.ParseMuteDuration(args[0])
	if err != nil {
		return "Formato inválido. Exemplos: 30min, 2h, 1d"
	}
	until, err := s.Prefs.Mute(userID, d)
	if err != nil {
		return "Formato inválido. Exemplos: 30min, 2h, 1d"
	}
	return fmt.Sprintf("🔕 Silenciado até %s UTC. Use /ativar para voltar antes.", until.Format("02/01 15:04"))
}

func (s *Scheduler) filtrarReply(userID string, args []string) string {
	if len(args) == 0 {
		return "Uso: /filtrar [metais]\nExemplo: /filtrar XAU XAG\nUse /filtrar todos para receber todos."
	}
	if len(args) == 1 && strings.EqualFold(args[0], "todos") {
		if err := s.Prefs.SetFilter(userID, nil); err != nil {
			return "❌ Não consegui limpar o filtro."
		}
		return "✅ Filtro removido: você recebe todos os metais."
	}
	if err := s.Prefs.SetFilter(userID, args); err != nil {
		if errors.Is(err, prefs.ErrUnknownInstrument) {
			return "Metal desconhecido no filtro. Use /ativos para ver os tickers."
		}
		return "❌ Não consegui salvar o filtro."
	}
	return fmt.Sprintf("✅ Filtro ativo: %s", strings.ToUpper(strings.Join(args, ", ")))
}

func (s *Scheduler) timezoneReply(userID string, args []string) string {
	if len(args) == 0 {
		return "Uso: /timezone [offset]\nExemplo: /timezone -3 (Brasil) ou /timezone +1 (Espanha)"
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(args[0], "+"))
	if err != nil {
		return "Formato inválido. Use: /timezone -3"
	}
	if err := s.Prefs.SetTimezone(userID, offset); err != nil {
		return "Offset fora do intervalo (-12 a +14)."
	}
	return fmt.Sprintf("🕐 Timezone ajustado para UTC%+d.", offset)
}

func (s *Scheduler) confluenciaReply(userID string, args []string) string {
	if len(args) == 0 {
		p := s.Prefs.Get(userID)
		return fmt.Sprintf("Confluência atual: %d sinais, escopo %s.\nUso: /confluencia [0-3] [alertas|digests|ambos]",
			p.ConfluenceThreshold, p.ConfluenceScope)
	}
	threshold, err := strconv.Atoi(args[0])
	if err != nil {
		return "Uso: /confluencia [0-3] [alertas|digests|ambos]"
	}
	scope := model.ConfluenceBoth
	if len(args) > 1 {
		scope = model.ConfluenceScope(strings.ToLower(args[1]))
	}
	if err := s.Prefs.SetConfluence(userID, threshold, scope); err != nil {
		return "Valores inválidos. Limite 0-3, escopo alertas/digests/ambos."
	}
	return fmt.Sprintf("🔭 Confluência: %d sinais, escopo %s.", threshold, scope)
}

func dispatchDigest(body string, confluence map[string]int) dispatch.Broadcast {
	return dispatch.Broadcast{
		Kind:       model.AlertDigest,
		Title:      "📊 DIGEST | Sob demanda",
		Body:       strings.TrimRight(body, "\n"),
		Confluence: confluence,
	}
}
