package model

import "strings"

// InstrumentClass groups metals by market behavior.
type InstrumentClass string

const (
	ClassPrecious   InstrumentClass = "precious"
	ClassIndustrial InstrumentClass = "industrial"
	ClassStrategic  InstrumentClass = "strategic"
)

// Market identifies the primary exchange for an instrument. The session
// close of the primary market defines the VWAP session boundary.
type Market string

const (
	MarketCOMEX Market = "COMEX"
	MarketLBMA  Market = "LBMA"
	MarketSHFE  Market = "SHFE"
	MarketSGE   Market = "SGE"
)

// marketCloseUTC maps markets to their daily close time (minutes after
// midnight UTC).
var marketCloseUTC = map[Market]int{
	MarketCOMEX: 21 * 60,     // 21:00
	MarketLBMA:  16*60 + 30,  // 16:30
	MarketSHFE:  7 * 60,      // 07:00
	MarketSGE:   7 * 60,      // 07:00
}

// Instrument is one of the 12 monitored metals. The set is fixed at
// startup; instruments are never added or removed at runtime.
type Instrument struct {
	Ticker        string
	Name          string
	Class         InstrumentClass
	Emoji         string
	Market        Market
	OnChainTokens []string // tokenized representations tracked on-chain
	ETFs          []string // ETFs whose flows proxy institutional demand
}

// SessionCloseUTC returns the primary market's daily close in minutes
// after midnight UTC.
func (i Instrument) SessionCloseUTC() int {
	return marketCloseUTC[i.Market]
}

// Instruments is the full monitored universe, keyed by ticker.
var Instruments = map[string]Instrument{
	"XAU": {Ticker: "XAU", Name: "Ouro", Class: ClassPrecious, Emoji: "🥇", Market: MarketCOMEX, OnChainTokens: []string{"PAXG", "XAUT"}, ETFs: []string{"GLD", "IAU"}},
	"XAG": {Ticker: "XAG", Name: "Prata", Class: ClassPrecious, Emoji: "🥈", Market: MarketCOMEX, OnChainTokens: []string{"SLVR"}, ETFs: []string{"SLV"}},
	"XPT": {Ticker: "XPT", Name: "Platina", Class: ClassPrecious, Emoji: "🔘", Market: MarketCOMEX, ETFs: []string{"PPLT"}},
	"XPD": {Ticker: "XPD", Name: "Paládio", Class: ClassPrecious, Emoji: "🔷", Market: MarketCOMEX, ETFs: []string{"PALL"}},
	"XCU": {Ticker: "XCU", Name: "Cobre", Class: ClassIndustrial, Emoji: "🔶", Market: MarketCOMEX, ETFs: []string{"CPER"}},
	"XAL": {Ticker: "XAL", Name: "Alumínio", Class: ClassIndustrial, Emoji: "⬜", Market: MarketSHFE},
	"XNI": {Ticker: "XNI", Name: "Níquel", Class: ClassIndustrial, Emoji: "🔵", Market: MarketSHFE},
	"XPB": {Ticker: "XPB", Name: "Chumbo", Class: ClassIndustrial, Emoji: "⚫", Market: MarketSHFE},
	"XZN": {Ticker: "XZN", Name: "Zinco", Class: ClassIndustrial, Emoji: "🔹", Market: MarketSHFE},
	"XSN": {Ticker: "XSN", Name: "Estanho", Class: ClassIndustrial, Emoji: "🟤", Market: MarketSHFE},
	"UX":  {Ticker: "UX", Name: "Urânio", Class: ClassStrategic, Emoji: "☢️", Market: MarketCOMEX, ETFs: []string{"URA"}},
	"FE":  {Ticker: "FE", Name: "Minério de Ferro", Class: ClassStrategic, Emoji: "⛏️", Market: MarketSGE},
}

// Tickers returns all instrument tickers in a stable order.
func Tickers() []string {
	return []string{"XAU", "XAG", "XPT", "XPD", "XCU", "XAL", "XNI", "XPB", "XZN", "XSN", "UX", "FE"}
}

// LookupInstrument resolves a ticker or Portuguese name to an instrument.
func LookupInstrument(s string) (Instrument, bool) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if inst, ok := Instruments[key]; ok {
		return inst, true
	}
	for _, inst := range Instruments {
		if strings.EqualFold(inst.Name, s) {
			return inst, true
		}
	}
	return Instrument{}, false
}

// DisplayName returns the standard "XAU Ouro" form.
func (i Instrument) DisplayName() string {
	return i.Ticker + " " + i.Name
}
