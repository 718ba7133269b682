package common

import (
	"strings"
)

// Ticker is a parsed security symbol.
// Accepted input forms:
//   - "RELIANCE.NS" (Yahoo-style suffix)
//   - "RELIANCE.NSE" (EODHD exchange code)
//   - "NSE:RELIANCE" (exchange prefix)
//   - "AAPL" (no exchange, DefaultExchange applies)
type Ticker struct {
	// Code is the security code, upper-cased (e.g. "RELIANCE")
	Code string
	// Exchange is the EODHD exchange code (e.g. "NSE", "US", "AU")
	Exchange string
	// Raw is the original input
	Raw string
}

// YahooSuffixToExchange maps Yahoo Finance suffixes to EODHD exchange codes.
var YahooSuffixToExchange = map[string]string{
	"NS": "NSE",
	"BO": "BSE",
	"AX": "AU",
	"L":  "LSE",
	"TO": "TO",
	"V":  "V",
	"HK": "HK",
	"DE": "XETRA",
	"F":  "F",
	"PA": "PA",
	"AS": "AS",
	"SW": "SW",
	"KS": "KO",
	"SS": "SHG",
	"SZ": "SHE",
	"TW": "TW",
	"JK": "JK",
	"SI": "SG",
	"KL": "KLSE",
	"T":  "TSE",
}

// ExchangeAliases maps exchange names used as prefixes to EODHD exchange codes.
var ExchangeAliases = map[string]string{
	"NYSE":   "US",
	"NASDAQ": "US",
	"AMEX":   "US",
	"ASX":    "AU",
	"TSX":    "TO",
	"HKEX":   "HK",
	"TYO":    "TSE",
}

// eodhdExchanges lists EODHD exchange codes accepted verbatim as a suffix.
var eodhdExchanges = map[string]bool{
	"US": true, "NSE": true, "BSE": true, "AU": true, "LSE": true, "TO": true,
	"V": true, "HK": true, "XETRA": true, "F": true, "PA": true, "AS": true,
	"SW": true, "KO": true, "SHG": true, "SHE": true, "TW": true, "JK": true,
	"SG": true, "KLSE": true, "TSE": true, "INDX": true,
}

// DefaultExchange applies to bare codes such as "AAPL".
var DefaultExchange = "US"

// ParseTicker parses a ticker in any of the accepted forms.
func ParseTicker(ticker string) Ticker {
	raw := ticker
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return Ticker{}
	}

	if idx := strings.Index(ticker, ":"); idx > 0 {
		return Ticker{
			Code:     ticker[idx+1:],
			Exchange: normalizeExchange(ticker[:idx]),
			Raw:      raw,
		}
	}

	if idx := strings.LastIndex(ticker, "."); idx > 0 && idx < len(ticker)-1 {
		code, suffix := ticker[:idx], ticker[idx+1:]
		if exchange, ok := YahooSuffixToExchange[suffix]; ok {
			return Ticker{Code: code, Exchange: exchange, Raw: raw}
		}
		if eodhdExchanges[suffix] {
			return Ticker{Code: code, Exchange: suffix, Raw: raw}
		}
	}

	// Share classes like "BRK.B" stay part of the code
	return Ticker{Code: ticker, Exchange: DefaultExchange, Raw: raw}
}

func normalizeExchange(exchange string) string {
	if alias, ok := ExchangeAliases[exchange]; ok {
		return alias
	}
	if mapped, ok := YahooSuffixToExchange[exchange]; ok {
		return mapped
	}
	return exchange
}

// IsZero reports whether the ticker was parsed from empty input
func (t Ticker) IsZero() bool {
	return t.Code == ""
}

// String returns the EODHD form
func (t Ticker) String() string {
	return t.EODHDSymbol()
}

// EODHDSymbol returns the EODHD API symbol, e.g. "RELIANCE.NSE".
// EODHD writes share classes with a dash ("BRK-B.US").
func (t Ticker) EODHDSymbol() string {
	if t.Code == "" {
		return ""
	}
	return strings.ReplaceAll(t.Code, ".", "-") + "." + t.Exchange
}
