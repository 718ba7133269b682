package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/equityresearch/internal/interfaces"
)

// NotAvailable stands in for any profile field the provider did not return
const NotAvailable = "N/A"

// FinancialsTool fetches the descriptive profile of a listed company
type FinancialsTool struct {
	market interfaces.MarketService
	logger arbor.ILogger
}

var _ interfaces.Tool = (*FinancialsTool)(nil)

func NewFinancialsTool(market interfaces.MarketService, logger arbor.ILogger) *FinancialsTool {
	return &FinancialsTool{market: market, logger: logger}
}

func (t *FinancialsTool) Name() string  { return "fetch_financial_segments" }
func (t *FinancialsTool) Title() string { return "Fetch Financial Segments" }

func (t *FinancialsTool) Description() string {
	return "Fetches business segment data and revenue split. Input: Ticker (e.g., RELIANCE.NS)"
}

func (t *FinancialsTool) Parameter() interfaces.ToolParameter {
	return interfaces.ToolParameter{Name: "ticker", Description: "Exchange ticker symbol, e.g. RELIANCE.NS"}
}

// Execute returns exactly four fields: Industry, Sector, Business Summary and Website.
func (t *FinancialsTool) Execute(ctx context.Context, ticker string) string {
	profile, err := t.market.GetCompanyProfile(ctx, strings.TrimSpace(ticker))
	if err != nil {
		t.logger.Warn().Str("ticker", ticker).Err(err).Msg("Company profile lookup failed")
		return fmt.Sprintf("Error fetching profile: %v", err)
	}

	fields := [][2]string{
		{"Industry", orNotAvailable(profile.Industry)},
		{"Sector", orNotAvailable(profile.Sector)},
		{"Business Summary", orNotAvailable(profile.BusinessSummary)},
		{"Website", orNotAvailable(profile.Website)},
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, quoteLiteral(f[0])+": "+quoteLiteral(f[1]))
	}
	return "Company Basic Profile:\n{" + strings.Join(parts, ", ") + "}"
}

func orNotAvailable(value string) string {
	if strings.TrimSpace(value) == "" {
		return NotAvailable
	}
	return value
}

// quoteLiteral quotes s the way a Python dict repr does: single quotes unless
// the value contains a single quote and no double quote.
func quoteLiteral(s string) string {
	quote := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}

	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte(quote)
	for _, r := range s {
		switch {
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == rune(quote):
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}
