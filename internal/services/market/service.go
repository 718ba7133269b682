package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/equityresearch/internal/common"
	"github.com/ternarybob/equityresearch/internal/eodhd"
	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// FundamentalsClient is the part of the EODHD client the service needs
type FundamentalsClient interface {
	GetFundamentals(ctx context.Context, symbol string) (*eodhd.FundamentalsResponse, error)
}

// Service implements interfaces.MarketService on top of EODHD fundamentals
type Service struct {
	client FundamentalsClient
	logger arbor.ILogger
}

var _ interfaces.MarketService = (*Service)(nil)

// NewService creates a market service
func NewService(client FundamentalsClient, logger arbor.ILogger) *Service {
	return &Service{client: client, logger: logger}
}

// GetCompanyProfile looks up descriptive metadata for a ticker such as "RELIANCE.NS".
// An unknown symbol (EODHD 404) or a record without a General section returns an
// empty profile, not an error.
func (s *Service) GetCompanyProfile(ctx context.Context, ticker string) (*models.CompanyProfile, error) {
	parsed := common.ParseTicker(ticker)
	if parsed.IsZero() {
		return nil, fmt.Errorf("ticker is empty")
	}
	symbol := parsed.EODHDSymbol()

	resp, err := s.client.GetFundamentals(ctx, symbol)
	profile := &models.CompanyProfile{Symbol: symbol}
	if err != nil {
		var apiErr *eodhd.APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			s.logger.Debug().Str("symbol", symbol).Msg("Symbol not known to EODHD")
			return profile, nil
		}
		return nil, fmt.Errorf("fundamentals lookup for %s failed: %w", symbol, err)
	}

	if resp == nil || resp.General == nil {
		s.logger.Debug().Str("symbol", symbol).Msg("Fundamentals record has no General section")
		return profile, nil
	}

	g := resp.General
	profile.Name = strings.TrimSpace(g.Name)
	profile.Industry = firstNonEmpty(g.Industry, g.GicIndustry)
	profile.Sector = firstNonEmpty(g.Sector, g.GicSector)
	profile.BusinessSummary = strings.TrimSpace(g.Description)
	profile.Website = strings.TrimSpace(g.WebURL)

	s.logger.Debug().
		Str("symbol", symbol).
		Str("name", profile.Name).
		Msg("Company profile fetched")

	return profile, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
