package eodhd

import (
	"errors"
	"fmt"
	"time"
)

// ErrMissingAPIKey is returned before any request when no API token is configured.
var ErrMissingAPIKey = errors.New("EODHD API key not configured (set EODHD_API_KEY)")

// FundamentalsResponse is the subset of the fundamentals payload the app reads.
type FundamentalsResponse struct {
	General *GeneralInfo `json:"General"`
}

// GeneralInfo is the "General" section of the fundamentals payload.
type GeneralInfo struct {
	Code         string `json:"Code"`
	Type         string `json:"Type"`
	Name         string `json:"Name"`
	Exchange     string `json:"Exchange"`
	CurrencyCode string `json:"CurrencyCode"`
	CountryName  string `json:"CountryName"`
	ISIN         string `json:"ISIN"`
	Sector       string `json:"Sector"`
	Industry     string `json:"Industry"`
	GicSector    string `json:"GicSector"`
	GicIndustry  string `json:"GicIndustry"`
	Description  string `json:"Description"`
	WebURL       string `json:"WebURL"`
}

// APIError represents an error from the EODHD API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// NotFound reports whether the API did not recognise the symbol.
func (e *APIError) NotFound() bool {
	return e.StatusCode == 404
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("EODHD rate limit exceeded, retry after %v", e.RetryAfter)
}
