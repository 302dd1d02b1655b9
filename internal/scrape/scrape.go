// Package scrape fetches job listings from classifieds search pages and
// extracts lead contact data.
package scrape

import (
	"context"
	"time"
)

// Listing is one extracted job listing. PhoneNumber may be empty when the
// page did not expose a contact number; downstream delivery decides what to
// do with incomplete records.
type Listing struct {
	CompanyName string    `json:"company_name"`
	Position    string    `json:"position"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"url"`
	CollectedAt time.Time `json:"date_collected"`

	// Filled in by the job runner before results are persisted.
	ClientID   string `json:"client_id,omitempty"`
	ClientName string `json:"client_name,omitempty"`
}

// Fetcher is the scraping capability consumed by the job runner.
//
// Implementations must treat empty or partial result sets as valid: a search
// target with no matching leads is not an error.
type Fetcher interface {
	FetchListings(ctx context.Context, target string, maxPages, maxListings int) ([]Listing, error)
}

// FetcherFunc adapts a function to the Fetcher interface (used by tests).
type FetcherFunc func(ctx context.Context, target string, maxPages, maxListings int) ([]Listing, error)

func (f FetcherFunc) FetchListings(ctx context.Context, target string, maxPages, maxListings int) ([]Listing, error) {
	return f(ctx, target, maxPages, maxListings)
}
