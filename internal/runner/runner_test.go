package runner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"leadsweep/internal/config"
	"leadsweep/internal/crm"
	"leadsweep/internal/scrape"
	"leadsweep/pkg/logx"
)

func testClient(t *testing.T, id string) config.ClientConfig {
	t.Helper()
	return config.ClientConfig{
		ID:            id,
		Name:          id,
		SearchTargets: []string{"https://example.test/praca/"},
		MaxPages:      1,
		MaxListings:   50,
		CRMAPIKey:     "key",
		OutputFile:    filepath.Join(t.TempDir(), "results.json"),
	}
}

func staticFetcher(listings []scrape.Listing, err error) func(config.ClientConfig) scrape.Fetcher {
	return func(config.ClientConfig) scrape.Fetcher {
		return scrape.FetcherFunc(func(context.Context, string, int, int) ([]scrape.Listing, error) {
			return listings, err
		})
	}
}

func TestRunDeliversAndTallies(t *testing.T) {
	t.Parallel()
	listings := []scrape.Listing{
		{CompanyName: "Stalmex", Position: "Operator CNC", PhoneNumber: "+48123456789"},
		{CompanyName: "Meblex", Position: "Monter"}, // no phone: skipped
		{CompanyName: "Hutpol", Position: "Spawacz", PhoneNumber: "+48111222333"},
	}

	var upserted []string
	r := New(Config{}, Deps{
		FetcherFor: staticFetcher(listings, nil),
		UpserterFor: func(apiKey string) crm.Upserter {
			if apiKey != "key" {
				t.Errorf("apiKey = %q", apiKey)
			}
			return crm.UpserterFunc(func(_ context.Context, c crm.Contact) error {
				upserted = append(upserted, c.Name)
				if c.Name == "Hutpol" {
					return errors.New("api down")
				}
				return nil
			})
		},
	}, logx.Nop())

	client := testClient(t, "acme")
	res := r.Run(context.Background(), client)

	if !res.OK || res.Error != "" {
		t.Fatalf("result not OK: %+v", res)
	}
	if res.Listings != 3 {
		t.Fatalf("Listings = %d, want 3", res.Listings)
	}
	if res.UpsertsOK != 1 || res.UpsertsFailed != 1 || res.UpsertsSkipped != 1 {
		t.Fatalf("tally = ok:%d failed:%d skipped:%d, want 1/1/1",
			res.UpsertsOK, res.UpsertsFailed, res.UpsertsSkipped)
	}
	if len(upserted) != 2 {
		t.Fatalf("upsert calls = %d, want 2 (phoneless record must not reach the CRM)", len(upserted))
	}

	// Results on disk carry the client identity.
	b, err := os.ReadFile(client.OutputFile)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	var persisted []scrape.Listing
	if err := json.Unmarshal(b, &persisted); err != nil {
		t.Fatalf("unmarshal results: %v", err)
	}
	if len(persisted) != 3 || persisted[0].ClientID != "acme" {
		t.Fatalf("persisted = %+v", persisted)
	}
	if res.OutputPath != client.OutputFile {
		t.Fatalf("OutputPath = %q", res.OutputPath)
	}
}

func TestRunContainsTargetFailures(t *testing.T) {
	t.Parallel()
	calls := 0
	r := New(Config{}, Deps{
		FetcherFor: func(config.ClientConfig) scrape.Fetcher {
			return scrape.FetcherFunc(func(_ context.Context, target string, _, _ int) ([]scrape.Listing, error) {
				calls++
				if target == "https://bad.test/" {
					return nil, errors.New("503")
				}
				return []scrape.Listing{{CompanyName: "Stalmex", PhoneNumber: "48123123123"}}, nil
			})
		},
		UpserterFor: func(string) crm.Upserter {
			return crm.UpserterFunc(func(context.Context, crm.Contact) error { return nil })
		},
	}, logx.Nop())

	client := testClient(t, "acme")
	client.SearchTargets = []string{"https://bad.test/", "https://good.test/"}
	res := r.Run(context.Background(), client)

	if calls != 2 {
		t.Fatalf("fetch calls = %d, want 2 (a failed target must not stop the rest)", calls)
	}
	if res.TargetFailures != 1 {
		t.Fatalf("TargetFailures = %d, want 1", res.TargetFailures)
	}
	if !res.OK || res.Listings != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	t.Parallel()
	r := New(Config{}, Deps{
		FetcherFor: func(config.ClientConfig) scrape.Fetcher {
			return scrape.FetcherFunc(func(context.Context, string, int, int) ([]scrape.Listing, error) {
				panic("selector blew up")
			})
		},
	}, logx.Nop())

	res := r.Run(context.Background(), testClient(t, "acme"))
	if res.OK {
		t.Fatal("panicked run reported OK")
	}
	if res.Error == "" {
		t.Fatal("panicked run lost its error")
	}
}

func TestRunDryRunSkipsDelivery(t *testing.T) {
	t.Parallel()
	r := New(Config{DryRun: true}, Deps{
		FetcherFor: staticFetcher([]scrape.Listing{{CompanyName: "Stalmex", PhoneNumber: "48123123123"}}, nil),
		UpserterFor: func(string) crm.Upserter {
			t.Error("upserter built during dry run")
			return nil
		},
	}, logx.Nop())

	res := r.Run(context.Background(), testClient(t, "acme"))
	if !res.OK || res.UpsertsOK != 0 || res.UpsertsSkipped != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunCapsAggregateListings(t *testing.T) {
	t.Parallel()
	r := New(Config{}, Deps{
		FetcherFor: func(config.ClientConfig) scrape.Fetcher {
			return scrape.FetcherFunc(func(_ context.Context, _ string, _, maxListings int) ([]scrape.Listing, error) {
				out := make([]scrape.Listing, maxListings)
				return out, nil
			})
		},
	}, logx.Nop())

	client := testClient(t, "acme")
	client.CRMAPIKey = ""
	client.MaxListings = 7
	client.SearchTargets = []string{"https://a.test/", "https://b.test/", "https://c.test/"}
	res := r.Run(context.Background(), client)

	if res.Listings != 7 {
		t.Fatalf("Listings = %d, want the per-client cap of 7", res.Listings)
	}
}
