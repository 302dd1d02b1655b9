// Package crm delivers leads to a GoHighLevel-style REST API.
//
// Delivery is best effort and treated as idempotent: every upsert searches by
// phone number first, then creates or updates. The scheduler core never
// retries beyond logging a failure.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"leadsweep/pkg/logx"
)

const DefaultBaseURL = "https://rest.gohighlevel.com/v1"

// Contact is the lead record pushed to the CRM.
type Contact struct {
	Name        string
	Phone       string
	Position    string
	SourceURL   string
	CollectedAt time.Time
}

// Upserter is the CRM capability consumed by the job runner.
type Upserter interface {
	UpsertContact(ctx context.Context, c Contact) error
}

// UpserterFunc adapts a function to the Upserter interface (used by tests).
type UpserterFunc func(ctx context.Context, c Contact) error

func (f UpserterFunc) UpsertContact(ctx context.Context, c Contact) error { return f(ctx, c) }

type Config struct {
	BaseURL string
	APIKey  string
	// RatePerSec throttles outgoing requests; 0 disables throttling.
	RatePerSec int
	Timeout    time.Duration
}

type Client struct {
	cfg     Config
	log     logx.Logger
	http    *http.Client
	limiter *rate.Limiter
}

func New(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: lim,
	}
}

// UpsertContact searches for an existing contact by phone and either updates
// it or creates a new one.
func (c *Client) UpsertContact(ctx context.Context, ct Contact) error {
	phone := cleanPhone(ct.Phone)
	if phone == "" {
		return fmt.Errorf("contact %q has no phone number", ct.Name)
	}

	id, found, err := c.lookup(ctx, phone)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if found {
		if err := c.update(ctx, id, ct); err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		c.log.Debug("contact updated", logx.String("contact", ct.Name), logx.String("id", id))
		return nil
	}
	if err := c.create(ctx, phone, ct); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	c.log.Debug("contact created", logx.String("contact", ct.Name))
	return nil
}

type contactPayload struct {
	Name        string            `json:"name,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Type        string            `json:"type,omitempty"`
	Source      string            `json:"source,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	CustomField map[string]string `json:"customField"`
	Notes       string            `json:"notes,omitempty"`
}

func payloadFor(phone string, ct Contact) contactPayload {
	custom := map[string]string{}
	if ct.Position != "" {
		custom["position"] = ct.Position
	}
	if ct.SourceURL != "" {
		custom["source_url"] = ct.SourceURL
	}
	if !ct.CollectedAt.IsZero() {
		custom["date_collected"] = ct.CollectedAt.Format("2006-01-02 15:04:05")
	}
	notes := fmt.Sprintf("Position: %s\nSource: OLX\nURL: %s\nDate Collected: %s",
		orNA(ct.Position), orNA(ct.SourceURL), ct.CollectedAt.Format("2006-01-02 15:04:05"))
	return contactPayload{
		Name:        ct.Name,
		Phone:       phone,
		Type:        "lead",
		Source:      "OLX Scraper",
		Tags:        []string{"OLX", "Manufacturing", "Job Listing"},
		CustomField: custom,
		Notes:       notes,
	}
}

func (c *Client) lookup(ctx context.Context, phone string) (id string, found bool, err error) {
	u := c.cfg.BaseURL + "/contacts/lookup?phone=" + url.QueryEscape(phone)
	body, status, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if status != http.StatusOK {
		return "", false, fmt.Errorf("status %d: %s", status, trim(body))
	}
	var resp struct {
		Contacts []struct {
			ID string `json:"id"`
		} `json:"contacts"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false, err
	}
	if len(resp.Contacts) == 0 {
		return "", false, nil
	}
	return resp.Contacts[0].ID, true, nil
}

func (c *Client) create(ctx context.Context, phone string, ct Contact) error {
	b, err := json.Marshal(payloadFor(phone, ct))
	if err != nil {
		return err
	}
	body, status, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/contacts/", b)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("status %d: %s", status, trim(body))
	}
	return nil
}

func (c *Client) update(ctx context.Context, id string, ct Contact) error {
	p := payloadFor("", ct)
	// Updates only touch the custom fields and notes; name/phone already
	// exist on the contact.
	p.Name, p.Phone, p.Type, p.Source, p.Tags = "", "", "", "", nil
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	body, status, err := c.do(ctx, http.MethodPut, c.cfg.BaseURL+"/contacts/"+url.PathEscape(id), b)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("status %d: %s", status, trim(body))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) ([]byte, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return b, resp.StatusCode, nil
}

func cleanPhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func trim(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
