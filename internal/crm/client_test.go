package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadsweep/pkg/logx"
)

func testContact() Contact {
	return Contact{
		Name:        "Stalmex",
		Phone:       "+48 123 456 789",
		Position:    "Operator CNC",
		SourceURL:   "https://example.test/oferta/1",
		CollectedAt: time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC),
	}
}

func TestUpsertCreatesWhenLookupMisses(t *testing.T) {
	t.Parallel()
	var created contactPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/contacts/lookup":
			if got := r.URL.Query().Get("phone"); got != "+48123456789" {
				t.Errorf("lookup phone = %q", got)
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/contacts/":
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Errorf("decode create body: %v", err)
			}
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key-1"}, logx.Nop())
	if err := c.UpsertContact(context.Background(), testContact()); err != nil {
		t.Fatalf("UpsertContact error: %v", err)
	}

	if created.Name != "Stalmex" || created.Phone != "+48123456789" {
		t.Fatalf("created = %+v", created)
	}
	if created.Type != "lead" {
		t.Fatalf("Type = %q, want lead", created.Type)
	}
	if created.CustomField["position"] != "Operator CNC" {
		t.Fatalf("custom fields = %v", created.CustomField)
	}
}

func TestUpsertUpdatesExistingContact(t *testing.T) {
	t.Parallel()
	var updatedID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/contacts/lookup":
			_, _ = w.Write([]byte(`{"contacts":[{"id":"abc123"}]}`))
		case r.Method == http.MethodPut && r.URL.Path == "/contacts/abc123":
			updatedID = "abc123"
			var p contactPayload
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				t.Errorf("decode update body: %v", err)
			}
			if p.Name != "" || p.Phone != "" {
				t.Errorf("update must not resend identity fields: %+v", p)
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key-1"}, logx.Nop())
	if err := c.UpsertContact(context.Background(), testContact()); err != nil {
		t.Fatalf("UpsertContact error: %v", err)
	}
	if updatedID != "abc123" {
		t.Fatal("existing contact was not updated")
	}
}

func TestUpsertRequiresPhone(t *testing.T) {
	t.Parallel()
	c := New(Config{BaseURL: "http://unused.test"}, logx.Nop())
	ct := testContact()
	ct.Phone = "   "
	if err := c.UpsertContact(context.Background(), ct); err == nil {
		t.Fatal("expected error for contact without phone")
	}
}

func TestUpsertSurfacesServerErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key-1"}, logx.Nop())
	if err := c.UpsertContact(context.Background(), testContact()); err == nil {
		t.Fatal("expected error for 429 lookup")
	}
}
