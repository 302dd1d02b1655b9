package scrape

import "testing"

func TestFilterMatch(t *testing.T) {
	t.Parallel()
	f := NewFilter(nil, nil)
	tests := []struct {
		name string
		desc string
		want bool
	}{
		{name: "manufacturer", desc: "Producent mebli zatrudni montera", want: true},
		{name: "case insensitive", desc: "FABRYKA opakowań poszukuje operatora", want: true},
		{name: "no niche vocabulary", desc: "Kelner do restauracji w centrum", want: false},
		{name: "agency advertising factory role", desc: "Agencja pracy zatrudni operatora produkcji", want: false},
		{name: "empty", desc: "", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Match(tt.desc); got != tt.want {
				t.Fatalf("Match(%q) = %v, want %v", tt.desc, got, tt.want)
			}
		})
	}
}

func TestFilterCustomInclude(t *testing.T) {
	t.Parallel()
	f := NewFilter([]string{"logistyka"}, nil)
	if !f.Match("Centrum logistyki zatrudni pracownika") {
		t.Fatal("custom include keyword not matched")
	}
	if f.Match("Producent mebli zatrudni montera") {
		t.Fatal("default include vocabulary leaked into a custom filter")
	}
	// Default exclusions still apply with a custom include list.
	if f.Match("Agencja pracy: logistyka, praca od zaraz") {
		t.Fatal("exclusion did not win over inclusion")
	}
}

func TestPageURL(t *testing.T) {
	t.Parallel()
	base := "https://www.olx.pl/praca/produkcja/"
	if got := pageURL(base, 1); got != base {
		t.Fatalf("page 1 = %q, want unchanged target", got)
	}
	if got := pageURL(base, 3); got != base+"?page=3" {
		t.Fatalf("page 3 = %q", got)
	}
	if got := pageURL("https://host/path?q=cnc", 2); got != "https://host/path?page=2&q=cnc" {
		t.Fatalf("existing query = %q", got)
	}
}

func TestCleanPhone(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"+48 123 456 789", "+48123456789"},
		{"123-456-789", "123456789"},
		{"  123456789  ", "123456789"},
	}
	for _, tt := range tests {
		if got := cleanPhone(tt.in); got != tt.want {
			t.Fatalf("cleanPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
