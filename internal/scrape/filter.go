package scrape

import "strings"

// Default vocabulary for the Polish manufacturing niche the system was built
// for. Clients can override the include list per config.
var (
	DefaultIncludeKeywords = []string{
		"producent", "produkcja", "fabryka", "zakład", "meble",
		"automotive", "przemysł", "wytwórnia", "huta", "manufaktura",
		// process/equipment vocabulary that also indicates a manufacturer
		"produkcyjn", "maszyn", "linia produkcyjna", "operator", "monter",
		"spawacz", "tokarz", "ślusarz", "lakiernik", "magazyn", "magazynier",
	}
	DefaultExcludeKeywords = []string{
		"agencja pracy", "agencja zatrudnienia", "agencja pośrednictwa",
		"rekrutacja", "hr", "human resources", "outsourcing", "leasing pracowniczy",
	}
)

// Filter classifies listing descriptions. Exclusions win over inclusions so
// a staffing agency advertising factory roles is still dropped.
type Filter struct {
	include []string
	exclude []string
}

func NewFilter(include, exclude []string) Filter {
	if len(include) == 0 {
		include = DefaultIncludeKeywords
	}
	if len(exclude) == 0 {
		exclude = DefaultExcludeKeywords
	}
	return Filter{include: lowerAll(include), exclude: lowerAll(exclude)}
}

// Match reports whether the description looks like a direct employer in the
// configured niche.
func (f Filter) Match(description string) bool {
	d := strings.ToLower(description)
	for _, kw := range f.exclude {
		if strings.Contains(d, kw) {
			return false
		}
	}
	for _, kw := range f.include {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
