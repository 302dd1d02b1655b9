package scrape

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"leadsweep/pkg/logx"
)

const (
	sourceName       = "OLX"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Safari/537.36"
)

// Selectors for listing anchors on search result pages. The site has shipped
// both attribute spellings, so both are tried.
const listingLinkSelector = "a[data-cy='listing-ad-title'], a[data-testid='listing-ad-title']"

type Config struct {
	UserAgent      string
	RequestTimeout time.Duration

	IncludeKeywords []string
	ExcludeKeywords []string
}

// Client fetches and extracts listings over plain HTTP using colly.
type Client struct {
	cfg Config
	log logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, log: log}
}

// WithIncludeKeywords returns a copy of the client using the given include
// vocabulary (per-client keyword overrides). Empty input keeps the defaults.
func (c *Client) WithIncludeKeywords(words []string) *Client {
	if len(words) == 0 {
		return c
	}
	cp := *c
	cp.cfg.IncludeKeywords = words
	return &cp
}

// FetchListings walks up to maxPages of the search target, then visits each
// discovered listing and extracts lead data. Listings that fail the niche
// filter or fail extraction are dropped silently; an empty result is valid.
func (c *Client) FetchListings(ctx context.Context, target string, maxPages, maxListings int) ([]Listing, error) {
	if maxPages <= 0 {
		maxPages = 1
	}
	if maxListings <= 0 {
		maxListings = 50
	}
	filter := NewFilter(c.cfg.IncludeKeywords, c.cfg.ExcludeKeywords)

	links, err := c.collectLinks(ctx, target, maxPages, maxListings)
	if err != nil {
		return nil, err
	}
	c.log.Debug("listing links collected", logx.String("target", target), logx.Int("links", len(links)))

	out := make([]Listing, 0, len(links))
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		l, ok := c.extractListing(link, filter)
		if !ok {
			continue
		}
		out = append(out, l)
		if len(out) >= maxListings {
			break
		}
	}
	return out, nil
}

func (c *Client) newCollector() *colly.Collector {
	col := colly.NewCollector(colly.UserAgent(c.cfg.UserAgent))
	col.SetRequestTimeout(c.cfg.RequestTimeout)
	return col
}

func (c *Client) collectLinks(ctx context.Context, target string, maxPages, maxListings int) ([]string, error) {
	var links []string
	seen := map[string]bool{}

	col := c.newCollector()
	col.OnHTML(listingLinkSelector, func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if href == "" || seen[href] {
			return
		}
		seen[href] = true
		links = append(links, href)
	})

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return links, err
		}
		if len(links) >= maxListings {
			break
		}
		before := len(links)
		if err := col.Visit(pageURL(target, page)); err != nil {
			// First page failing means the target itself is unreachable;
			// later pages failing just ends pagination early.
			if page == 1 {
				return nil, err
			}
			c.log.Debug("pagination stopped", logx.String("target", target), logx.Int("page", page), logx.Err(err))
			break
		}
		if len(links) == before {
			// Empty page: ran off the end of the result set.
			break
		}
	}
	return links, nil
}

func (c *Client) extractListing(link string, filter Filter) (Listing, bool) {
	var (
		listing Listing
		found   bool
	)

	col := c.newCollector()
	col.OnHTML("html", func(e *colly.HTMLElement) {
		desc := firstText(e.DOM,
			"[data-cy='ad_description']",
			"[data-testid='main']",
			"div.description",
			"#description",
		)
		if desc == "" || !filter.Match(desc) {
			return
		}

		company := extractCompany(e.DOM, desc)
		if company == "" {
			company = "Unknown Company"
		}
		position := strings.TrimSpace(e.DOM.Find("h1").First().Text())
		if position == "" {
			position = "Unknown Position"
		}

		listing = Listing{
			CompanyName: company,
			Position:    position,
			PhoneNumber: extractPhone(e.DOM, desc),
			Source:      sourceName,
			SourceURL:   link,
			CollectedAt: time.Now(),
		}
		found = true
	})

	if err := col.Visit(link); err != nil {
		c.log.Debug("listing fetch failed", logx.String("url", link), logx.Err(err))
		return Listing{}, false
	}
	return listing, found
}

func pageURL(target string, page int) string {
	if page <= 1 {
		return target
	}
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Company name heuristics, tried in order: a seller/recruiter card, then
// introduction phrases in the description.
var companyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`Firma\s+([A-Za-z0-9\s]+?)(?:\s+to|\s+jest|\s+poszukuje)`),
	regexp.MustCompile(`([A-Za-z0-9\s]+?)(?:\s+to firma|\s+jest firmą)`),
	regexp.MustCompile(`O\s+([A-Za-z0-9\s]+?)(?:\s+Jesteśmy|\s+to)`),
}

func extractCompany(doc *goquery.Selection, desc string) string {
	if name := firstText(doc,
		"[data-cy='seller_card'] h4",
		"[data-testid='user-profile-user-name']",
		"div.recruiter .title",
	); name != "" {
		return name
	}
	for _, p := range companyPatterns {
		if m := p.FindStringSubmatch(desc); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

var phonePattern = regexp.MustCompile(`(\+?48[\s-]?)?\d{3}[\s-]?\d{3}[\s-]?\d{3}`)

func extractPhone(doc *goquery.Selection, desc string) string {
	if href, ok := doc.Find("a[href^='tel:']").First().Attr("href"); ok {
		return cleanPhone(strings.TrimPrefix(href, "tel:"))
	}
	if m := phonePattern.FindString(desc); m != "" {
		return cleanPhone(m)
	}
	return ""
}

func cleanPhone(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
}

func firstText(doc *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}
