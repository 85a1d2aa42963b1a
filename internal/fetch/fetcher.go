// Package fetch retrieves current prices for curated deals from retailer
// product pages. This file implements the HTTP fetcher: one GET per call,
// goquery extraction with retailer-specific selectors, meta-tag and JSON-LD
// fallbacks, out-of-stock sniffing, and a per-retailer token-bucket throttle.
//
// The fetcher makes exactly one attempt per call; retry policy lives with the
// caller (the refresh pipeline retries on its next scheduled run, never
// within a run).
package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	// defaultUserAgent mirrors a desktop browser; several retailers serve a
	// bot-wall page to unknown agents.
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// maxBodyBytes caps how much of a product page is read.
	maxBodyBytes = 5 << 20
)

// Quote is a successfully fetched price observation.
type Quote struct {
	// Price is the current price shown on the product page.
	Price decimal.Decimal
	// Currency is the ISO 4217 code, normalized; EUR when the page does not
	// declare one.
	Currency string
	// Available is false when the page carries an out-of-stock indicator.
	Available bool
}

// Fetcher retrieves the current price for a product URL. Implementations
// must return a *fetch.Error on failure and make at most one attempt per
// call. They must be safe for concurrent use across distinct URLs.
type Fetcher interface {
	Fetch(ctx context.Context, retailer, productURL string) (Quote, error)
}

// HTTPFetcher is the production Fetcher. It throttles requests per retailer
// so that concurrent refreshes of many deals from one shop do not hammer it.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string

	perRetailer rate.Limit
	burst       int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option customizes an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithUserAgent overrides the User-Agent header sent to retailers.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) { f.userAgent = ua }
}

// WithClient replaces the underlying HTTP client (tests use this).
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithRetailerRate sets the per-retailer request rate and burst.
func WithRetailerRate(r rate.Limit, burst int) Option {
	return func(f *HTTPFetcher) { f.perRetailer = r; f.burst = burst }
}

// NewHTTPFetcher builds a fetcher with the given per-request timeout. The
// default throttle allows one request per retailer every two seconds.
func NewHTTPFetcher(timeout time.Duration, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      &http.Client{Timeout: timeout},
		userAgent:   defaultUserAgent,
		perRetailer: rate.Every(2 * time.Second),
		burst:       1,
		limiters:    make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// limiter returns (lazily creating) the token bucket for a retailer.
func (f *HTTPFetcher) limiter(retailer string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[retailer]
	if !ok {
		l = rate.NewLimiter(f.perRetailer, f.burst)
		f.limiters[retailer] = l
	}
	return l
}

// Fetch performs one GET against the product page and extracts a Quote.
//
// Extraction strategy, in order:
//  1. retailer-specific CSS selectors, then generic price selectors
//  2. machine-readable meta tags (product:price:amount, og:price:amount,
//     itemprop=price)
//  3. JSON-LD offers blocks
//
// Availability is derived from out-of-stock phrases in the page body; pages
// without such indicators are assumed in stock.
func (f *HTTPFetcher) Fetch(ctx context.Context, retailer, productURL string) (Quote, error) {
	if err := f.limiter(retailer).Wait(ctx); err != nil {
		return Quote{}, &Error{Kind: KindTimeout, URL: productURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, productURL, nil)
	if err != nil {
		return Quote{}, &Error{Kind: KindNetwork, URL: productURL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "nl-NL,nl;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Quote{}, classifyTransport(productURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, &Error{Kind: KindHTTP, URL: productURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Quote{}, classifyTransport(productURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Quote{}, &Error{Kind: KindParse, URL: productURL, Err: err}
	}

	price, err := extractPrice(doc, retailer)
	if err != nil {
		return Quote{}, &Error{Kind: KindParse, URL: productURL, Err: err}
	}

	return Quote{
		Price:     price,
		Currency:  extractCurrency(doc),
		Available: !looksOutOfStock(strings.ToLower(string(body))),
	}, nil
}

// jsonLDOffersRE matches the offers price in a JSON-LD product block; the
// plain price fallback matches any price field.
var (
	jsonLDOffersRE = regexp.MustCompile(`"offers"[^}]*"price"\s*:\s*"?([0-9.,]+)"?`)
	jsonLDPriceRE  = regexp.MustCompile(`"price"\s*:\s*"?([0-9.,]+)"?`)
	jsonLDCurRE    = regexp.MustCompile(`"priceCurrency"\s*:\s*"([A-Za-z]{3})"`)
)

// extractPrice walks the extraction strategies and returns the first price
// that parses. It returns ErrPriceNotFound when every strategy misses.
func extractPrice(doc *goquery.Document, retailer string) (decimal.Decimal, error) {
	for _, sel := range selectorsFor(retailer) {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if p, err := ParsePrice(text); err == nil {
			return p, nil
		}
	}

	for _, sel := range []string{
		`meta[property="product:price:amount"]`,
		`meta[property="og:price:amount"]`,
		`meta[itemprop="price"]`,
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if p, err := ParsePrice(content); err == nil {
				return p, nil
			}
		}
	}

	var found decimal.Decimal
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		m := jsonLDOffersRE.FindStringSubmatch(text)
		if m == nil {
			m = jsonLDPriceRE.FindStringSubmatch(text)
		}
		if m == nil {
			return true
		}
		p, err := ParsePrice(m[1])
		if err != nil {
			return true
		}
		found = p
		return false
	})
	if !found.IsZero() {
		return found, nil
	}

	return decimal.Zero, ErrPriceNotFound
}

// extractCurrency reads the declared currency from meta tags or JSON-LD and
// normalizes it; EUR when absent.
func extractCurrency(doc *goquery.Document) string {
	for _, sel := range []string{
		`meta[property="product:price:currency"]`,
		`meta[property="og:price:currency"]`,
		`meta[itemprop="priceCurrency"]`,
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok && content != "" {
			return NormalizeCurrency(content)
		}
	}

	cur := ""
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := jsonLDCurRE.FindStringSubmatch(s.Text()); m != nil {
			cur = m[1]
			return false
		}
		return true
	})
	return NormalizeCurrency(cur)
}
