// Price text parsing for Dutch retailer pages.
//
// Retailers render prices in a handful of formats: "€ 79,95", "1.299,00",
// "79,-", and machine-readable "79.95" in meta tags and JSON-LD. ParsePrice
// normalizes all of them into an exact decimal amount.
package fetch

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// priceRE captures the first digit run with optional grouping/decimal marks.
var priceRE = regexp.MustCompile(`\d[\d.,]*`)

// ParsePrice extracts a decimal amount from a price string as rendered on a
// retailer page. It returns a KindParse error when no amount can be read.
//
// Separator handling:
//   - "1.234,56" (Dutch): '.' groups thousands, ',' marks decimals
//   - "1,234.56" (English meta tags): the rightmost separator wins
//   - "79,-" (Dutch whole euros): the dangling minus is dropped
//   - "1.299" (single '.' followed by 3 digits): treated as thousands
func ParsePrice(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSuffix(s, ",-")
	s = strings.TrimSuffix(s, ".-")

	m := priceRE.FindString(s)
	if m == "" {
		return decimal.Zero, &Error{Kind: KindParse, Err: ErrPriceNotFound}
	}
	m = strings.Trim(m, ".,")

	lastDot := strings.LastIndex(m, ".")
	lastComma := strings.LastIndex(m, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the rightmost is the decimal separator.
		if lastComma > lastDot {
			m = strings.ReplaceAll(m, ".", "")
			m = strings.Replace(m, ",", ".", 1)
		} else {
			m = strings.ReplaceAll(m, ",", "")
		}
	case lastComma >= 0:
		// Comma only: decimal separator unless it groups exactly 3 digits
		// more than once ("1,299,000").
		if strings.Count(m, ",") > 1 {
			m = strings.ReplaceAll(m, ",", "")
		} else {
			m = strings.Replace(m, ",", ".", 1)
		}
	case lastDot >= 0:
		// Dot only: Dutch thousands grouping when exactly 3 digits follow.
		if strings.Count(m, ".") > 1 || len(m)-lastDot-1 == 3 {
			m = strings.ReplaceAll(m, ".", "")
		}
	}

	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, &Error{Kind: KindParse, Err: err}
	}
	if d.IsNegative() || d.IsZero() {
		return decimal.Zero, &Error{Kind: KindParse, Err: ErrPriceNotFound}
	}
	return d, nil
}

// NormalizeCurrency validates a currency code scraped from a page and returns
// its canonical ISO 4217 form. Unknown or empty codes default to EUR, the
// currency of every supported retailer.
func NormalizeCurrency(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || code == "€" {
		return currency.EUR.String()
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return currency.EUR.String()
	}
	return unit.String()
}
