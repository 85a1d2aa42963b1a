// Retailer-specific extraction rules.
//
// Each supported Dutch retailer renders its price in known places; the
// selector lists below are ordered most-specific first, and the generic list
// is the fallback for everything else (including the "other" retailer).
package fetch

import "strings"

// Supported retailer keys. Curation validates against this set; "other"
// accepts any product URL and relies on the generic selectors.
const (
	RetailerZalando       = "zalando"
	RetailerTommyHilfiger = "tommy_hilfiger"
	RetailerBijenkorf     = "bijenkorf"
	RetailerOther         = "other"
)

// priceSelectors maps a retailer key to its CSS price selectors.
var priceSelectors = map[string][]string{
	RetailerZalando: {
		`[data-testid="product-price"]`,
		`.ui-text-price`,
		`span[class*="price"]`,
	},
	RetailerTommyHilfiger: {
		`.product-price`,
		`.price-current`,
		`[data-testid="price"]`,
	},
	RetailerBijenkorf: {
		`.product-price`,
		`.price`,
		`[class*="price"]`,
	},
}

// genericPriceSelectors is the fallback list applied after (or instead of)
// the retailer-specific selectors.
var genericPriceSelectors = []string{
	`[class*="price"]`,
	`[id*="price"]`,
	`.price`,
	`span[class*="amount"]`,
}

// outOfStockPhrases are sniffed from the lowercased page body to detect
// sold-out products. Mixed Dutch/English because retailers localize
// inconsistently.
var outOfStockPhrases = []string{
	"uitverkocht",
	"niet beschikbaar",
	"niet op voorraad",
	"out of stock",
	"sold out",
	"temporarily unavailable",
	"product not available",
}

// NormalizeRetailer maps a human-entered retailer name to its canonical key.
// The second return value is false for unknown retailers.
func NormalizeRetailer(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, " ", "_")
	switch key {
	case RetailerZalando:
		return RetailerZalando, true
	case RetailerTommyHilfiger, "tommy":
		return RetailerTommyHilfiger, true
	case RetailerBijenkorf, "de_bijenkorf":
		return RetailerBijenkorf, true
	case RetailerOther:
		return RetailerOther, true
	default:
		return "", false
	}
}

// selectorsFor returns the ordered selector list for a retailer: its specific
// selectors (when known) followed by the generic fallbacks.
func selectorsFor(retailer string) []string {
	specific := priceSelectors[retailer]
	out := make([]string, 0, len(specific)+len(genericPriceSelectors))
	out = append(out, specific...)
	out = append(out, genericPriceSelectors...)
	return out
}

// looksOutOfStock reports whether the lowercased page body contains a
// sold-out indicator.
func looksOutOfStock(lowerBody string) bool {
	for _, phrase := range outOfStockPhrases {
		if strings.Contains(lowerBody, phrase) {
			return true
		}
	}
	return false
}
