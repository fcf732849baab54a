// Package pricing holds the authoritative price list for job postings.
//
// Clients may display these values, but only the server-side lookup decides
// what a posting is charged. A client-supplied classification is a selector,
// never a price.
package pricing

import (
	"fmt"
	"sort"
)

// Classification selects a pricing tier.
type Classification string

const (
	Standard Classification = "STANDARD"
	Premium  Classification = "PREMIUM"
)

// Currency is the only currency job postings are charged in.
const Currency = "usd"

// Tier describes one row of the price list.
type Tier struct {
	Classification Classification `json:"classification"`
	PriceCents     int64          `json:"price_cents"`
	Label          string         `json:"label"`
	Description    string         `json:"description"`
	PriceID        string         `json:"price_id"`
}

var tiers = map[Classification]Tier{
	Standard: {
		Classification: Standard,
		PriceCents:     50000,
		Label:          "Standard (Worker/Tradesman)",
		Description:    "For general tradesmen positions",
		PriceID:        "price_standard_job",
	},
	Premium: {
		Classification: Premium,
		PriceCents:     150000,
		Label:          "Premium (Project Manager, Superintendent, Executive)",
		Description:    "For leadership and management positions",
		PriceID:        "price_premium_job",
	},
}

// Lookup returns the tier for a raw classification value. Matching is exact:
// "standard" is not a known classification.
func Lookup(classification string) (Tier, bool) {
	t, ok := tiers[Classification(classification)]
	return t, ok
}

// IsKnown reports whether classification names a tier.
func IsKnown(classification string) bool {
	_, ok := tiers[Classification(classification)]
	return ok
}

// All returns every tier ordered by ascending price.
func All() []Tier {
	out := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out
}

// FormatAmount renders an amount in cents as a decimal with two places.
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
