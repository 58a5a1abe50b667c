// Package reference holds the static lookup tables used by the generators
// and the scoring engine.
package reference

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Merchant is a named merchant with its category and intrinsic risk weight.
type Merchant struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Risk     float64 `json:"risk"`
}

// Country is an ISO country code with its intrinsic risk weight.
type Country struct {
	Code string  `json:"code"`
	Risk float64 `json:"risk"`
}

// HighRiskCountryThreshold separates high-risk countries (strictly above)
// from low-risk ones.
const HighRiskCountryThreshold = 0.3

// AccountPoolSize is the number of accounts in the simulated transfer pool.
const AccountPoolSize = 50

var merchants = []Merchant{
	{Name: "Amazon", Category: "E-commerce", Risk: 0.1},
	{Name: "Walmart", Category: "Retail", Risk: 0.05},
	{Name: "Shell Gas", Category: "Gas Station", Risk: 0.15},
	{Name: "Netflix", Category: "Subscription", Risk: 0.02},
	{Name: "CryptoExchange", Category: "Cryptocurrency", Risk: 0.7},
	{Name: "CasinoRoyale", Category: "Gambling", Risk: 0.6},
	{Name: "WireTransferCo", Category: "Money Transfer", Risk: 0.5},
	{Name: "Apple Store", Category: "Electronics", Risk: 0.2},
	{Name: "BestBuy", Category: "Electronics", Risk: 0.15},
	{Name: "Starbucks", Category: "Food & Beverage", Risk: 0.02},
	{Name: "Unknown Merchant", Category: "Unknown", Risk: 0.8},
	{Name: "FastCash ATM", Category: "ATM", Risk: 0.4},
}

var countries = []Country{
	{Code: "US", Risk: 0.1},
	{Code: "UK", Risk: 0.1},
	{Code: "NG", Risk: 0.6},
	{Code: "RU", Risk: 0.5},
	{Code: "CN", Risk: 0.3},
	{Code: "BR", Risk: 0.3},
	{Code: "DE", Risk: 0.1},
	{Code: "JP", Risk: 0.1},
}

var states = []string{"CA", "NY", "TX", "FL", "IL", "WA", "MA", "CO", "GA", "AZ"}

var channels = []domain.Channel{
	domain.ChannelCard,
	domain.ChannelACH,
	domain.ChannelWire,
	domain.ChannelInstant,
}

var accountPool = buildAccountPool(AccountPoolSize)

func buildAccountPool(n int) []string {
	pool := make([]string, n)
	for i := range pool {
		pool[i] = fmt.Sprintf("ACC-%04d", i+1)
	}
	return pool
}

// Merchants returns a copy of the merchant table.
func Merchants() []Merchant {
	return append([]Merchant(nil), merchants...)
}

// MerchantByName looks up a merchant by exact name.
func MerchantByName(name string) (Merchant, bool) {
	for _, m := range merchants {
		if m.Name == name {
			return m, true
		}
	}
	return Merchant{}, false
}

// Countries returns a copy of the country table.
func Countries() []Country {
	return append([]Country(nil), countries...)
}

// CountryByCode looks up a country by its code.
func CountryByCode(code string) (Country, bool) {
	for _, c := range countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

// CountriesWhere returns the countries matching pred, in table order.
func CountriesWhere(pred func(Country) bool) []Country {
	var out []Country
	for _, c := range countries {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// HighRiskCountries returns countries with risk above HighRiskCountryThreshold.
func HighRiskCountries() []Country {
	return CountriesWhere(func(c Country) bool { return c.Risk > HighRiskCountryThreshold })
}

// LowRiskCountries returns countries with risk at or below HighRiskCountryThreshold.
func LowRiskCountries() []Country {
	return CountriesWhere(func(c Country) bool { return c.Risk <= HighRiskCountryThreshold })
}

// States returns a copy of the US state table.
func States() []string {
	return append([]string(nil), states...)
}

// Channels returns a copy of the channel table.
func Channels() []domain.Channel {
	return append([]domain.Channel(nil), channels...)
}

// AccountPool returns a copy of the simulated account identifiers,
// ACC-0001 through ACC-0050.
func AccountPool() []string {
	return append([]string(nil), accountPool...)
}
