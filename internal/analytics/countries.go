package analytics

import (
	"strings"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownCountry labels rows without a resolved country.
const UnknownCountry = "Unknown"

var countryQuery = gountries.New()

// CountryName maps an ISO 3166-1 alpha-2 code to its common English name.
// Unknown codes are returned upper-cased; empty codes become UnknownCountry.
func CountryName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || code == UnknownCountry {
		return UnknownCountry
	}

	country, err := countryQuery.FindCountryByAlpha(code)
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(code)
	}
	return country.Name.Common
}

// WithCountryNames replaces ISO codes in ranked entries with display names,
// keeping the code alongside.
func WithCountryNames(items []NamedCount) []NamedCount {
	result := make([]NamedCount, len(items))
	for i, item := range items {
		result[i] = NamedCount{Name: CountryName(item.Name), Count: item.Count}
		if item.Name != UnknownCountry {
			result[i].Code = strings.ToUpper(item.Name)
		}
	}
	return result
}
