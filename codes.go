package geoglobe

import (
	"sort"
	"sync"
)

// CountryCodeTable maps ISO 3166-1 numeric codes, as three digit strings, to
// alpha-3 codes. It covers the countries the viewer knows how to describe and
// is treated as a versioned constant.
var CountryCodeTable = map[string]string{
	"004": "AFG", // Afghanistan
	"008": "ALB", // Albania
	"012": "DZA", // Algeria
	"024": "AGO", // Angola
	"032": "ARG", // Argentina
	"036": "AUS", // Australia
	"040": "AUT", // Austria
	"050": "BGD", // Bangladesh
	"056": "BEL", // Belgium
	"076": "BRA", // Brazil
	"124": "CAN", // Canada
	"156": "CHN", // China
	"250": "FRA", // France
	"276": "DEU", // Germany
	"356": "IND", // India
	"392": "JPN", // Japan
	"410": "KOR", // South Korea
	"484": "MEX", // Mexico
	"528": "NLD", // Netherlands
	"643": "RUS", // Russia
	"724": "ESP", // Spain
	"752": "SWE", // Sweden
	"756": "CHE", // Switzerland
	"826": "GBR", // United Kingdom
	"840": "USA", // United States
}

// Normalize maps a raw country identifier to its alpha-3 code. Lookup is exact
// and case sensitive; identifiers outside the table report false.
func Normalize(rawID string) (string, bool) {
	code, ok := CountryCodeTable[rawID]
	return code, ok
}

// NumericCodes returns the table's numeric codes in ascending order.
// Computed once; callers must not modify the result.
var NumericCodes = sync.OnceValue(func() []string {
	codes := make([]string, 0, len(CountryCodeTable))
	for k := range CountryCodeTable {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
})
