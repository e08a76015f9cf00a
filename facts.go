package geoglobe

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

//go:embed countryfacts.json
var countryFactsData []byte

// Illustrated is a named item with a picture and a caption.
type Illustrated struct {
	Name        string `json:"name"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
}

// Currency describes a country's legal tender.
type Currency struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Symbol      string `json:"symbol,omitempty"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
}

// CountryFacts is what the info panel shows for a country.
type CountryFacts struct {
	Alpha3       string      `json:"alpha3"`
	Name         string      `json:"name"`
	Flag         Illustrated `json:"flag"`
	Capital      string      `json:"capital"`
	Population   string      `json:"population"`
	Area         string      `json:"area"`
	FamousAnimal Illustrated `json:"famousAnimal"`
	Currency     Currency    `json:"currency"`
	Curated      bool        `json:"curated"` // False when derived from geonames country info
}

// FactBook indexes CountryFacts by alpha-3 code. A FactBook is read-only once
// built and safe for concurrent use.
type FactBook struct {
	byAlpha3 map[string]CountryFacts
}

// parseFactBook decodes the alpha-3 keyed JSON document of curated facts.
func parseFactBook(data []byte) (*FactBook, error) {
	var raw map[string]CountryFacts
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing country facts: %w", err)
	}
	fb := &FactBook{byAlpha3: make(map[string]CountryFacts, len(raw))}
	for code, f := range raw {
		f.Alpha3 = code
		f.Curated = true
		fb.byAlpha3[code] = f
	}
	return fb, nil
}

// curatedFacts is the embedded fact book, decoded once.
var curatedFacts = sync.OnceValues(func() (*FactBook, error) {
	return parseFactBook(countryFactsData)
})

// DefaultFactBook returns a copy of the embedded curated fact book.
func DefaultFactBook() (*FactBook, error) {
	fb, err := curatedFacts()
	if err != nil {
		return nil, err
	}
	return fb.clone(), nil
}

func (fb *FactBook) clone() *FactBook {
	out := &FactBook{byAlpha3: make(map[string]CountryFacts, len(fb.byAlpha3))}
	for k, v := range fb.byAlpha3 {
		out.byAlpha3[k] = v
	}
	return out
}

// Lookup returns the facts for an alpha-3 code. A miss means there is nothing
// to show for that country.
func (fb *FactBook) Lookup(alpha3 string) (CountryFacts, bool) {
	if fb == nil {
		return CountryFacts{}, false
	}
	f, ok := fb.byAlpha3[alpha3]
	return f, ok
}

// Codes returns the alpha-3 codes in the book, sorted.
func (fb *FactBook) Codes() []string {
	codes := make([]string, 0, len(fb.byAlpha3))
	for k := range fb.byAlpha3 {
		codes = append(codes, k)
	}
	sort.Strings(codes)
	return codes
}

// Len returns the number of countries in the book.
func (fb *FactBook) Len() int { return len(fb.byAlpha3) }

// Merge adds facts derived from geonames country info for every country the
// book does not already describe. Curated entries are never overwritten.
func (fb *FactBook) Merge(infos []CountryInfo) int {
	added := 0
	for _, ci := range infos {
		if ci.ISO3 == "" {
			continue
		}
		if _, ok := fb.byAlpha3[ci.ISO3]; ok {
			continue
		}
		fb.byAlpha3[ci.ISO3] = ci.Facts()
		added++
	}
	return added
}

// CountryInfo contains metadata about a country from geonames countryInfo.txt.
type CountryInfo struct {
	ISO          string
	ISO3         string
	ISONumeric   int
	Country      string
	Capital      string
	Area         float64 // km²
	Population   int64
	Continent    string
	CurrencyCode string
	CurrencyName string
}

// Facts renders the country info the way the info panel expects it.
func (ci CountryInfo) Facts() CountryFacts {
	f := CountryFacts{
		Alpha3:     ci.ISO3,
		Name:       ci.Country,
		Capital:    ci.Capital,
		Population: humanCount(float64(ci.Population)),
		Area:       humanArea(ci.Area),
		Currency:   Currency{Name: ci.CurrencyName, Code: ci.CurrencyCode},
	}
	if ci.ISO != "" {
		f.Flag = Illustrated{
			Name:  "Flag of " + ci.Country,
			Image: "https://flagcdn.com/w640/" + strings.ToLower(ci.ISO) + ".png",
		}
	}
	return f
}

func humanCount(n float64) string {
	switch {
	case n <= 0:
		return ""
	case n >= 1e9:
		return strconv.FormatFloat(float64(int64(n/1e7))/100, 'f', -1, 64) + " billion"
	case n >= 1e6:
		return strconv.FormatFloat(float64(int64(n/1e5))/10, 'f', -1, 64) + " million"
	default:
		return strconv.FormatInt(int64(n), 10)
	}
}

func humanArea(km2 float64) string {
	switch {
	case km2 <= 0:
		return ""
	case km2 >= 1e6:
		return strconv.FormatFloat(float64(int64(km2/1e4))/100, 'f', -1, 64) + " million km²"
	default:
		return strconv.FormatInt(int64(km2), 10) + " km²"
	}
}

// loadGeonamesCountryInfo parses geonames countryInfo.txt. Comment lines and
// rows with the wrong field count are skipped.
func loadGeonamesCountryInfo(path string) ([]CountryInfo, error) {
	fi, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer fi.Close()

	var infos []CountryInfo
	scanner := bufio.NewScanner(fi)
	for scanner.Scan() {
		t := scanner.Text()
		if len(t) == 0 || t[0] == '#' {
			continue
		}

		fields := strings.SplitN(t, "\t", 19)
		if len(fields) != 19 || fields[0] == "" || fields[0] == "0" {
			continue
		}

		isoNumeric, _ := strconv.Atoi(fields[2])
		area, _ := strconv.ParseFloat(fields[6], 64)
		pop, _ := strconv.ParseInt(fields[7], 10, 64)

		infos = append(infos, CountryInfo{
			ISO:          fields[0],
			ISO3:         fields[1],
			ISONumeric:   isoNumeric,
			Country:      fields[4],
			Capital:      fields[5],
			Area:         area,
			Population:   pop,
			Continent:    fields[8],
			CurrencyCode: fields[10],
			CurrencyName: fields[11],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return infos, nil
}
