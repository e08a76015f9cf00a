package geoglobe

import (
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/sirupsen/logrus"
)

// GlobeConfig contains configuration options for Globe initialization.
type GlobeConfig struct {
	DataDir       string             // Directory for raw data files (default: "./globe-data")
	CacheDir      string             // Directory for the parsed country cache; empty disables caching (default: "./globe-cache")
	CountriesFile string             // Country GeoJSON file name inside DataDir
	CountriesURL  string             // Where to fetch CountriesFile when it is missing
	Radius        float64            // Globe radius in scene units
	LineThreshold float64            // Ray-to-boundary distance that counts as a hit
	Offline       bool               // Never download; fail if required data is missing
	HTTPClient    *http.Client       // Client for downloads (default: 30s timeout)
	Logger        logrus.FieldLogger // Diagnostics sink (default: logrus standard logger)
}

// Option is a functional option for configuring Globe.
type Option func(*GlobeConfig)

// WithDataDir sets the directory for raw data files.
func WithDataDir(dir string) Option {
	return func(c *GlobeConfig) {
		c.DataDir = dir
	}
}

// WithCacheDir sets the directory for cache files. An empty directory
// disables the cache.
func WithCacheDir(dir string) Option {
	return func(c *GlobeConfig) {
		c.CacheDir = dir
	}
}

// WithCountriesFile sets the GeoJSON file name read from the data directory.
func WithCountriesFile(name string) Option {
	return func(c *GlobeConfig) {
		c.CountriesFile = name
	}
}

// WithDatasetURL sets where the countries file is downloaded from.
func WithDatasetURL(url string) Option {
	return func(c *GlobeConfig) {
		c.CountriesURL = url
	}
}

// WithRadius sets the globe radius. Non-positive values are ignored.
func WithRadius(r float64) Option {
	return func(c *GlobeConfig) {
		if r > 0 {
			c.Radius = r
		}
	}
}

// WithLineThreshold sets how close a ray must pass to a boundary segment.
func WithLineThreshold(t float64) Option {
	return func(c *GlobeConfig) {
		if t > 0 {
			c.LineThreshold = t
		}
	}
}

// WithOffline disables all downloads.
func WithOffline() Option {
	return func(c *GlobeConfig) {
		c.Offline = true
	}
}

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *GlobeConfig) {
		c.HTTPClient = client
	}
}

// WithLogger sets the logger for load and build diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *GlobeConfig) {
		c.Logger = l
	}
}

func defaultConfig() *GlobeConfig {
	return &GlobeConfig{
		DataDir:       "./globe-data",
		CacheDir:      "./globe-cache",
		CountriesFile: "ne_110m_admin_0_countries.geojson",
		CountriesURL:  DefaultCountriesURL,
		Radius:        DefaultRadius,
		LineThreshold: DefaultLineThreshold,
		HTTPClient:    httpClient,
		Logger:        logrus.StandardLogger(),
	}
}

// Globe holds the loaded countries and the meshes built from them. It is
// read-only after NewGlobe returns and safe for concurrent use.
type Globe struct {
	countries []Country
	meshes    []TaggedMesh // Indexed like countries
	byID      map[string]int
	report    BuildReport
	facts     *FactBook
	locator   *locator
	config    *GlobeConfig
	log       logrus.FieldLogger
}

// maxFuzzyDistance caps FindCountry's edit distance.
const maxFuzzyDistance = 3

// maxNameInputLen bounds FindCountry input before Levenshtein runs on it.
const maxNameInputLen = 256

// NewGlobe loads the world's countries and builds their meshes. Loading
// finishes before any mesh is built, and the returned Globe is ready for
// picking.
//
// Countries are read from the cache directory when a cache exists, otherwise
// from the raw GeoJSON in the data directory, which is downloaded first if it
// is missing:
//
//	g, err := NewGlobe(WithDataDir("/srv/globe"), WithRadius(100))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	hit, ok := g.Pick(ray, 0)
func NewGlobe(opts ...Option) (*Globe, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	g := &Globe{config: cfg, log: cfg.Logger}

	countries, err := g.loadCountries()
	if err != nil {
		return nil, err
	}
	g.init(countries)
	return g, nil
}

// NewGlobeFromCountries builds a Globe from countries already in memory.
func NewGlobeFromCountries(countries []Country, opts ...Option) *Globe {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	g := &Globe{config: cfg, log: cfg.Logger}
	g.init(countries)
	return g
}

// loadCountries is the first phase: cache, else raw data (downloaded when
// missing), then refresh the cache.
func (g *Globe) loadCountries() ([]Country, error) {
	if g.config.CacheDir != "" {
		countries, err := loadCachedCountries(g.config.CacheDir)
		if err == nil {
			g.log.WithField("countries", len(countries)).Debug("loaded countries from cache")
			return countries, nil
		}
		g.log.WithError(err).Debug("country cache unavailable, loading raw data")
	}

	if err := g.downloadDataSets(); err != nil {
		return nil, fmt.Errorf("failed to download data sets: %w", err)
	}
	countries, err := LoadCountries(filepath.Join(g.config.DataDir, g.config.CountriesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load data sets: %w", err)
	}

	if g.config.CacheDir != "" {
		if err := storeCountries(g.config.CacheDir, countries); err != nil {
			g.log.WithError(err).Warn("failed to store country cache")
		}
	}
	return countries, nil
}

// init is the second phase: facts, meshes and lookup indexes.
func (g *Globe) init(countries []Country) {
	g.countries = countries

	facts, err := DefaultFactBook()
	if err != nil {
		g.log.WithError(err).Warn("embedded country facts unavailable")
		facts = &FactBook{byAlpha3: map[string]CountryFacts{}}
	}
	infoPath := filepath.Join(g.config.DataDir, "countryInfo.txt")
	if _, statErr := os.Stat(infoPath); statErr == nil {
		infos, err := loadGeonamesCountryInfo(infoPath)
		if err != nil {
			g.log.WithError(err).WithField("path", infoPath).Warn("country info not loaded")
		} else {
			added := facts.Merge(infos)
			g.log.WithField("added", added).Debug("merged geonames country info")
		}
	}
	g.facts = facts

	g.meshes, g.report = BuildMeshes(countries, g.config.Radius, g.log)

	g.byID = make(map[string]int, len(countries))
	for i, c := range countries {
		if _, dup := g.byID[c.ID]; !dup {
			g.byID[c.ID] = i
		}
	}
	g.locator = newLocator(countries)

	g.log.WithFields(logrus.Fields{
		"countries": len(countries),
		"built":     g.report.Built,
		"empty":     g.report.Empty,
		"skipped":   len(g.report.Skipped),
	}).Info("globe meshes built")
}

// Countries returns the loaded countries in data set order. The slice must
// not be modified.
func (g *Globe) Countries() []Country { return g.countries }

// Meshes returns one TaggedMesh per country, in the same order as Countries.
// The slice must not be modified.
func (g *Globe) Meshes() []TaggedMesh { return g.meshes }

// Report returns the outcome of mesh construction.
func (g *Globe) Report() BuildReport { return g.report }

// Radius returns the radius every mesh was built with.
func (g *Globe) Radius() float64 { return g.config.Radius }

// FactBook returns the facts available to Describe.
func (g *Globe) FactBook() *FactBook { return g.facts }

// Country returns the country tagged with id.
func (g *Globe) Country(id string) (Country, bool) {
	i, ok := g.byID[id]
	if !ok {
		return Country{}, false
	}
	return g.countries[i], true
}

// Mesh returns the mesh of the country tagged with id.
func (g *Globe) Mesh(id string) (TaggedMesh, bool) {
	i, ok := g.byID[id]
	if !ok {
		return TaggedMesh{}, false
	}
	return g.meshes[i], true
}

// Pick resolves a world-space ray against the globe's meshes. rotation is the
// globe's current turn about +Y in radians; the ray is brought into the
// globe's frame before resolving.
func (g *Globe) Pick(ray Ray, rotation float64) (PickResult, bool) {
	local := ray.RotateY(-rotation)
	hit, ok := Resolve(local, g.meshes, PickOptions{LineThreshold: g.config.LineThreshold})
	if ok {
		hit.Point = rotateY(hit.Point, rotation)
	}
	return hit, ok
}

// PickScreen picks through a pointer position in pixels on a viewport of the
// given size.
func (g *Globe) PickScreen(cam Camera, clientX, clientY, width, height, rotation float64) (PickResult, bool) {
	x, y := NDC(clientX, clientY, width, height)
	return g.Pick(cam.Ray(x, y), rotation)
}

// PickGeographic intersects the ray with the globe sphere and returns the
// country whose true outline contains the hit point.
func (g *Globe) PickGeographic(ray Ray, rotation float64) (Country, bool) {
	local := ray.RotateY(-rotation)
	t, ok := IntersectSphere(local, g.config.Radius)
	if !ok {
		return Country{}, false
	}
	lon, lat := Unproject(local.At(t))
	return g.Locate(lat, lon)
}

// Locate returns the country containing a geographic point in degrees.
func (g *Globe) Locate(lat, lon float64) (Country, bool) {
	i, ok := g.locator.locate(lat, lon)
	if !ok {
		return Country{}, false
	}
	return g.countries[i], true
}

// Describe normalizes a picked country id and looks up what to show for it.
// The alpha-3 code is returned even when there are no facts for it.
func (g *Globe) Describe(countryID string) (alpha3 string, facts CountryFacts, ok bool) {
	alpha3, found := Normalize(countryID)
	if !found {
		return "", CountryFacts{}, false
	}
	facts, ok = g.facts.Lookup(alpha3)
	return alpha3, facts, ok
}

// FindCountry finds a country by display name. An exact case-insensitive
// match wins; otherwise the closest name within maxDist edits is returned
// (maxDist is capped at 3, 0 means exact only).
func (g *Globe) FindCountry(name string, maxDist int) (Country, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Country{}, false
	}
	if runes := []rune(name); len(runes) > maxNameInputLen {
		name = string(runes[:maxNameInputLen])
	}
	if maxDist > maxFuzzyDistance {
		maxDist = maxFuzzyDistance
	}

	for _, c := range g.countries {
		if strings.EqualFold(name, c.Name) {
			return c, true
		}
	}
	if maxDist <= 0 {
		return Country{}, false
	}

	best, bestDist := -1, math.MaxInt
	for i, c := range g.countries {
		if d, ok := fuzzyMatch(name, c.Name, maxDist); ok && d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Country{}, false
	}
	return g.countries[best], true
}

// fuzzyMatch returns the case-insensitive Levenshtein distance between two
// strings and whether it is within maxDist.
func fuzzyMatch(query, candidate string, maxDist int) (int, bool) {
	dist := levenshtein.ComputeDistance(
		strings.ToLower(query),
		strings.ToLower(candidate),
	)
	return dist, dist <= maxDist
}

// RegenerateCache reloads countries from the raw data files, downloading them
// if needed, and rewrites the cache.
func RegenerateCache(opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.CacheDir == "" {
		return fmt.Errorf("no cache directory configured")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	g := &Globe{config: cfg, log: cfg.Logger}

	if err := g.downloadDataSets(); err != nil {
		return fmt.Errorf("failed to download data sets: %w", err)
	}
	countries, err := LoadCountries(filepath.Join(cfg.DataDir, cfg.CountriesFile))
	if err != nil {
		return fmt.Errorf("failed to load data sets: %w", err)
	}
	if err := storeCountries(cfg.CacheDir, countries); err != nil {
		return fmt.Errorf("failed to store cache: %w", err)
	}
	return nil
}

// minCountryCount is the fewest features a world data set may have.
const minCountryCount = 150

// validationPoint is a known location and the country id it must resolve to.
type validationPoint struct {
	lat, lon float64
	wantID   string
}

var knownPoints = []validationPoint{
	{39.0, -98.0, "840"},   // Kansas, United States
	{-15.8, -47.9, "076"},  // Brasília
	{28.6, 77.2, "356"},    // New Delhi
	{-25.0, 134.0, "036"},  // Central Australia
	{25.04, 121.53, "156"}, // Taipei, folded into China
	{46.5, 2.5, "250"},     // Central France, coded only in ISO_N3_EH
}

// ValidateCache loads the cache and checks it is complete enough to serve.
func ValidateCache(opts ...Option) error {
	opts = append(opts, WithOffline())
	g, err := NewGlobe(opts...)
	if err != nil {
		return fmt.Errorf("failed to load cache: %w", err)
	}
	if n := len(g.countries); n < minCountryCount {
		return fmt.Errorf("country count too low: got %d, want >= %d", n, minCountryCount)
	}
	for _, p := range knownPoints {
		c, ok := g.Locate(p.lat, p.lon)
		if !ok {
			return fmt.Errorf("locate(%v, %v) found no country, want %s", p.lat, p.lon, p.wantID)
		}
		if c.ID != p.wantID {
			return fmt.Errorf("locate(%v, %v) = %s, want %s", p.lat, p.lon, c.ID, p.wantID)
		}
	}
	return nil
}
