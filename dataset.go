package geoglobe

import (
	"bytes"
	"compress/bzip2"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

// DataSourceID identifies a data source type.
type DataSourceID string

const (
	DataSourceCountries   DataSourceID = "naturalEarthCountries"
	DataSourceCountryInfo DataSourceID = "geonamesCountryInfo"
)

// DataSource defines a downloadable input file.
type DataSource struct {
	URL      string       // Download URL
	File     string       // File name inside the data directory
	ID       DataSourceID // Identifier for processing logic
	Optional bool         // Missing optional sources are logged, not fatal
}

// DefaultCountriesURL points at the Natural Earth 1:110m admin-0 countries.
const DefaultCountriesURL = "https://raw.githubusercontent.com/nvkelso/natural-earth-vector/master/geojson/ne_110m_admin_0_countries.geojson"

const countryInfoURL = "https://download.geonames.org/export/dump/countryInfo.txt"

// countryCacheFile is the gob dump of parsed countries inside the cache dir.
const countryCacheFile = "countries.dmp"

// dataSources returns the inputs for a configuration, countries first.
func dataSources(cfg *GlobeConfig) []DataSource {
	return []DataSource{
		{URL: cfg.CountriesURL, File: cfg.CountriesFile, ID: DataSourceCountries},
		{URL: countryInfoURL, File: "countryInfo.txt", ID: DataSourceCountryInfo, Optional: true},
	}
}

// Country is one feature of the world data set: the identifier it is tagged
// with, its display name and its boundary.
type Country struct {
	ID       string       // Tag identifier, after the Taiwan override
	Name     string       // Display name
	ISOA3    string       // ISO alpha-3 code from the feature properties, if any
	Geometry orb.Geometry // Polygon or MultiPolygon; anything else builds an empty mesh
}

// countryGob is the gob-friendly form of Country. orb.Geometry is an
// interface, so polygons are stored as plain nested slices.
type countryGob struct {
	ID       string
	Name     string
	ISOA3    string
	Type     string
	Polygons [][][][2]float64
}

// downloadMu serialises downloads so concurrent NewGlobe calls with a cold
// data directory do not write the same file twice.
var downloadMu sync.Mutex

// httpClient is the default client for data downloads.
var httpClient = &http.Client{
	Timeout: 30 * time.Second,
}

// downloadDataSets fetches every data source missing from the data directory.
// Failures of optional sources are logged and skipped.
func (g *Globe) downloadDataSets() error {
	downloadMu.Lock()
	defer downloadMu.Unlock()

	if err := os.MkdirAll(g.config.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	for _, src := range dataSources(g.config) {
		localPath := filepath.Join(g.config.DataDir, src.File)
		if _, err := os.Stat(localPath); err == nil {
			continue
		}
		if g.config.Offline {
			if src.Optional {
				continue
			}
			return fmt.Errorf("%s missing at %s and downloads are disabled", src.ID, localPath)
		}
		if err := downloadFile(g.config.HTTPClient, src.URL, localPath); err != nil {
			if src.Optional {
				g.log.WithError(err).WithField("source", src.ID).Info("optional data source not downloaded")
				continue
			}
			return fmt.Errorf("downloading %s: %w", src.ID, err)
		}
		g.log.WithFields(logrus.Fields{"source": src.ID, "path": localPath}).Info("downloaded data source")
	}
	return nil
}

func downloadFile(client *http.Client, url, path string) error {
	if client == nil {
		client = httpClient
	}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", path, err)
	}

	success := false
	defer func() {
		out.Close()
		if !success {
			os.Remove(path)
		}
	}()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing file %s: %w", path, err)
	}
	success = true
	return nil
}

// LoadCountries reads a GeoJSON feature collection of countries. Features
// without a usable identifier are kept under their name so they still render.
func LoadCountries(path string) ([]Country, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseCountries(data)
}

// ParseCountries decodes a GeoJSON feature collection of countries.
func ParseCountries(data []byte) ([]Country, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}

	countries := make([]Country, 0, len(fc.Features))
	for _, f := range fc.Features {
		isoA3 := firstProperty(f.Properties, "ISO_A3", "iso_a3", "ISO_A3_EH", "iso_a3_eh", "ADM0_A3", "adm0_a3")
		id := SelectCountryID(featureID(f), isoA3)
		name := firstProperty(f.Properties, "name", "NAME", "ADMIN", "name_en")
		if name == "" {
			name = id
		}
		if id == "" {
			id = name
		}
		countries = append(countries, Country{
			ID:       id,
			Name:     name,
			ISOA3:    isoA3,
			Geometry: f.Geometry,
		})
	}
	return countries, nil
}

// featureID returns the feature-level identifier: the GeoJSON id, or a
// numeric ISO code carried in the properties. Numeric ids are zero padded to
// three digits so they match CountryCodeTable keys.
//
// Natural Earth leaves ISO_N3 at -99 for France and Norway and carries their
// codes in ISO_N3_EH only.
func featureID(f *geojson.Feature) string {
	var raw string
	switch v := f.ID.(type) {
	case string:
		raw = v
	case float64:
		if v == math.Trunc(v) {
			raw = strconv.FormatInt(int64(v), 10)
		}
	case int:
		raw = strconv.Itoa(v)
	}
	if raw == "" {
		raw = firstProperty(f.Properties, "id", "ISO_N3", "iso_n3", "ISO_N3_EH", "iso_n3_eh")
	}
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 {
			// Natural Earth marks missing codes with -99.
			return ""
		}
		return fmt.Sprintf("%03d", n)
	}
	return raw
}

// firstProperty returns the first non-empty string property among keys.
// Natural Earth uses "-99" for missing codes; those count as empty.
func firstProperty(props geojson.Properties, keys ...string) string {
	for _, k := range keys {
		v, ok := props[k]
		if !ok {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = strings.TrimSpace(t)
		case float64:
			if t == math.Trunc(t) {
				s = strconv.FormatInt(int64(t), 10)
			}
		}
		if s != "" && s != "-99" {
			return s
		}
	}
	return ""
}

// storeCountries writes the parsed countries to the cache directory.
func storeCountries(cacheDir string, countries []Country) error {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	out := make([]countryGob, len(countries))
	for i, c := range countries {
		out[i] = toGob(c)
	}

	b := new(bytes.Buffer)
	if err := gob.NewEncoder(b).Encode(out); err != nil {
		return fmt.Errorf("encoding countries: %w", err)
	}
	return os.WriteFile(filepath.Join(cacheDir, countryCacheFile), b.Bytes(), 0644)
}

// loadCachedCountries reads the gob cache written by storeCountries. A
// bzip2-compressed dump (countries.dmp.bz2) takes precedence.
func loadCachedCountries(cacheDir string) ([]Country, error) {
	r, cleanup, err := openOptionallyBzippedFile(filepath.Join(cacheDir, countryCacheFile))
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var in []countryGob
	if err := gob.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decoding country cache: %w", err)
	}
	if len(in) == 0 {
		return nil, errors.New("country cache is empty")
	}
	countries := make([]Country, len(in))
	for i, cg := range in {
		countries[i] = fromGob(cg)
	}
	return countries, nil
}

func openOptionallyBzippedFile(file string) (io.Reader, func() error, error) {
	fh, err := os.Open(file + ".bz2")
	if err != nil {
		fh, err = os.Open(file)
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", file, err)
		}
		return fh, fh.Close, nil
	}
	return bzip2.NewReader(fh), fh.Close, nil
}

func toGob(c Country) countryGob {
	cg := countryGob{ID: c.ID, Name: c.Name, ISOA3: c.ISOA3}
	switch g := c.Geometry.(type) {
	case orb.Polygon:
		cg.Type = g.GeoJSONType()
		cg.Polygons = [][][][2]float64{polygonToSlices(g)}
	case orb.MultiPolygon:
		cg.Type = g.GeoJSONType()
		for _, p := range g {
			cg.Polygons = append(cg.Polygons, polygonToSlices(p))
		}
	case nil:
	default:
		// Only the type survives; the mesh builder skips it either way.
		cg.Type = g.GeoJSONType()
	}
	return cg
}

func fromGob(cg countryGob) Country {
	c := Country{ID: cg.ID, Name: cg.Name, ISOA3: cg.ISOA3}
	switch cg.Type {
	case orb.Polygon{}.GeoJSONType():
		if len(cg.Polygons) > 0 {
			c.Geometry = polygonFromSlices(cg.Polygons[0])
		} else {
			c.Geometry = orb.Polygon{}
		}
	case orb.MultiPolygon{}.GeoJSONType():
		mp := make(orb.MultiPolygon, len(cg.Polygons))
		for i, p := range cg.Polygons {
			mp[i] = polygonFromSlices(p)
		}
		c.Geometry = mp
	case orb.Point{}.GeoJSONType():
		c.Geometry = orb.Point{}
	case orb.LineString{}.GeoJSONType():
		c.Geometry = orb.LineString{}
	case orb.MultiPoint{}.GeoJSONType():
		c.Geometry = orb.MultiPoint{}
	case orb.MultiLineString{}.GeoJSONType():
		c.Geometry = orb.MultiLineString{}
	case orb.Collection{}.GeoJSONType():
		c.Geometry = orb.Collection{}
	}
	return c
}

func polygonToSlices(p orb.Polygon) [][][2]float64 {
	rings := make([][][2]float64, len(p))
	for i, r := range p {
		pts := make([][2]float64, len(r))
		for j, pt := range r {
			pts[j] = [2]float64(pt)
		}
		rings[i] = pts
	}
	return rings
}

func polygonFromSlices(rings [][][2]float64) orb.Polygon {
	p := make(orb.Polygon, len(rings))
	for i, r := range rings {
		ring := make(orb.Ring, len(r))
		for j, pt := range r {
			ring[j] = orb.Point(pt)
		}
		p[i] = ring
	}
	return p
}

// BuildReport summarises a BuildMeshes run.
type BuildReport struct {
	Built   int      // Countries that produced at least one segment or triangle
	Empty   int      // Countries whose rings were all degenerate
	Skipped []string // Country ids with unsupported geometry
}

// BuildMeshes runs the mesh builder over every country in order. Unsupported
// geometry is logged and reported, never fatal: the country keeps an empty
// mesh so ids stay aligned with the input slice.
func BuildMeshes(countries []Country, radius float64, log logrus.FieldLogger) ([]TaggedMesh, BuildReport) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	meshes := make([]TaggedMesh, len(countries))
	var report BuildReport
	for i, c := range countries {
		mesh, err := BuildMesh(c.Geometry, c.ID, c.Name, radius)
		meshes[i] = mesh
		switch {
		case err != nil:
			report.Skipped = append(report.Skipped, mesh.CountryID())
			fields := logrus.Fields{
				"country_id":   mesh.CountryID(),
				"country_name": c.Name,
			}
			if c.Geometry != nil {
				fields["geometry_type"] = c.Geometry.GeoJSONType()
			}
			log.WithFields(fields).WithError(err).Warn("skipping country geometry")
		case mesh.Empty():
			report.Empty++
		default:
			report.Built++
		}
	}
	return meshes, report
}
