package geoglobe

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func loadTestCountries(t *testing.T) []Country {
	t.Helper()
	countries, err := LoadCountries(filepath.Join("testdata", "countries.geojson"))
	if err != nil {
		t.Fatal(err)
	}
	return countries
}

func TestLoadCountries(t *testing.T) {
	countries := loadTestCountries(t)

	want := []struct {
		id, name, isoA3, geomType string
	}{
		{"840", "Squareland", "USA", "Polygon"},
		{"156", "Taiwan", "TWN", "Polygon"},
		{"250", "France", "FRA", "MultiPolygon"},
		{"ATA", "Pointland", "ATA", "Point"},
		{"076", "Holeland", "BRA", "Polygon"},
		{"Nameless", "Nameless", "", "Polygon"},
	}
	if len(countries) != len(want) {
		t.Fatalf("loaded %d countries, want %d", len(countries), len(want))
	}
	for i, w := range want {
		c := countries[i]
		if c.ID != w.id || c.Name != w.name || c.ISOA3 != w.isoA3 {
			t.Errorf("country %d = %q/%q/%q, want %q/%q/%q", i, c.ID, c.Name, c.ISOA3, w.id, w.name, w.isoA3)
		}
		if c.Geometry == nil || c.Geometry.GeoJSONType() != w.geomType {
			t.Errorf("country %d geometry = %v, want %s", i, c.Geometry, w.geomType)
		}
	}
}

func TestLoadCountriesErrors(t *testing.T) {
	if _, err := LoadCountries(filepath.Join("testdata", "nope.geojson")); err == nil {
		t.Error("missing file loaded without error")
	}
	if _, err := ParseCountries([]byte(`{"type": "FeatureCollection", "features": [`)); err == nil {
		t.Error("truncated geojson parsed without error")
	}
}

func TestFeatureID(t *testing.T) {
	tests := []struct {
		name  string
		id    interface{}
		props geojson.Properties
		want  string
	}{
		{"numeric id", float64(4), nil, "004"},
		{"string id", "840", nil, "840"},
		{"padded string id", "76", nil, "076"},
		{"alpha id", "USA", nil, "USA"},
		{"int id", 36, nil, "036"},
		{"fractional id", 1.5, geojson.Properties{"ISO_N3": "250"}, "250"},
		{"iso_n3 property", nil, geojson.Properties{"ISO_N3": "392"}, "392"},
		{"numeric property", nil, geojson.Properties{"iso_n3": float64(8)}, "008"},
		{"missing code", nil, geojson.Properties{"ISO_N3": "-99"}, ""},
		{"extended code", nil, geojson.Properties{"ISO_N3": "-99", "ISO_N3_EH": "250"}, "250"},
		{"lower case extended code", nil, geojson.Properties{"iso_n3": "-99", "iso_n3_eh": "578"}, "578"},
		{"plain code beats extended", nil, geojson.Properties{"ISO_N3": "392", "ISO_N3_EH": "999"}, "392"},
		{"nothing", nil, geojson.Properties{}, ""},
	}
	for _, tt := range tests {
		f := geojson.NewFeature(orb.Point{})
		f.ID = tt.id
		if tt.props != nil {
			f.Properties = tt.props
		}
		if got := featureID(f); got != tt.want {
			t.Errorf("%s: featureID = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseCountriesExtendedCodes(t *testing.T) {
	data := []byte(`{"type": "FeatureCollection", "features": [
		{"type": "Feature",
		 "properties": {"NAME": "France", "ISO_A3": "-99", "ISO_N3": "-99", "ADM0_A3": "FRA", "ISO_A3_EH": "FRA", "ISO_N3_EH": "250"},
		 "geometry": {"type": "Polygon", "coordinates": [[[0, 44], [5, 44], [5, 49], [0, 49], [0, 44]]]}},
		{"type": "Feature",
		 "properties": {"NAME": "Norway", "ISO_A3": "-99", "ISO_N3": "-99", "ADM0_A3": "NOR", "ISO_A3_EH": "NOR", "ISO_N3_EH": "578"},
		 "geometry": {"type": "Polygon", "coordinates": [[[6, 59], [11, 59], [11, 63], [6, 63], [6, 59]]]}}
	]}`)

	countries, err := ParseCountries(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(countries) != 2 {
		t.Fatalf("parsed %d countries, want 2", len(countries))
	}

	tests := []struct {
		id, isoA3, alpha3 string
	}{
		{"250", "FRA", "FRA"},
		{"578", "NOR", ""},
	}
	for i, tt := range tests {
		c := countries[i]
		if c.ID != tt.id || c.ISOA3 != tt.isoA3 {
			t.Errorf("%s tagged %q/%q, want %q/%q", c.Name, c.ID, c.ISOA3, tt.id, tt.isoA3)
		}
		alpha3, _ := Normalize(c.ID)
		if alpha3 != tt.alpha3 {
			t.Errorf("Normalize(%q) = %q, want %q", c.ID, alpha3, tt.alpha3)
		}
	}

	g := NewGlobeFromCountries(countries, WithDataDir(t.TempDir()))
	alpha3, facts, ok := g.Describe(countries[0].ID)
	if !ok || alpha3 != "FRA" || facts.Capital != "Paris" {
		t.Errorf("Describe(France) = %q, %+v, %v", alpha3, facts, ok)
	}
}

func TestCountryCacheRoundTrip(t *testing.T) {
	countries := loadTestCountries(t)
	dir := t.TempDir()

	if err := storeCountries(dir, countries); err != nil {
		t.Fatal(err)
	}
	got, err := loadCachedCountries(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(countries) {
		t.Fatalf("cache returned %d countries, want %d", len(got), len(countries))
	}
	for i := range countries {
		want := countries[i]
		if want.Geometry.GeoJSONType() == "Point" {
			// Only polygonal geometry keeps its coordinates.
			want.Geometry = orb.Point{}
		}
		if !reflect.DeepEqual(got[i], want) {
			t.Errorf("country %d = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestLoadCachedCountriesErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := loadCachedCountries(dir); err == nil {
		t.Error("missing cache loaded without error")
	}

	if err := storeCountries(dir, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCachedCountries(dir); err == nil {
		t.Error("empty cache loaded without error")
	}

	if err := os.WriteFile(filepath.Join(dir, countryCacheFile), []byte("not gob"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCachedCountries(dir); err == nil {
		t.Error("corrupt cache loaded without error")
	}
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/countries.geojson" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.geojson")
	if err := downloadFile(srv.Client(), srv.URL+"/countries.geojson", ok); err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(ok); len(data) == 0 {
		t.Error("downloaded file is empty")
	}

	bad := filepath.Join(dir, "bad.geojson")
	if err := downloadFile(srv.Client(), srv.URL+"/missing", bad); err == nil {
		t.Error("404 downloaded without error")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Error("failed download left a file behind")
	}
}

func TestBuildMeshesReport(t *testing.T) {
	log, hook := test.NewNullLogger()
	countries := append(loadTestCountries(t), Country{ID: "000", Name: "Degenerate", Geometry: orb.Polygon{{{0, 0}}}})

	meshes, report := BuildMeshes(countries, DefaultRadius, log)
	if len(meshes) != len(countries) {
		t.Fatalf("got %d meshes for %d countries", len(meshes), len(countries))
	}
	for i := range countries {
		if meshes[i].CountryID() != countries[i].ID {
			t.Errorf("mesh %d tagged %q, want %q", i, meshes[i].CountryID(), countries[i].ID)
		}
	}
	if report.Built != 5 || report.Empty != 1 {
		t.Errorf("report = %+v, want 5 built and 1 empty", report)
	}
	if !reflect.DeepEqual(report.Skipped, []string{"ATA"}) {
		t.Errorf("skipped = %v, want [ATA]", report.Skipped)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning, got %v", entry)
	}
	if entry.Data["country_id"] != "ATA" || entry.Data["geometry_type"] != "Point" {
		t.Errorf("warning fields = %v", entry.Data)
	}
}
