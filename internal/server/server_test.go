package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/andreiashu/geoglobe"
	"github.com/andreiashu/geoglobe/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testGlobeOnce sync.Once
	testGlobe     *geoglobe.Globe
	testGlobeErr  error
)

func loadTestGlobe(t *testing.T) *geoglobe.Globe {
	t.Helper()
	testGlobeOnce.Do(func() {
		log, _ := test.NewNullLogger()
		testGlobe, testGlobeErr = geoglobe.NewGlobe(
			geoglobe.WithDataDir(filepath.Join("..", "..", "testdata")),
			geoglobe.WithCountriesFile("countries.geojson"),
			geoglobe.WithCacheDir(""),
			geoglobe.WithOffline(),
			geoglobe.WithLogger(log),
		)
	})
	require.NoError(t, testGlobeErr)
	return testGlobe
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	metrics, err := observability.NewGlobeCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	return New(loadTestGlobe(t), metrics, log).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

const squareRay = `{"ray": {"origin": {"x": 200, "y": 2, "z": 3}, "direction": {"x": -1, "y": 0, "z": 0}}, "rotation": 0}`

func TestListCountries(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/countries", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var countries []countryJSON
	decode(t, rec, &countries)
	require.Len(t, countries, 6)
	assert.Equal(t, countryJSON{ID: "840", Name: "Squareland", Alpha3: "USA"}, countries[0])
	assert.Equal(t, countryJSON{ID: "156", Name: "Taiwan", Alpha3: "CHN"}, countries[1])
	assert.Equal(t, countryJSON{ID: "Nameless", Name: "Nameless"}, countries[5])
}

type meshBody struct {
	ID    string `json:"id"`
	Lines struct {
		Kind       string              `json:"kind"`
		Positions  []float32           `json:"positions"`
		Appearance geoglobe.Appearance `json:"appearance"`
	} `json:"lines"`
	Fill struct {
		Kind       string              `json:"kind"`
		Positions  []float32           `json:"positions"`
		Appearance geoglobe.Appearance `json:"appearance"`
	} `json:"fill"`
}

func TestListMeshes(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/meshes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var meshes []meshBody
	decode(t, rec, &meshes)
	require.Len(t, meshes, 5, "the point-only country has nothing to draw")

	square := meshes[0]
	assert.Equal(t, "840", square.ID)
	assert.Equal(t, "line", square.Lines.Kind)
	assert.Equal(t, "fill", square.Fill.Kind)
	assert.Len(t, square.Lines.Positions, 4*2*3)
	assert.Len(t, square.Fill.Positions, 3*3*3)
	assert.Equal(t, geoglobe.AppearanceFor(geoglobe.KindLine, false), square.Lines.Appearance)
	assert.Equal(t, geoglobe.AppearanceFor(geoglobe.KindFill, false), square.Fill.Appearance)
}

func TestPickSelectsCountry(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/pick", squareRay)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pickResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Hit)
	assert.Equal(t, "840", resp.CountryID)
	assert.Equal(t, "Squareland", resp.CountryName)
	assert.Equal(t, "fill", resp.Kind)
	assert.Equal(t, "USA", resp.Alpha3)
	require.NotNil(t, resp.Facts)
	assert.Equal(t, "United States", resp.Facts.Name)
	assert.False(t, resp.State.Rotating)
	assert.Equal(t, "840", resp.State.Selected)

	rec = do(t, h, http.MethodGet, "/api/meshes", "")
	var meshes []meshBody
	decode(t, rec, &meshes)
	assert.Equal(t, geoglobe.AppearanceFor(geoglobe.KindLine, true), meshes[0].Lines.Appearance)
	assert.Equal(t, geoglobe.AppearanceFor(geoglobe.KindFill, true), meshes[0].Fill.Appearance)
	assert.Equal(t, geoglobe.AppearanceFor(geoglobe.KindFill, false), meshes[1].Fill.Appearance)
}

func TestPickScreen(t *testing.T) {
	h := newTestServer(t)
	body := `{"screen": {"x": 400, "y": 290, "width": 800, "height": 600}, "rotation": 4.71238898038469}`
	rec := do(t, h, http.MethodPost, "/api/pick", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pickResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Hit)
	assert.Equal(t, "840", resp.CountryID)
}

func TestPickMissKeepsState(t *testing.T) {
	h := newTestServer(t)
	body := `{"ray": {"origin": {"x": 200, "y": 150, "z": 0}, "direction": {"x": -1, "y": 0, "z": 0}}}`
	rec := do(t, h, http.MethodPost, "/api/pick", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pickResponse
	decode(t, rec, &resp)
	assert.False(t, resp.Hit)
	assert.Empty(t, resp.CountryID)
	assert.Nil(t, resp.Facts)
	assert.True(t, resp.State.Rotating)
	assert.Empty(t, resp.State.Selected)
}

func TestPickTaiwanFoldsIntoChina(t *testing.T) {
	h := newTestServer(t)
	body := `{"ray": {"origin": {"x": 0, "y": 0, "z": 0}, "direction": {"x": -0.47, "y": 0.40, "z": -0.78}}, "rotation": 0}`
	rec := do(t, h, http.MethodPost, "/api/pick", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pickResponse
	decode(t, rec, &resp)
	require.True(t, resp.Hit, rec.Body.String())
	assert.Equal(t, "156", resp.CountryID)
	assert.Equal(t, "CHN", resp.Alpha3)
	require.NotNil(t, resp.Facts)
	assert.Equal(t, "Beijing", resp.Facts.Capital)
}

func TestPickBadRequests(t *testing.T) {
	h := newTestServer(t)
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"rotation": 1}`,
		`{"screen": {"x": 1, "y": 1, "width": 0, "height": 600}}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/pick", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := do(t, h, http.MethodGet, "/api/pick", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestViewStateRoutes(t *testing.T) {
	h := newTestServer(t)

	var state geoglobe.ViewState
	decode(t, do(t, h, http.MethodGet, "/api/state", ""), &state)
	assert.Equal(t, geoglobe.NewViewState(), state)

	decode(t, do(t, h, http.MethodPost, "/api/state/tick", `{"frames": 10}`), &state)
	assert.InDelta(t, 10*geoglobe.DefaultAutoRotateSpeed, state.Rotation, 1e-12)

	decode(t, do(t, h, http.MethodPost, "/api/state/tick", ""), &state)
	assert.InDelta(t, 11*geoglobe.DefaultAutoRotateSpeed, state.Rotation, 1e-12)

	rec := do(t, h, http.MethodPost, "/api/state/tick", `{"frames": "many"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Select, then leave the panel: spin resumes, selection stays.
	do(t, h, http.MethodPost, "/api/pick", squareRay)
	decode(t, do(t, h, http.MethodPost, "/api/state/tick", `{"frames": 100}`), &state)
	assert.False(t, state.Rotating)
	assert.InDelta(t, 11*geoglobe.DefaultAutoRotateSpeed, state.Rotation, 1e-12)

	decode(t, do(t, h, http.MethodPost, "/api/state/resume", ""), &state)
	assert.True(t, state.Rotating)
	assert.Equal(t, "840", state.Selected)

	decode(t, do(t, h, http.MethodPost, "/api/selection/clear", ""), &state)
	assert.True(t, state.Rotating)
	assert.Empty(t, state.Selected)
}

func TestTickChunkedEmptyBody(t *testing.T) {
	h := newTestServer(t)

	// A chunked request has no declared length; an empty one still ticks once.
	req := httptest.NewRequest(http.MethodPost, "/api/state/tick", strings.NewReader(""))
	req.ContentLength = -1
	req.TransferEncoding = []string{"chunked"}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var state geoglobe.ViewState
	decode(t, rec, &state)
	assert.InDelta(t, geoglobe.DefaultAutoRotateSpeed, state.Rotation, 1e-12)
}

func TestListCodes(t *testing.T) {
	h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/codes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var codes []codeJSON
	decode(t, rec, &codes)
	require.Len(t, codes, len(geoglobe.NumericCodes()))
	assert.Equal(t, codeJSON{ID: "004", Alpha3: "AFG"}, codes[0])
	assert.Equal(t, codeJSON{ID: "840", Alpha3: "USA"}, codes[len(codes)-1])
	for i := 1; i < len(codes); i++ {
		assert.Less(t, codes[i-1].ID, codes[i].ID)
	}
}

func TestWriteJSONUsesServerLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := New(loadTestGlobe(t), nil, log)

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, math.NaN())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "writing response", entry.Message)
	assert.Error(t, entry.Data[logrus.ErrorKey].(error))
}

func TestCodes(t *testing.T) {
	h := newTestServer(t)

	var body map[string]string
	rec := do(t, h, http.MethodGet, "/api/codes/840", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, map[string]string{"id": "840", "alpha3": "USA"}, body)

	rec = do(t, h, http.MethodGet, "/api/codes/158", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFacts(t *testing.T) {
	h := newTestServer(t)

	var facts geoglobe.CountryFacts
	rec := do(t, h, http.MethodGet, "/api/facts/FRA", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &facts)
	assert.Equal(t, "France", facts.Name)
	assert.Equal(t, "EUR", facts.Currency.Code)

	rec = do(t, h, http.MethodGet, "/api/facts/ESP", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &facts)
	assert.Equal(t, "Madrid", facts.Capital)
	assert.False(t, facts.Curated)

	rec = do(t, h, http.MethodGet, "/api/facts/XXX", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLocate(t *testing.T) {
	h := newTestServer(t)

	var resp locateResponse
	decode(t, do(t, h, http.MethodGet, "/api/locate?lat=23.5&lon=121", ""), &resp)
	assert.Equal(t, locateResponse{Hit: true, CountryID: "156", CountryName: "Taiwan"}, resp)

	resp = locateResponse{}
	decode(t, do(t, h, http.MethodGet, "/api/locate?lat=60&lon=60", ""), &resp)
	assert.False(t, resp.Hit)

	rec := do(t, h, http.MethodGet, "/api/locate?lat=north&lon=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/locate", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	h := newTestServer(t)
	do(t, h, http.MethodPost, "/api/pick", squareRay)
	do(t, h, http.MethodGet, "/api/codes/000", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `globe_picks_total{result="hit"} 1`)
	assert.Contains(t, body, `globe_http_requests_total{code="404",route="codes"} 1`)
	assert.Contains(t, body, `globe_http_requests_total{code="200",route="pick"} 1`)
}

func TestConcurrentPicks(t *testing.T) {
	h := newTestServer(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				do(t, h, http.MethodPost, "/api/pick", squareRay)
				do(t, h, http.MethodPost, "/api/selection/clear", "")
			}
		}()
	}
	wg.Wait()

	var state geoglobe.ViewState
	decode(t, do(t, h, http.MethodGet, "/api/state", ""), &state)
	assert.False(t, math.IsNaN(state.Rotation))
}
