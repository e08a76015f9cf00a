// Package server exposes a Globe over HTTP for a browser renderer: mesh
// buffers to draw, picking, country facts and the shared view state.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/andreiashu/geoglobe"
	"github.com/andreiashu/geoglobe/internal/observability"
	"github.com/golang/geo/r3"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server serves one Globe. The globe is read-only; the view state is shared
// by all clients and guarded by mu.
type Server struct {
	globe   *geoglobe.Globe
	metrics *observability.GlobeCollector
	log     logrus.FieldLogger

	mu     sync.Mutex
	state  geoglobe.ViewState
	camera geoglobe.Camera
}

// New returns a Server for g. metrics may be nil.
func New(g *geoglobe.Globe, metrics *observability.GlobeCollector, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		globe:   g,
		metrics: metrics,
		log:     log,
		state:   geoglobe.NewViewState(),
		camera:  geoglobe.DefaultCamera(1),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()

	s.handle(api, "/countries", "countries", s.listCountries, http.MethodGet)
	s.handle(api, "/meshes", "meshes", s.listMeshes, http.MethodGet)
	s.handle(api, "/pick", "pick", s.pick, http.MethodPost)
	s.handle(api, "/locate", "locate", s.locate, http.MethodGet)
	s.handle(api, "/codes", "codes_list", s.listCodes, http.MethodGet)
	s.handle(api, "/codes/{id}", "codes", s.normalize, http.MethodGet)
	s.handle(api, "/facts/{alpha3}", "facts", s.facts, http.MethodGet)
	s.handle(api, "/state", "state", s.getState, http.MethodGet)
	s.handle(api, "/state/tick", "state_tick", s.tick, http.MethodPost)
	s.handle(api, "/state/resume", "state_resume", s.resume, http.MethodPost)
	s.handle(api, "/selection/clear", "selection_clear", s.clearSelection, http.MethodPost)

	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	return router
}

func (s *Server) handle(r *mux.Router, path, route string, h http.HandlerFunc, methods ...string) {
	r.Handle(path, s.metrics.Middleware(route, h)).Methods(methods...)
}

type countryJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Alpha3 string `json:"alpha3,omitempty"`
}

func (s *Server) listCountries(w http.ResponseWriter, r *http.Request) {
	countries := s.globe.Countries()
	out := make([]countryJSON, 0, len(countries))
	for _, c := range countries {
		alpha3, _ := geoglobe.Normalize(c.ID)
		out = append(out, countryJSON{ID: c.ID, Name: c.Name, Alpha3: alpha3})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type geometryJSON struct {
	Kind       geoglobe.MeshKind   `json:"kind"`
	Positions  []float32           `json:"positions"`
	Appearance geoglobe.Appearance `json:"appearance"`
}

type meshJSON struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Lines geometryJSON `json:"lines"`
	Fill  geometryJSON `json:"fill"`
}

func (s *Server) listMeshes(w http.ResponseWriter, r *http.Request) {
	state := s.snapshot()
	meshes := s.globe.Meshes()
	out := make([]meshJSON, 0, len(meshes))
	for i := range meshes {
		m := &meshes[i]
		if m.Empty() {
			continue
		}
		out = append(out, meshJSON{
			ID:    m.CountryID(),
			Name:  m.CountryName(),
			Lines: geometryJSON{Kind: m.Lines.Kind, Positions: m.Lines.Positions(), Appearance: state.Appearance(&m.Lines)},
			Fill:  geometryJSON{Kind: m.Fill.Kind, Positions: m.Fill.Positions(), Appearance: state.Appearance(&m.Fill)},
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type vec3JSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v vec3JSON) vector() r3.Vector { return r3.Vector{X: v.X, Y: v.Y, Z: v.Z} }

type rayJSON struct {
	Origin    vec3JSON `json:"origin"`
	Direction vec3JSON `json:"direction"`
}

type screenJSON struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type cameraJSON struct {
	Position *vec3JSON `json:"position,omitempty"`
	Target   *vec3JSON `json:"target,omitempty"`
	FOV      float64   `json:"fov,omitempty"`
}

type pickRequest struct {
	Ray      *rayJSON    `json:"ray,omitempty"`
	Screen   *screenJSON `json:"screen,omitempty"`
	Camera   *cameraJSON `json:"camera,omitempty"`
	Rotation *float64    `json:"rotation,omitempty"` // Defaults to the shared view state
}

type pickResponse struct {
	Hit         bool                   `json:"hit"`
	CountryID   string                 `json:"countryId,omitempty"`
	CountryName string                 `json:"countryName,omitempty"`
	Kind        string                 `json:"kind,omitempty"`
	Distance    float64                `json:"distance,omitempty"`
	Alpha3      string                 `json:"alpha3,omitempty"`
	Facts       *geoglobe.CountryFacts `json:"facts,omitempty"`
	State       geoglobe.ViewState     `json:"state"`
}

func (s *Server) pick(w http.ResponseWriter, r *http.Request) {
	var req pickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid pick request")
		return
	}

	s.mu.Lock()
	rotation := s.state.Rotation
	cam := s.camera
	s.mu.Unlock()
	if req.Rotation != nil {
		rotation = *req.Rotation
	}

	var ray geoglobe.Ray
	switch {
	case req.Ray != nil:
		ray = geoglobe.Ray{Origin: req.Ray.Origin.vector(), Direction: req.Ray.Direction.vector()}
	case req.Screen != nil:
		if req.Screen.Width <= 0 || req.Screen.Height <= 0 {
			s.writeError(w, http.StatusBadRequest, "screen width and height must be positive")
			return
		}
		cam.Aspect = req.Screen.Width / req.Screen.Height
		applyCamera(&cam, req.Camera)
		x, y := geoglobe.NDC(req.Screen.X, req.Screen.Y, req.Screen.Width, req.Screen.Height)
		ray = cam.Ray(x, y)
	default:
		s.writeError(w, http.StatusBadRequest, "pick request needs a ray or a screen position")
		return
	}

	start := time.Now()
	hit, ok := s.globe.Pick(ray, rotation)
	s.metrics.ObservePick(ok, time.Since(start))

	resp := pickResponse{Hit: ok}
	if ok {
		resp.CountryID = hit.CountryID
		resp.CountryName = hit.CountryName
		resp.Kind = hit.Kind.String()
		resp.Distance = hit.Distance
		alpha3, facts, found := s.globe.Describe(hit.CountryID)
		resp.Alpha3 = alpha3
		if found {
			resp.Facts = &facts
		}
		s.log.WithFields(logrus.Fields{"country_id": hit.CountryID, "alpha3": alpha3}).Debug("country picked")
	}

	s.mu.Lock()
	if ok {
		s.state.Select(hit.CountryID)
	}
	resp.State = s.state
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, resp)
}

func applyCamera(cam *geoglobe.Camera, c *cameraJSON) {
	if c == nil {
		return
	}
	if c.Position != nil {
		cam.Position = c.Position.vector()
	}
	if c.Target != nil {
		cam.Target = c.Target.vector()
	}
	if c.FOV > 0 {
		cam.FOV = c.FOV
	}
}

type locateResponse struct {
	Hit         bool   `json:"hit"`
	CountryID   string `json:"countryId,omitempty"`
	CountryName string `json:"countryName,omitempty"`
}

func (s *Server) locate(w http.ResponseWriter, r *http.Request) {
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if errLat != nil || errLon != nil {
		s.writeError(w, http.StatusBadRequest, "lat and lon must be numbers")
		return
	}
	c, ok := s.globe.Locate(lat, lon)
	resp := locateResponse{Hit: ok}
	if ok {
		resp.CountryID, resp.CountryName = c.ID, c.Name
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type codeJSON struct {
	ID     string `json:"id"`
	Alpha3 string `json:"alpha3"`
}

func (s *Server) listCodes(w http.ResponseWriter, r *http.Request) {
	codes := geoglobe.NumericCodes()
	out := make([]codeJSON, 0, len(codes))
	for _, id := range codes {
		alpha3, _ := geoglobe.Normalize(id)
		out = append(out, codeJSON{ID: id, Alpha3: alpha3})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) normalize(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	alpha3, ok := geoglobe.Normalize(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown country code")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "alpha3": alpha3})
}

func (s *Server) facts(w http.ResponseWriter, r *http.Request) {
	f, ok := s.globe.FactBook().Lookup(mux.Vars(r)["alpha3"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "no facts for country")
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

type tickRequest struct {
	Frames int `json:"frames"`
}

func (s *Server) tick(w http.ResponseWriter, r *http.Request) {
	req := tickRequest{Frames: 1}
	// An empty body advances one frame.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, http.StatusBadRequest, "invalid tick request")
		return
	}
	s.mu.Lock()
	s.state.Advance(req.Frames)
	state := s.state
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.state.Resume()
	state := s.state
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) clearSelection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.state.ClearSelection()
	state := s.state
	s.mu.Unlock()
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) snapshot() geoglobe.ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Error("writing response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
