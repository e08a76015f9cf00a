package geoglobe

import "math"

// DefaultAutoRotateSpeed is the globe's idle spin in radians per frame.
const DefaultAutoRotateSpeed = 0.0005

// ViewState is the viewer's mutable state: how far the globe has turned,
// whether it is still turning, and which country is selected. It is owned by
// whoever drives the render loop and input handling; it is not safe for
// concurrent use.
type ViewState struct {
	Rotating        bool    `json:"rotating"`
	Rotation        float64 `json:"rotation"`        // Radians about +Y
	AutoRotateSpeed float64 `json:"autoRotateSpeed"` // Radians per frame
	Selected        string  `json:"selected,omitempty"`
}

// NewViewState returns a spinning globe with nothing selected.
func NewViewState() ViewState {
	return ViewState{Rotating: true, AutoRotateSpeed: DefaultAutoRotateSpeed}
}

// Advance moves the rotation forward by the given number of frames when the
// globe is spinning. The angle is kept in [0, 2π).
func (s *ViewState) Advance(frames int) {
	if !s.Rotating || frames <= 0 {
		return
	}
	s.Rotation = math.Mod(s.Rotation+float64(frames)*s.AutoRotateSpeed, 2*math.Pi)
	if s.Rotation < 0 {
		s.Rotation += 2 * math.Pi
	}
}

// Select records a picked country and stops the spin so it stays under the
// pointer.
func (s *ViewState) Select(countryID string) {
	if countryID == "" {
		return
	}
	s.Selected = countryID
	s.Rotating = false
}

// ClearSelection drops the selection and resumes spinning.
func (s *ViewState) ClearSelection() {
	s.Selected = ""
	s.Rotating = true
}

// Resume restarts the spin but keeps the current selection.
func (s *ViewState) Resume() { s.Rotating = true }

// Appearance is the colour and opacity a renderer should use for a geometry.
type Appearance struct {
	Color   uint32  `json:"color"` // 0xRRGGBB
	Opacity float64 `json:"opacity"`
}

var (
	lineAppearance          = Appearance{Color: 0xFFFFFF, Opacity: 0.5}
	fillAppearance          = Appearance{Color: 0x808080, Opacity: 0.1}
	highlightLineAppearance = Appearance{Color: 0xFFFF00, Opacity: 1}
	highlightFillAppearance = Appearance{Color: 0xFFFF00, Opacity: 0.3}
)

// AppearanceFor returns the style for a geometry kind, highlighted or not.
func AppearanceFor(kind MeshKind, highlighted bool) Appearance {
	switch {
	case kind == KindLine && highlighted:
		return highlightLineAppearance
	case kind == KindLine:
		return lineAppearance
	case highlighted:
		return highlightFillAppearance
	default:
		return fillAppearance
	}
}

// Appearance returns the style for g given the current selection.
func (s *ViewState) Appearance(g *Geometry) Appearance {
	return AppearanceFor(g.Kind, s.Selected != "" && g.CountryID == s.Selected)
}
