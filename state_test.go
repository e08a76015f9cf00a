package geoglobe

import (
	"math"
	"testing"
)

func TestViewStateAdvance(t *testing.T) {
	s := NewViewState()
	if !s.Rotating || s.AutoRotateSpeed != DefaultAutoRotateSpeed {
		t.Fatalf("NewViewState() = %+v", s)
	}

	s.Advance(10)
	if math.Abs(s.Rotation-10*DefaultAutoRotateSpeed) > 1e-15 {
		t.Errorf("rotation after 10 frames = %v", s.Rotation)
	}

	s.Advance(0)
	s.Advance(-5)
	if math.Abs(s.Rotation-10*DefaultAutoRotateSpeed) > 1e-15 {
		t.Errorf("non-positive frames moved rotation to %v", s.Rotation)
	}

	s.Rotating = false
	s.Advance(100)
	if math.Abs(s.Rotation-10*DefaultAutoRotateSpeed) > 1e-15 {
		t.Errorf("stopped globe rotated to %v", s.Rotation)
	}
}

func TestViewStateAdvanceWraps(t *testing.T) {
	s := ViewState{Rotating: true, AutoRotateSpeed: 1, Rotation: 6}
	s.Advance(1)
	if want := 7 - 2*math.Pi; math.Abs(s.Rotation-want) > 1e-12 {
		t.Errorf("rotation = %v, want %v", s.Rotation, want)
	}

	s = ViewState{Rotating: true, AutoRotateSpeed: -1, Rotation: 0.5}
	s.Advance(1)
	if want := 2*math.Pi - 0.5; math.Abs(s.Rotation-want) > 1e-12 {
		t.Errorf("negative spin rotation = %v, want %v", s.Rotation, want)
	}
}

func TestViewStateSelection(t *testing.T) {
	s := NewViewState()

	s.Select("")
	if !s.Rotating || s.Selected != "" {
		t.Fatalf("empty select changed state: %+v", s)
	}

	s.Select("840")
	if s.Rotating || s.Selected != "840" {
		t.Fatalf("after select: %+v", s)
	}

	s.Resume()
	if !s.Rotating || s.Selected != "840" {
		t.Errorf("resume should keep the selection: %+v", s)
	}

	s.Select("156")
	s.ClearSelection()
	if !s.Rotating || s.Selected != "" {
		t.Errorf("after clear: %+v", s)
	}
}

func TestAppearance(t *testing.T) {
	tests := []struct {
		kind        MeshKind
		highlighted bool
		want        Appearance
	}{
		{KindLine, false, Appearance{Color: 0xFFFFFF, Opacity: 0.5}},
		{KindFill, false, Appearance{Color: 0x808080, Opacity: 0.1}},
		{KindLine, true, Appearance{Color: 0xFFFF00, Opacity: 1}},
		{KindFill, true, Appearance{Color: 0xFFFF00, Opacity: 0.3}},
	}
	for _, tt := range tests {
		if got := AppearanceFor(tt.kind, tt.highlighted); got != tt.want {
			t.Errorf("AppearanceFor(%v, %v) = %+v, want %+v", tt.kind, tt.highlighted, got, tt.want)
		}
	}

	s := NewViewState()
	line := Geometry{Kind: KindLine, CountryID: "840"}
	other := Geometry{Kind: KindLine, CountryID: "156"}
	empty := Geometry{Kind: KindFill}

	s.Select("840")
	if got := s.Appearance(&line); got != highlightLineAppearance {
		t.Errorf("selected line appearance = %+v", got)
	}
	if got := s.Appearance(&other); got != lineAppearance {
		t.Errorf("unselected line appearance = %+v", got)
	}
	s.ClearSelection()
	if got := s.Appearance(&empty); got != fillAppearance {
		t.Errorf("untagged fill with no selection = %+v", got)
	}
}
