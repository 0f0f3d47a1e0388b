package display

import (
	"testing"

	"github.com/xpra-project/session-core/internal/wire"
)

type recordingListener struct {
	geometries []Geometry
	bells      int
	groups     []int
	xsettings  []map[string]wire.Value
}

func (r *recordingListener) GeometryChanged(g Geometry)                        { r.geometries = append(r.geometries, g) }
func (r *recordingListener) BellRang()                                        { r.bells++ }
func (r *recordingListener) KeyboardLayoutGroupChanged(group int)              { r.groups = append(r.groups, group) }
func (r *recordingListener) XSettingsChanged(settings map[string]wire.Value)  { r.xsettings = append(r.xsettings, settings) }

func TestResizeWithinRangeSucceeds(t *testing.T) {
	d := New(Geometry{Width: 1024, Height: 768}, Range{MinWidth: 640, MinHeight: 480, MaxWidth: 3840, MaxHeight: 2160})
	l := &recordingListener{}
	d.AddListener(l)

	if err := d.Resize(Geometry{Width: 1920, Height: 1080}, Monitor{}); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if d.Geometry().Width != 1920 {
		t.Fatalf("Geometry().Width = %d, want 1920", d.Geometry().Width)
	}
	if len(l.geometries) != 1 {
		t.Fatalf("listener should have observed one geometry change, got %d", len(l.geometries))
	}
}

func TestResizeBeyondConfiguredRangeFails(t *testing.T) {
	d := New(Geometry{Width: 1024, Height: 768}, Range{MaxWidth: 1920, MaxHeight: 1080})
	if err := d.Resize(Geometry{Width: 3840, Height: 2160}, Monitor{}); err == nil {
		t.Fatal("expected an error resizing beyond the configured maximum")
	}
	if d.Geometry().Width != 1024 {
		t.Fatal("geometry should be unchanged after a rejected resize")
	}
}

func TestResizeBeyondClientMonitorFails(t *testing.T) {
	d := New(Geometry{Width: 1024, Height: 768}, Range{MaxWidth: 7680, MaxHeight: 4320})
	err := d.Resize(Geometry{Width: 2560, Height: 1440}, Monitor{Width: 1920, Height: 1080})
	if err == nil {
		t.Fatal("expected an error resizing beyond the client's largest monitor")
	}
}

func TestBellAndKeyboardLayoutAndXSettingsForwarding(t *testing.T) {
	d := New(Geometry{}, Range{})
	l := &recordingListener{}
	d.AddListener(l)

	d.Bell()
	d.SetKeyboardLayoutGroup(2)
	d.SetXSettings(map[string]wire.Value{"Net/ThemeName": "Adwaita"})

	if l.bells != 1 {
		t.Fatalf("bells = %d, want 1", l.bells)
	}
	if len(l.groups) != 1 || l.groups[0] != 2 {
		t.Fatalf("groups = %v, want [2]", l.groups)
	}
	if len(l.xsettings) != 1 || l.xsettings[0]["Net/ThemeName"] != "Adwaita" {
		t.Fatalf("xsettings = %v", l.xsettings)
	}
}

func TestCursorStateGetReflectsLatestShapeAndAnchor(t *testing.T) {
	c := NewCursorState()
	c.SetShape(CursorShape{Width: 16, Height: 16, HotspotX: 1, HotspotY: 1, Name: "pointer"})
	c.SetAnchor(CursorAnchor{WID: 7, X: 10, Y: 20})

	shape, anchor := c.Get()
	if shape.Name != "pointer" {
		t.Fatalf("shape.Name = %s, want pointer", shape.Name)
	}
	if anchor.WID != 7 || anchor.X != 10 || anchor.Y != 20 {
		t.Fatalf("anchor = %+v", anchor)
	}
}
