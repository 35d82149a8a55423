package entertainment

import (
	"bytes"
	"context"
	"testing"

	"github.com/dokzlo13/bridged/internal/driver"
	"github.com/dokzlo13/bridged/internal/resource"
)

func TestServeAppliesFramesAndRestoresMode(t *testing.T) {
	reg := resource.NewRegistry(nil)

	light := resource.NewLight("1", "strip", "LST002")
	other := resource.NewLight("2", "bulb", "LCT001")
	reg.AddLight(light)
	reg.AddLight(other)

	group := resource.NewGroup("1", "tv", "Entertainment")
	group.LightIDs = []string{"1", "2"}
	reg.AddGroup(group)

	engine := NewEngine(reg, driver.NewResolver(), nil, Config{})

	// Pure red to light 1, repeated long enough for negotiation to sync
	// and at least one frame to be decoded afterwards.
	frame := buildV1Frame(ColorspaceRGB, []byte{0, 0, 1, 255, 255, 0, 0, 0, 0})
	var stream bytes.Buffer
	for i := 0; i < 6; i++ {
		stream.Write(frame)
	}

	err := engine.Serve(context.Background(), group, "client-1", &stream)
	if err != nil {
		t.Fatalf("Serve returned %v, want nil on stream end", err)
	}

	state := light.State()
	if !state.On {
		t.Error("light off after red frames, want on")
	}
	if state.Colormode != resource.ColormodeXY {
		t.Errorf("colormode = %q, want xy", state.Colormode)
	}
	// Red lands near the red corner of the gamut.
	if state.XY.X < 0.6 {
		t.Errorf("x = %f, want > 0.6 for pure red", state.XY.X)
	}
	if state.Bri != 85 {
		t.Errorf("bri = %d, want 85 (mean of 255,0,0)", state.Bri)
	}

	// Teardown must return every member to home-automation mode.
	if got := light.State().Mode; got != resource.ModeNormal {
		t.Errorf("light 1 mode = %q, want %q", got, resource.ModeNormal)
	}
	if got := other.State().Mode; got != resource.ModeNormal {
		t.Errorf("light 2 mode = %q, want %q", got, resource.ModeNormal)
	}
	if group.StreamActive() {
		t.Error("group stream still active after Serve returned")
	}
}

func TestServeStopsWhenStreamDeactivated(t *testing.T) {
	reg := resource.NewRegistry(nil)
	light := resource.NewLight("1", "bulb", "LCT001")
	reg.AddLight(light)
	group := resource.NewGroup("1", "tv", "Entertainment")
	group.LightIDs = []string{"1"}
	reg.AddGroup(group)

	engine := NewEngine(reg, driver.NewResolver(), nil, Config{})

	frame := buildV1Frame(ColorspaceRGB, []byte{0, 0, 1, 10, 10, 10, 10, 10, 10})
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		stream.Write(frame)
	}
	// Clearing the stream flag mid-source must end the session cleanly.
	src := &deactivatingReader{r: &stream, group: group, after: 60}

	if err := engine.Serve(context.Background(), group, "client-1", src); err != nil {
		t.Fatalf("Serve returned %v, want nil", err)
	}
	if group.StreamActive() {
		t.Error("group stream still active")
	}
}

// deactivatingReader clears the group's stream flag after n bytes.
type deactivatingReader struct {
	r     *bytes.Buffer
	group *resource.Group
	after int
	read  int
}

func (d *deactivatingReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	d.read += n
	if d.read >= d.after {
		d.group.StopStream()
	}
	return n, err
}
