package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dokzlo13/bridged/internal/driver"
	"github.com/dokzlo13/bridged/internal/resource"
)

func nowish() time.Time {
	return time.Now()
}

type recordingDriver struct {
	applied []resource.StatePatch
	fail    bool
}

func (d *recordingDriver) Apply(_ context.Context, _ *resource.Light, p resource.StatePatch) error {
	if d.fail {
		return errors.New("device offline")
	}
	d.applied = append(d.applied, p)
	return nil
}

func (d *recordingDriver) Poll(context.Context, *resource.Light) (bool, error) {
	return !d.fail, nil
}

func newFixture(drv driver.LightDriver) (*resource.Registry, *Local) {
	reg := resource.NewRegistry(nil)
	resolver := driver.NewResolver()
	if drv != nil {
		resolver.Register("dummy", drv)
	}
	return reg, NewLocal(reg, resolver)
}

func TestDispatchLightState(t *testing.T) {
	drv := &recordingDriver{}
	reg, d := newFixture(drv)
	reg.AddLight(resource.NewLight("1", "desk", "LCT001"))

	err := d.Dispatch("/lights/1/state", "PUT", map[string]any{"on": true, "bri": float64(100)})
	if err != nil {
		t.Fatal(err)
	}

	st := reg.LightByID("1").State()
	if !st.On || st.Bri != 100 {
		t.Errorf("state = on=%v bri=%d, want on 100", st.On, st.Bri)
	}
	if len(drv.applied) != 1 {
		t.Fatalf("driver saw %d applies, want 1", len(drv.applied))
	}
}

func TestDispatchStripsAPIPrefix(t *testing.T) {
	reg, d := newFixture(nil)
	reg.AddLight(resource.NewLight("1", "desk", "LCT001"))

	if err := d.Dispatch("/api/someuser/lights/1/state", "PUT", map[string]any{"on": true}); err != nil {
		t.Fatal(err)
	}
	if !reg.LightByID("1").State().On {
		t.Error("prefixed address did not reach the light")
	}
}

func TestDispatchGroupAction(t *testing.T) {
	drv := &recordingDriver{}
	reg, d := newFixture(drv)
	reg.AddLight(resource.NewLight("1", "a", "LCT001"))
	reg.AddLight(resource.NewLight("2", "b", "LCT001"))
	g := resource.NewGroup("1", "room", "Room")
	g.LightIDs = []string{"1", "2"}
	reg.AddGroup(g)

	if err := d.Dispatch("/groups/1/action", "PUT", map[string]any{"on": true}); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"1", "2"} {
		if !reg.LightByID(id).State().On {
			t.Errorf("light %s still off after group action", id)
		}
	}
	if len(drv.applied) != 2 {
		t.Errorf("driver saw %d applies, want 2", len(drv.applied))
	}
	if !g.Action().On {
		t.Error("group action not recorded")
	}
}

func TestDispatchSceneRecall(t *testing.T) {
	reg, d := newFixture(&recordingDriver{})
	light := resource.NewLight("1", "a", "LCT001")
	reg.AddLight(light)
	g := resource.NewGroup("1", "room", "Room")
	g.LightIDs = []string{"1"}
	reg.AddGroup(g)

	scene := resource.NewScene("s1", "evening", "1")
	reg.AddScene(scene)

	on := true
	bri := 42
	light.SetState(resource.StatePatch{On: &on, Bri: &bri}, nowish())
	scene.Capture([]string{"1"}, nowish())

	off := false
	light.SetState(resource.StatePatch{On: &off}, nowish())

	if err := d.Dispatch("/groups/1/action", "PUT", map[string]any{"scene": "s1"}); err != nil {
		t.Fatal(err)
	}

	st := light.State()
	if !st.On || st.Bri != 42 {
		t.Errorf("recalled = on=%v bri=%d, want on 42", st.On, st.Bri)
	}
}

func TestDispatchMarksUnreachableOnDriverFailure(t *testing.T) {
	drv := &recordingDriver{fail: true}
	reg, d := newFixture(drv)
	light := resource.NewLight("1", "desk", "LCT001")
	reg.AddLight(light)

	if err := d.Dispatch("/lights/1/state", "PUT", map[string]any{"on": true}); err != nil {
		t.Fatal(err)
	}

	st := light.State()
	if st.Reachable {
		t.Error("light still reachable after driver failure")
	}
	// Desired state is kept even though the device did not take it.
	if !st.On {
		t.Error("desired on state lost after driver failure")
	}

	// Recovery: next successful apply restores reachability.
	drv.fail = false
	if err := d.Dispatch("/lights/1/state", "PUT", map[string]any{"bri": float64(50)}); err != nil {
		t.Fatal(err)
	}
	if !light.State().Reachable {
		t.Error("light not marked reachable after recovery")
	}
}

func TestDispatchSensorState(t *testing.T) {
	reg, d := newFixture(nil)
	reg.AddSensor(resource.NewSensor("2", "motion", "ZLLPresence"))

	if err := d.Dispatch("/sensors/2/state", "PUT", map[string]any{"presence": true}); err != nil {
		t.Fatal(err)
	}
	v, ok := reg.SensorByID("2").StateValue("presence")
	if !ok || v != true {
		t.Errorf("presence = %v, want true", v)
	}
}

func TestDispatchRuleStatus(t *testing.T) {
	reg, d := newFixture(nil)
	rule := resource.NewRule("1", "r", nil, nil)
	reg.AddRule(rule)

	if err := d.Dispatch("/rules/1", "PUT", map[string]any{"status": "disabled"}); err != nil {
		t.Fatal(err)
	}
	if rule.Enabled() {
		t.Error("rule still enabled")
	}
}

func TestDispatchUnknownTargets(t *testing.T) {
	_, d := newFixture(nil)

	if err := d.Dispatch("/lights/9/state", "PUT", map[string]any{"on": true}); err == nil {
		t.Error("missing light accepted")
	}
	if err := d.Dispatch("/frobs/1/state", "PUT", nil); err == nil {
		t.Error("unknown resource type accepted")
	}
	if err := d.Dispatch("/lights/1/state", "DELETE", nil); err == nil {
		t.Error("DELETE accepted on command surface")
	}
}
