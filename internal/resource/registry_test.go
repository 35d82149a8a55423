package resource

import (
	"testing"
	"time"
)

func TestNextV1IDStaysAhead(t *testing.T) {
	reg := NewRegistry(nil)

	reg.AddLight(NewLight("5", "a", "LCT001"))
	if got := reg.NextV1ID(); got != "6" {
		t.Errorf("NextV1ID = %q, want 6", got)
	}
}

func TestStatefulResolution(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddLight(NewLight("1", "a", "LCT001"))
	reg.AddSensor(NewSensor("2", "motion", "ZLLPresence"))

	dev, err := reg.Stateful(TypeLight, "1")
	if err != nil {
		t.Fatal(err)
	}
	typ, id := dev.ObjectPath()
	if typ != TypeLight || id != "1" {
		t.Errorf("ObjectPath = %s/%s, want lights/1", typ, id)
	}

	if _, err := reg.Stateful(TypeSensor, "99"); err == nil {
		t.Error("missing sensor resolved")
	}
	if _, err := reg.Stateful(TypeScene, "1"); err == nil {
		t.Error("scenes are not stateful but resolved")
	}
}

func TestRemoveLeavesDanglingRefsHarmless(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddLight(NewLight("1", "a", "LCT001"))
	reg.AddLight(NewLight("2", "b", "LCT001"))

	g := NewGroup("1", "room", "Room")
	g.LightIDs = []string{"1", "2"}
	reg.AddGroup(g)

	on := true
	g.SetAction(StatePatch{On: &on}, time.Now())

	if !reg.Remove(TypeLight, "2") {
		t.Fatal("Remove returned false for existing light")
	}
	if reg.Remove(TypeLight, "2") {
		t.Error("Remove returned true for already removed light")
	}

	// Aggregate over the surviving member only.
	st := g.AggregateState()
	if !st.AllOn || !st.AnyOn {
		t.Errorf("aggregate after removal = %+v, want all_on/any_on", st)
	}
}

func TestGroupAggregateState(t *testing.T) {
	reg := NewRegistry(nil)
	a := NewLight("1", "a", "LCT001")
	b := NewLight("2", "b", "LCT001")
	reg.AddLight(a)
	reg.AddLight(b)

	g := NewGroup("1", "room", "Room")
	g.LightIDs = []string{"1", "2"}
	reg.AddGroup(g)

	now := time.Now()
	on := true
	bri := 100
	a.SetState(StatePatch{On: &on, Bri: &bri}, now)

	st := g.AggregateState()
	if st.AllOn {
		t.Error("all_on with one light off")
	}
	if !st.AnyOn {
		t.Error("any_on false with one light on")
	}
	if st.AvgBri != 100 {
		t.Errorf("avg_bri = %d, want 100 (only lit lights count)", st.AvgBri)
	}

	bri2 := 200
	b.SetState(StatePatch{On: &on, Bri: &bri2}, now)
	st = g.AggregateState()
	if !st.AllOn {
		t.Error("all_on false with every light on")
	}
	if st.AvgBri != 150 {
		t.Errorf("avg_bri = %d, want 150", st.AvgBri)
	}
}

func TestSceneCaptureAndActivate(t *testing.T) {
	reg := NewRegistry(nil)
	l := NewLight("1", "a", "LCT001")
	reg.AddLight(l)

	now := time.Now()
	on := true
	bri := 180
	ct := 400
	l.SetState(StatePatch{On: &on, Bri: &bri, CT: &ct}, now)

	sc := NewScene("1", "evening", "1")
	reg.AddScene(sc)
	sc.Capture([]string{"1"}, now)

	// Change the light, then recall.
	off := false
	l.SetState(StatePatch{On: &off}, now)

	tr := 4
	sc.Activate(&tr, now.Add(time.Second))

	st := l.State()
	if !st.On || st.Bri != 180 || st.CT != 400 {
		t.Errorf("recalled state = on=%v bri=%d ct=%d, want on 180 400", st.On, st.Bri, st.CT)
	}
	if st.Colormode != ColormodeCT {
		t.Errorf("colormode = %q, want ct (captured via colormode)", st.Colormode)
	}
	if sc.Status != "active" {
		t.Errorf("scene status = %q, want active", sc.Status)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	reg := NewRegistry(nil)

	rule := NewRule("1", "motion on", []Condition{
		{Address: "/sensors/2/state/presence", Operator: OpEq, Value: "true"},
	}, []Action{
		{Address: "/groups/1/action", Method: "PUT", Body: map[string]any{"on": true}},
	})
	now := time.Now()
	rule.MarkTriggered(now)
	reg.AddRule(rule)

	sched := NewSchedule("1", "wake", "W124/T07:00:00", Action{
		Address: "/lights/1/state", Method: "PUT", Body: map[string]any{"on": true},
	}, now)
	reg.AddSchedule(sched)

	snap := reg.Snapshot()

	restored := NewRegistry(nil)
	restored.Restore(snap)

	r2 := restored.RuleByID("1")
	if r2 == nil {
		t.Fatal("rule missing after restore")
	}
	if len(r2.Conditions) != 1 || r2.Conditions[0].Operator != OpEq {
		t.Error("rule conditions lost")
	}
	last, times := r2.Triggered()
	if times != 1 {
		t.Errorf("timestriggered = %d, want 1", times)
	}
	if last.IsZero() {
		t.Error("lasttriggered lost")
	}

	s2 := restored.ScheduleByID("1")
	if s2 == nil {
		t.Fatal("schedule missing after restore")
	}
	if s2.Localtime() != "W124/T07:00:00" {
		t.Errorf("localtime = %q, want W124/T07:00:00", s2.Localtime())
	}
}
