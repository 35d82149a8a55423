package automation

import (
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/bridged/internal/daylight"
	"github.com/dokzlo13/bridged/internal/resource"
)

type captureDispatcher struct {
	mu    sync.Mutex
	calls []call
}

type call struct {
	address string
	body    map[string]any
}

func (c *captureDispatcher) Dispatch(address, method string, body map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call{address: address, body: body})
	return nil
}

func (c *captureDispatcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *captureDispatcher) last() call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[len(c.calls)-1]
}

func newTestEngine() (*resource.Registry, *captureDispatcher, *Engine) {
	reg := resource.NewRegistry(nil)
	disp := &captureDispatcher{}
	return reg, disp, NewEngine(reg, disp, nil, nil)
}

func TestTimerScheduleFiresOnceAndDisables(t *testing.T) {
	reg, disp, e := newTestEngine()

	start := time.Date(2024, 6, 17, 12, 0, 0, 0, time.Local)
	sensor := resource.NewSensor("2", "flag", "CLIPGenericFlag")
	reg.AddSensor(sensor)

	sched := resource.NewSchedule("1", "timer", "PT00:00:30",
		resource.Action{Address: "/sensors/2/state", Method: "PUT", Body: map[string]any{"flag": true}},
		start)
	reg.AddSchedule(sched)

	e.runSchedules(start.Add(10 * time.Second))
	if got := disp.count(); got != 0 {
		t.Fatalf("dispatch count before expiry = %d, want 0", got)
	}

	e.runSchedules(start.Add(31 * time.Second))
	if got := disp.count(); got != 1 {
		t.Fatalf("dispatch count after expiry = %d, want 1", got)
	}
	if sched.Enabled() {
		t.Error("one-shot timer still enabled after firing")
	}

	// Disabled schedules stay quiet.
	e.runSchedules(start.Add(time.Minute))
	if got := disp.count(); got != 1 {
		t.Errorf("dispatch count after disable = %d, want 1", got)
	}
}

func TestRecurringTimerRearms(t *testing.T) {
	reg, disp, e := newTestEngine()

	start := time.Date(2024, 6, 17, 12, 0, 0, 0, time.Local)
	sensor := resource.NewSensor("2", "flag", "CLIPGenericFlag")
	reg.AddSensor(sensor)

	sched := resource.NewSchedule("1", "repeat", "R/PT00:01:00",
		resource.Action{Address: "/sensors/2/state", Method: "PUT", Body: map[string]any{"flag": true}},
		start)
	reg.AddSchedule(sched)

	fire1 := start.Add(time.Minute)
	e.runSchedules(fire1)
	if got := disp.count(); got != 1 {
		t.Fatalf("dispatch count = %d, want 1", got)
	}
	if !sched.Enabled() {
		t.Fatal("recurring timer disabled after firing")
	}
	if !sched.Starttime().Equal(fire1) {
		t.Errorf("starttime = %v, want re-armed to %v", sched.Starttime(), fire1)
	}

	e.runSchedules(fire1.Add(time.Minute))
	if got := disp.count(); got != 2 {
		t.Errorf("dispatch count after second period = %d, want 2", got)
	}
}

func TestAutodeleteRemovesSchedule(t *testing.T) {
	reg, _, e := newTestEngine()

	start := time.Date(2024, 6, 17, 12, 0, 0, 0, time.Local)
	sensor := resource.NewSensor("2", "flag", "CLIPGenericFlag")
	reg.AddSensor(sensor)

	sched := resource.NewSchedule("1", "timer", "PT00:00:05",
		resource.Action{Address: "/sensors/2/state", Method: "PUT", Body: map[string]any{"flag": true}},
		start)
	sched.SetAutodelete(true)
	reg.AddSchedule(sched)

	e.runSchedules(start.Add(6 * time.Second))
	if got := reg.ScheduleByID("1"); got != nil {
		t.Error("autodelete schedule still registered after firing")
	}
}

func TestWakeUpRampsAheadOfTimePoint(t *testing.T) {
	reg, disp, e := newTestEngine()

	group := resource.NewGroup("1", "bedroom", "Room")
	reg.AddGroup(group)

	b := resource.NewBehaviorInstance(resource.NewID(), resource.ScriptWakeUp, "wake up", map[string]any{
		"when": map[string]any{
			"recurrence_days": []any{"monday"},
			"time_point":      map[string]any{"time": map[string]any{"hour": 7, "minute": 0}},
		},
		"fade_in_duration": map[string]any{"seconds": 600},
		"end_brightness":   200,
		"where": []any{
			map[string]any{"group": map[string]any{"rid": group.IDV2, "rtype": "room"}},
		},
	})
	b.SetEnabled(true, time.Now())
	reg.AddBehavior(b)

	// The ramp starts one fade ahead of the 07:00 time point.
	monday := time.Date(2024, 6, 17, 6, 50, 0, 0, time.Local)
	e.runBehaviors(monday)
	if got := disp.count(); got != 2 {
		t.Fatalf("dispatch count = %d, want 2 (start + fade)", got)
	}

	fade := disp.last()
	if fade.body["bri"] != 200 {
		t.Errorf("fade bri = %v, want 200", fade.body["bri"])
	}
	if fade.body["transitiontime"] != 6000 {
		t.Errorf("fade transitiontime = %v, want 6000", fade.body["transitiontime"])
	}

	// At the time point itself the ramp is already running.
	e.runBehaviors(monday.Add(10 * time.Minute))
	if got := disp.count(); got != 2 {
		t.Errorf("dispatch count at time point = %d, want 2", got)
	}

	// Wrong weekday: stays quiet.
	tuesday := monday.AddDate(0, 0, 1)
	e.runBehaviors(tuesday)
	if got := disp.count(); got != 2 {
		t.Errorf("dispatch count on Tuesday = %d, want 2", got)
	}
}

func TestWakeUpTurnsLightsOffAfter(t *testing.T) {
	reg, disp, e := newTestEngine()

	group := resource.NewGroup("1", "bedroom", "Room")
	reg.AddGroup(group)

	b := resource.NewBehaviorInstance(resource.NewID(), resource.ScriptWakeUp, "wake up", map[string]any{
		"when": map[string]any{
			"recurrence_days": []any{"monday"},
			"time_point":      map[string]any{"time": map[string]any{"hour": 7, "minute": 0}},
		},
		"fade_in_duration":      map[string]any{"seconds": 600},
		"turn_lights_off_after": map[string]any{"minutes": 30},
		"where": []any{
			map[string]any{"group": map[string]any{"rid": group.IDV2, "rtype": "room"}},
		},
	})
	b.SetEnabled(true, time.Now())
	reg.AddBehavior(b)

	// With an off-after, the off delay also fronts the start.
	e.runBehaviors(time.Date(2024, 6, 17, 6, 30, 0, 0, time.Local))
	if got := disp.count(); got != 2 {
		t.Fatalf("dispatch count at start = %d, want 2", got)
	}
	if !b.Active() {
		t.Fatal("wake-up not active after start")
	}

	// Lights go off a half hour past the time point.
	e.runBehaviors(time.Date(2024, 6, 17, 7, 30, 0, 0, time.Local))
	if got := disp.count(); got != 3 {
		t.Fatalf("dispatch count at off time = %d, want 3", got)
	}
	if got := disp.last().body["on"]; got != false {
		t.Errorf("off body on = %v, want false", got)
	}
	if b.Active() {
		t.Error("wake-up still active after off routine")
	}
}

func TestGoToSleepFadesThenOff(t *testing.T) {
	reg, disp, e := newTestEngine()

	group := resource.NewGroup("1", "bedroom", "Room")
	reg.AddGroup(group)

	b := resource.NewBehaviorInstance(resource.NewID(), resource.ScriptGoToSleep, "sleep", map[string]any{
		"when": map[string]any{
			"recurrence_days": []any{"monday"},
			"time_point":      map[string]any{"time": map[string]any{"hour": 22, "minute": 0}},
		},
		"fade_out_duration": map[string]any{"seconds": 60},
		"end_state":         "turn_off",
		"where": []any{
			map[string]any{"group": map[string]any{"rid": group.IDV2, "rtype": "room"}},
		},
	})
	b.SetEnabled(true, time.Now())
	reg.AddBehavior(b)

	e.runBehaviors(time.Date(2024, 6, 17, 22, 0, 0, 0, time.Local))
	if got := disp.count(); got != 2 {
		t.Fatalf("dispatch count at start = %d, want 2 (ct + fade)", got)
	}
	fade := disp.last()
	if fade.body["bri"] != 1 {
		t.Errorf("fade bri = %v, want 1", fade.body["bri"])
	}
	if fade.body["transitiontime"] != 600 {
		t.Errorf("fade transitiontime = %v, want 600", fade.body["transitiontime"])
	}
	if !b.Active() {
		t.Fatal("go-to-sleep not active after fade started")
	}

	// Once the fade has run, the group switches off.
	e.runBehaviors(time.Date(2024, 6, 17, 22, 1, 0, 0, time.Local))
	if got := disp.count(); got != 3 {
		t.Fatalf("dispatch count after fade = %d, want 3", got)
	}
	if got := disp.last().body["on"]; got != false {
		t.Errorf("off body on = %v, want false", got)
	}
	if b.Active() {
		t.Error("go-to-sleep still active after off")
	}
}

func TestCountdownFiresAfterDuration(t *testing.T) {
	reg, disp, e := newTestEngine()

	group := resource.NewGroup("1", "office", "Room")
	reg.AddGroup(group)

	armed := time.Date(2024, 6, 17, 12, 0, 0, 0, time.Local)
	b := resource.NewBehaviorInstance(resource.NewID(), resource.ScriptCountdown, "timer", map[string]any{
		"duration": map[string]any{"seconds": 300},
		"where": []any{
			map[string]any{"group": map[string]any{"rid": group.IDV2, "rtype": "room"}},
		},
	})
	b.SetEnabled(true, armed)
	reg.AddBehavior(b)

	// First pass plays the start state into the group.
	e.runBehaviors(armed.Add(time.Second))
	if got := disp.count(); got != 1 {
		t.Fatalf("dispatch count after arming = %d, want 1", got)
	}
	start := disp.last()
	if start.body["bri"] != 254 || start.body["ct"] != 247 {
		t.Errorf("start body = %v, want bright preset", start.body)
	}
	if !b.Active() {
		t.Fatal("countdown not active after arming")
	}

	e.runBehaviors(armed.Add(4 * time.Minute))
	if got := disp.count(); got != 1 {
		t.Fatalf("dispatch count before expiry = %d, want 1", got)
	}

	e.runBehaviors(armed.Add(5 * time.Minute))
	if got := disp.count(); got != 2 {
		t.Fatalf("dispatch count at expiry = %d, want 2", got)
	}
	if got := disp.last().body["on"]; got != false {
		t.Errorf("end body on = %v, want false", got)
	}
	if b.Enabled() {
		t.Error("countdown still enabled after firing")
	}
}

func TestCountdownRecallsWhatTarget(t *testing.T) {
	reg, disp, e := newTestEngine()

	group := resource.NewGroup("1", "office", "Room")
	reg.AddGroup(group)

	armed := time.Date(2024, 6, 17, 12, 0, 0, 0, time.Local)
	b := resource.NewBehaviorInstance(resource.NewID(), resource.ScriptCountdown, "timer", map[string]any{
		"duration": map[string]any{"seconds": 300},
		"what": []any{
			map[string]any{
				"group":  map[string]any{"rid": group.IDV2, "rtype": "room"},
				"recall": map[string]any{"rid": "scene-rid-1"},
			},
		},
	})
	b.SetEnabled(true, armed)
	reg.AddBehavior(b)

	e.runBehaviors(armed.Add(time.Second))
	if got := disp.count(); got != 1 {
		t.Fatalf("dispatch count after arming = %d, want 1", got)
	}
	if got := disp.last().body["scene"]; got != "scene-rid-1" {
		t.Errorf("start body scene = %v, want scene-rid-1", got)
	}
	if got := disp.last().address; got != "/groups/1/action" {
		t.Errorf("start address = %q, want /groups/1/action", got)
	}
}

func TestSmartSceneSlotSelection(t *testing.T) {
	reg, disp, e := newTestEngine()

	group := resource.NewGroup("1", "living", "Room")
	reg.AddGroup(group)
	sceneA := resource.NewScene("10", "morning", "1")
	sceneB := resource.NewScene("11", "evening", "1")
	reg.AddScene(sceneA)
	reg.AddScene(sceneB)

	ss := resource.NewSmartScene(resource.NewID(), "daily", "1", []resource.Timeslot{
		{Start: resource.StartTime{Kind: resource.StartKindTime, Hour: 7}, SceneID: sceneA.IDV2},
		{Start: resource.StartTime{Kind: resource.StartKindTime, Hour: 19}, SceneID: sceneB.IDV2},
	}, nil)
	ss.Activate()
	reg.AddSmartScene(ss)

	// Midday: the 07:00 slot is the latest passed one.
	e.runSmartScenes(time.Date(2024, 6, 17, 12, 0, 0, 0, time.Local))
	if got := disp.count(); got != 1 {
		t.Fatalf("dispatch count = %d, want 1", got)
	}
	if got := disp.last().body["scene"]; got != sceneA.IDV2 {
		t.Errorf("recalled scene = %v, want %v", got, sceneA.IDV2)
	}
	if ss.ActiveSlot() != 0 {
		t.Errorf("active slot = %d, want 0", ss.ActiveSlot())
	}

	// Same slot again: no re-recall.
	e.runSmartScenes(time.Date(2024, 6, 17, 13, 0, 0, 0, time.Local))
	if got := disp.count(); got != 1 {
		t.Errorf("dispatch count after same-slot tick = %d, want 1", got)
	}

	// The final slot ends the day: group off, no scene recall, and the
	// smart scene stays active so the cycle resumes tomorrow.
	e.runSmartScenes(time.Date(2024, 6, 17, 20, 0, 0, 0, time.Local))
	if got := disp.count(); got != 2 {
		t.Fatalf("dispatch count = %d, want 2", got)
	}
	if got := disp.last().body["on"]; got != false {
		t.Errorf("final slot body on = %v, want false", got)
	}
	if _, hasScene := disp.last().body["scene"]; hasScene {
		t.Error("final slot recalled a scene, want group off only")
	}
	if !ss.Active() {
		t.Error("smart scene deactivated after final slot")
	}
	if ss.ActiveSlot() != 1 {
		t.Errorf("active slot = %d, want 1", ss.ActiveSlot())
	}
}

func TestSmartSceneBeforeFirstSlot(t *testing.T) {
	reg, disp, e := newTestEngine()

	group := resource.NewGroup("1", "living", "Room")
	reg.AddGroup(group)
	ss := resource.NewSmartScene(resource.NewID(), "daily", "1", []resource.Timeslot{
		{Start: resource.StartTime{Kind: resource.StartKindTime, Hour: 7}, SceneID: "x"},
	}, nil)
	ss.Activate()
	reg.AddSmartScene(ss)

	e.runSmartScenes(time.Date(2024, 6, 17, 5, 0, 0, 0, time.Local))
	if got := disp.count(); got != 0 {
		t.Errorf("dispatch count before first slot = %d, want 0", got)
	}
}

func TestSunsetSlotStarts(t *testing.T) {
	reg := resource.NewRegistry(nil)
	sun := daylight.NewCalculator(52.37, 4.89, "UTC")
	e := NewEngine(reg, &captureDispatcher{}, sun, nil)

	// Midsummer Amsterdam: sunset is past 19:00, so the 19:00 slot gets
	// pushed to sunset plus half an hour. The 23:00 slot keeps its time.
	now := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	slots := []resource.Timeslot{
		{Start: resource.StartTime{Kind: resource.StartKindSunset}, SceneID: "a"},
		{Start: resource.StartTime{Kind: resource.StartKindTime, Hour: 19}, SceneID: "b"},
		{Start: resource.StartTime{Kind: resource.StartKindTime, Hour: 23}, SceneID: "c"},
	}
	starts := e.resolveSlotStarts(slots, now)

	sunset := sun.Times(now).Sunset
	sunsetSecs := sunset.Hour()*3600 + sunset.Minute()*60 + sunset.Second()
	if starts[0] != sunsetSecs {
		t.Errorf("sunset slot start = %d, want sunset %d", starts[0], sunsetSecs)
	}
	if starts[1] != sunsetSecs+1800 {
		t.Errorf("following slot start = %d, want %d", starts[1], sunsetSecs+1800)
	}
	if starts[2] != 23*3600 {
		t.Errorf("late slot start = %d, want %d", starts[2], 23*3600)
	}
}

func TestJitteredScheduleFiresOncePerDay(t *testing.T) {
	reg, disp, e := newTestEngine()

	created := time.Date(2024, 6, 16, 12, 0, 0, 0, time.Local)
	sensor := resource.NewSensor("2", "flag", "CLIPGenericFlag")
	reg.AddSensor(sensor)

	sched := resource.NewSchedule("1", "jittered", "W127/T08:00:00/A00:00:59",
		resource.Action{Address: "/sensors/2/state", Method: "PUT", Body: map[string]any{"flag": true}},
		created)
	reg.AddSchedule(sched)

	// Tick every second across the whole random window. The offset is
	// drawn once, so exactly one tick matches.
	day := time.Date(2024, 6, 17, 7, 59, 50, 0, time.Local)
	for i := 0; i < 80; i++ {
		e.runSchedules(day.Add(time.Duration(i) * time.Second))
	}
	if got := disp.count(); got != 1 {
		t.Fatalf("fires across random window = %d, want 1", got)
	}

	// Next day the offset is redrawn and the schedule fires once more.
	next := day.AddDate(0, 0, 1)
	for i := 0; i < 80; i++ {
		e.runSchedules(next.Add(time.Duration(i) * time.Second))
	}
	if got := disp.count(); got != 2 {
		t.Errorf("fires after second day = %d, want 2", got)
	}
}

func TestDaylightSensorTransitions(t *testing.T) {
	reg := resource.NewRegistry(nil)
	sun := daylight.NewCalculator(52.37, 4.89, "UTC")
	e := NewEngine(reg, &captureDispatcher{}, sun, nil)

	sensor := resource.NewSensor(resource.DaylightSensorID, "Daylight", resource.SensorTypeDaylight)
	reg.AddSensor(sensor)

	noon := time.Date(2024, 6, 21, 12, 0, 0, 0, time.UTC)
	e.updateDaylight(noon)
	if v, ok := sensor.StateValue("daylight"); !ok || v != true {
		t.Errorf("daylight at noon = %v, want true", v)
	}

	midnight := time.Date(2024, 6, 22, 0, 30, 0, 0, time.UTC)
	e.updateDaylight(midnight)
	if v, _ := sensor.StateValue("daylight"); v != false {
		t.Errorf("daylight at midnight = %v, want false", v)
	}
}
