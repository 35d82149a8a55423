package resource

import (
	"sync"
	"time"
)

// Script identifiers for the built-in behaviors.
const (
	ScriptWakeUp        = "ff8957e3-2eb9-4699-a0c8-ad2cb3ede704"
	ScriptGoToSleep     = "7e571ac6-f363-42e1-809a-4cbf6523ed72"
	ScriptSceneSchedule = "7238c707-8693-4f19-9095-ccdc1444d228"
	ScriptCountdown     = "e73bc72d-96b1-46f8-aa57-729861f80c78"
)

// BrightSceneID is the app's built-in "Bright" recall. It carries no stored
// scene and maps to a fixed preset instead.
const BrightSceneID = "732ff1d9-76a7-4630-aad0-c8acc499bb0b"

// TimePoint is a clock time inside a behavior configuration.
type TimePoint struct {
	Hour   int
	Minute int
}

// FadeDuration is a fade length in seconds.
type FadeDuration struct {
	Seconds int
}

// WhenConfig describes a recurring trigger time: the weekdays it recurs on
// (Hue names, "monday".."sunday"; empty means every day) and the time point.
type WhenConfig struct {
	RecurrenceDays []string
	TimePoint      TimePoint
}

// WhenExtended describes a start/end interval trigger used by scene
// schedules. EndAt may be absent.
type WhenExtended struct {
	RecurrenceDays []string
	StartAt        TimePoint
	EndAt          *TimePoint
	HasEnd         bool
}

// BehaviorInstance is a configured run of one of the built-in scripts.
type BehaviorInstance struct {
	IDV2     string
	ScriptID string
	Name     string

	mu      sync.Mutex
	enabled bool
	// active marks a script mid-run: a wake-up waiting for its off routine,
	// a countdown between arming and expiry.
	active bool
	config map[string]any
	status string
	// armedAt marks when a countdown instance was enabled.
	armedAt time.Time
}

// NewBehaviorInstance creates a disabled instance for the given script.
func NewBehaviorInstance(idV2, scriptID, name string, config map[string]any) *BehaviorInstance {
	return &BehaviorInstance{
		IDV2:     idV2,
		ScriptID: scriptID,
		Name:     name,
		config:   config,
		status:   "disabled",
	}
}

// Enabled reports whether the instance should run.
func (b *BehaviorInstance) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

// SetEnabled toggles the instance. Enabling arms countdown timers;
// disabling clears any mid-run state.
func (b *BehaviorInstance) SetEnabled(v bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = v
	if v {
		b.status = "running"
		b.armedAt = now
	} else {
		b.status = "disabled"
		b.active = false
	}
}

// Active reports whether a script run is in flight.
func (b *BehaviorInstance) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// SetActive marks or clears the mid-run flag.
func (b *BehaviorInstance) SetActive(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = v
}

// ArmedAt returns when the instance was last enabled.
func (b *BehaviorInstance) ArmedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.armedAt
}

// Config returns the raw configuration map.
func (b *BehaviorInstance) Config() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config
}

// SetConfig replaces the configuration.
func (b *BehaviorInstance) SetConfig(config map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = config
}

// Status returns the runtime status string.
func (b *BehaviorInstance) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// SetStatus updates the runtime status string.
func (b *BehaviorInstance) SetStatus(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = status
}

// When extracts the "when" trigger from the configuration.
func (b *BehaviorInstance) When() (WhenConfig, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.config["when"].(map[string]any)
	if !ok {
		return WhenConfig{}, false
	}
	return decodeWhen(raw)
}

// WhenExtended extracts the "when_extended" interval trigger.
func (b *BehaviorInstance) WhenExtended() (WhenExtended, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.config["when_extended"].(map[string]any)
	if !ok {
		return WhenExtended{}, false
	}
	var we WhenExtended
	we.RecurrenceDays = decodeDays(raw["recurrence_days"])
	start, ok := raw["start_at"].(map[string]any)
	if !ok {
		return WhenExtended{}, false
	}
	tp, ok := decodeTimePoint(start["time_point"])
	if !ok {
		return WhenExtended{}, false
	}
	we.StartAt = tp
	if end, ok := raw["end_at"].(map[string]any); ok {
		if tp, ok := decodeTimePoint(end["time_point"]); ok {
			we.EndAt = &tp
			we.HasEnd = true
		}
	}
	return we, true
}

// Fade extracts a duration keyed by name ("fade_in_duration",
// "fade_out_duration", "turn_lights_off_after"). The app writes any mix of
// hours, minutes and seconds.
func (b *BehaviorInstance) Fade(key string) (FadeDuration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.config[key].(map[string]any)
	if !ok {
		return FadeDuration{}, false
	}

	secs := 0
	found := false
	if n, ok := anyToInt(raw["hours"]); ok {
		secs += n * 3600
		found = true
	}
	if n, ok := anyToInt(raw["minutes"]); ok {
		secs += n * 60
		found = true
	}
	if n, ok := anyToInt(raw["seconds"]); ok {
		secs += n
		found = true
	}
	if !found {
		return FadeDuration{}, false
	}
	return FadeDuration{Seconds: secs}, true
}

// Duration extracts a countdown duration in seconds.
func (b *BehaviorInstance) Duration() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.config["duration"].(map[string]any)
	if !ok {
		return 0, false
	}
	return anyToInt(raw["seconds"])
}

// WhatTarget is one entry of a "what" list: the group to act on and the
// scene to recall into it.
type WhatTarget struct {
	Group  Ref
	Recall string
}

// What returns the recall targets of scripts that play scenes (countdown,
// scene schedule).
func (b *BehaviorInstance) What() []WhatTarget {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.config["what"].([]any)
	if !ok {
		return nil
	}
	var targets []WhatTarget
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		g, ok := m["group"].(map[string]any)
		if !ok {
			continue
		}
		rid, _ := g["rid"].(string)
		if rid == "" {
			continue
		}
		rtype, _ := g["rtype"].(string)
		t := WhatTarget{Group: Ref{RID: rid, RType: rtype}}
		if recall, ok := m["recall"].(map[string]any); ok {
			t.Recall, _ = recall["rid"].(string)
		}
		targets = append(targets, t)
	}
	return targets
}

// Where returns the group references the instance acts on.
func (b *BehaviorInstance) Where() []Ref {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.config["where"].([]any)
	if !ok {
		return nil
	}
	var refs []Ref
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		g, ok := m["group"].(map[string]any)
		if !ok {
			continue
		}
		rid, _ := g["rid"].(string)
		rtype, _ := g["rtype"].(string)
		if rid != "" {
			refs = append(refs, Ref{RID: rid, RType: rtype})
		}
	}
	return refs
}

func decodeWhen(raw map[string]any) (WhenConfig, bool) {
	var wc WhenConfig
	wc.RecurrenceDays = decodeDays(raw["recurrence_days"])
	tp, ok := decodeTimePoint(raw["time_point"])
	if !ok {
		return WhenConfig{}, false
	}
	wc.TimePoint = tp
	return wc, true
}

func decodeDays(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	var days []string
	for _, d := range raw {
		if s, ok := d.(string); ok {
			days = append(days, s)
		}
	}
	return days
}

func decodeTimePoint(v any) (TimePoint, bool) {
	raw, ok := v.(map[string]any)
	if !ok {
		return TimePoint{}, false
	}
	tm, ok := raw["time"].(map[string]any)
	if !ok {
		return TimePoint{}, false
	}
	hour, okH := anyToInt(tm["hour"])
	minute, okM := anyToInt(tm["minute"])
	if !okH || !okM {
		return TimePoint{}, false
	}
	return TimePoint{Hour: hour, Minute: minute}, true
}

func anyToInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// RecursOn reports whether the given weekday is in days. Empty days means
// every day.
func RecursOn(days []string, wd time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	name := weekdayNames[wd]
	for _, d := range days {
		if d == name {
			return true
		}
	}
	return false
}

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "sunday",
	time.Monday:    "monday",
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    "friday",
	time.Saturday:  "saturday",
}
