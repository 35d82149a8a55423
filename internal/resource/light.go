package resource

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/color"
	"github.com/dokzlo13/bridged/internal/eventbus"
)

// LightState is the full v1-shaped state of a light.
type LightState struct {
	On        bool     `json:"on"`
	Bri       int      `json:"bri"`
	Hue       int      `json:"hue"`
	Sat       int      `json:"sat"`
	XY        color.XY `json:"xy"`
	CT        int      `json:"ct"`
	Alert     string   `json:"alert"`
	Effect    string   `json:"effect"`
	Colormode string   `json:"colormode"`
	Mode      string   `json:"mode"`
	Reachable bool     `json:"reachable"`
}

// ProtocolConfig carries the transport addressing for a light. Which fields
// are meaningful depends on the protocol family.
type ProtocolConfig struct {
	IP           string `json:"ip,omitempty"`
	LightNr      int    `json:"light_nr,omitempty"`
	UDPPort      int    `json:"udp_port,omitempty"`
	SegmentID    int    `json:"segment_id,omitempty"`
	SegmentStart int    `json:"segment_start,omitempty"`
	LEDCount     int    `json:"led_count,omitempty"`
	CommandTopic string `json:"command_topic,omitempty"`
	// Addressing on a paired real bridge (protocol "hue").
	HueID int `json:"hue_id,omitempty"`
}

// Light is one addressable light. State writes are serialized by the mutex;
// a multi-field patch is not atomic for readers, only per-field writes are.
type Light struct {
	IDV1        string
	IDV2        string
	Name        string
	ModelID     string
	UniqueID    string
	Protocol    string
	ProtocolCfg ProtocolConfig

	mu          sync.Mutex
	state       LightState
	lastChanged map[string]time.Time

	bus *eventbus.Bus
}

// NewLight creates a light with default state. The bus may be nil (tests).
func NewLight(idV1, name, modelID string) *Light {
	return &Light{
		IDV1:     idV1,
		IDV2:     NewID(),
		Name:     name,
		ModelID:  modelID,
		Protocol: "dummy",
		state: LightState{
			On:        false,
			Bri:       254,
			CT:        366,
			Alert:     "none",
			Effect:    "none",
			Colormode: ColormodeCT,
			Mode:      ModeNormal,
			Reachable: true,
		},
		lastChanged: make(map[string]time.Time),
	}
}

// ObjectPath implements Stateful.
func (l *Light) ObjectPath() (string, string) {
	return TypeLight, l.IDV1
}

// State returns a copy of the current state.
func (l *Light) State() LightState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// StateValue implements Stateful.
func (l *Light) StateValue(field string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch field {
	case "on":
		return l.state.On, true
	case "bri":
		return l.state.Bri, true
	case "hue":
		return l.state.Hue, true
	case "sat":
		return l.state.Sat, true
	case "ct":
		return l.state.CT, true
	case "xy":
		return l.state.XY, true
	case "alert":
		return l.state.Alert, true
	case "effect":
		return l.state.Effect, true
	case "colormode":
		return l.state.Colormode, true
	case "mode":
		return l.state.Mode, true
	case "reachable":
		return l.state.Reachable, true
	default:
		return nil, false
	}
}

// LastChanged implements Stateful.
func (l *Light) LastChanged(field string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts, ok := l.lastChanged[field]
	return ts, ok
}

// SetState merges a partial state update, stamps lastChanged for every field
// written and publishes an update event. Colormode follows the precedence
// xy > ct > hue/sat, evaluated per call.
func (l *Light) SetState(p StatePatch, now time.Time) {
	l.mu.Lock()
	p = l.applyLocked(p, now)
	l.mu.Unlock()

	l.publish(eventbus.EventUpdate, now, V2StateData(p))
}

// ApplyStreamState is the entertainment write path: identical merge and
// colormode handling, but no change event is published (the frame rate would
// flood the bus; streaming output has its own fan-out).
func (l *Light) ApplyStreamState(p StatePatch, now time.Time) {
	l.mu.Lock()
	l.applyLocked(p, now)
	l.mu.Unlock()
}

// SetReachable flips the reachable flag, typically after a driver failure.
func (l *Light) SetReachable(reachable bool, now time.Time) {
	l.SetState(StatePatch{Reachable: &reachable}, now)
}

// applyLocked performs the merge. Returns the patch with increments resolved
// so callers can publish what was actually written.
func (l *Light) applyLocked(p StatePatch, now time.Time) StatePatch {
	p = p.resolveIncrements(l.state)

	// Colormode precedence: xy beats ct beats hue/sat, per update call.
	switch {
	case p.XY != nil:
		l.state.Colormode = ColormodeXY
		l.lastChanged["colormode"] = now
	case p.CT != nil:
		l.state.Colormode = ColormodeCT
		l.lastChanged["colormode"] = now
	case p.Hue != nil || p.Sat != nil:
		l.state.Colormode = ColormodeHS
		l.lastChanged["colormode"] = now
	}

	stamp := func(field string) {
		l.lastChanged[field] = now
	}

	if p.On != nil {
		l.state.On = *p.On
		stamp("on")
	}
	if p.Bri != nil {
		l.state.Bri = *p.Bri
		stamp("bri")
	}
	if p.Hue != nil {
		l.state.Hue = *p.Hue
		stamp("hue")
	}
	if p.Sat != nil {
		l.state.Sat = *p.Sat
		stamp("sat")
	}
	if p.XY != nil {
		l.state.XY = *p.XY
		stamp("xy")
	}
	if p.CT != nil {
		l.state.CT = *p.CT
		stamp("ct")
	}
	if p.Alert != nil {
		l.state.Alert = *p.Alert
		stamp("alert")
	}
	if p.Effect != nil {
		l.state.Effect = *p.Effect
		stamp("effect")
	}
	if p.Mode != nil {
		l.state.Mode = *p.Mode
		stamp("mode")
	}
	if p.Reachable != nil {
		l.state.Reachable = *p.Reachable
		stamp("reachable")
	}
	return p
}

func (l *Light) publish(typ eventbus.EventType, now time.Time, data map[string]any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{
		Time:         now,
		Type:         typ,
		ResourceType: TypeLight,
		ResourceID:   l.IDV1,
		Data:         data,
	})
}

// restore replaces state wholesale, used when loading a snapshot.
func (l *Light) restore(state LightState, lastChanged map[string]time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = state
	if lastChanged != nil {
		l.lastChanged = lastChanged
	}
	log.Debug().Str("light", l.IDV1).Msg("Light state restored from snapshot")
}
