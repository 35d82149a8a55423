package resource

import (
	"sync"
	"time"

	"github.com/dokzlo13/bridged/internal/eventbus"
)

// GroupState is the aggregate derived from live member lights. It is
// computed on read and never persisted.
type GroupState struct {
	AllOn  bool `json:"all_on"`
	AnyOn  bool `json:"any_on"`
	AvgBri int  `json:"avg_bri"`
}

// StreamState tracks entertainment streaming on a group. Clearing Active is
// the cancellation signal for a running streaming session.
type StreamState struct {
	Active    bool   `json:"active"`
	Owner     string `json:"owner,omitempty"`
	ProxyMode string `json:"proxymode,omitempty"`
	ProxyNode string `json:"proxynode,omitempty"`
}

// Channel maps one entertainment channel to a member light. Order matters:
// the channel id is the position the streaming client was told about.
type Channel struct {
	ID      int    `json:"channel_id"`
	LightID string `json:"light_id"`
}

// Group is a weak collection of lights and sensors: members are held as
// registry keys, and a stale key reads as an absent member, never an error.
type Group struct {
	IDV1  string
	IDV2  string
	Name  string
	Type  string
	Class string

	LightIDs  []string
	SensorIDs []string

	// Channels is the entertainment channel layout, meaningful only for
	// entertainment groups.
	Channels []Channel

	mu          sync.Mutex
	action      LightState
	stream      StreamState
	lastChanged map[string]time.Time

	bus *eventbus.Bus
	reg *Registry
}

// NewGroup creates a group of the given v1 type ("LightGroup", "Room",
// "Zone", "Entertainment").
func NewGroup(idV1, name, typ string) *Group {
	return &Group{
		IDV1: idV1,
		IDV2: NewID(),
		Name: name,
		Type: typ,
		action: LightState{
			Bri:       100,
			Sat:       254,
			CT:        153,
			Alert:     "none",
			Effect:    "none",
			Colormode: ColormodeXY,
		},
		lastChanged: make(map[string]time.Time),
	}
}

// ObjectPath implements Stateful.
func (g *Group) ObjectPath() (string, string) {
	return TypeGroup, g.IDV1
}

// Action returns a copy of the last applied group action.
func (g *Group) Action() LightState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.action
}

// AggregateState folds live member state into all_on/any_on/average
// brightness. Members removed from the registry are skipped.
func (g *Group) AggregateState() GroupState {
	allOn := true
	anyOn := false
	briSum := 0
	lightsOn := 0
	members := 0

	if g.reg == nil {
		return GroupState{}
	}

	for _, id := range g.LightIDs {
		light := g.reg.LightByID(id)
		if light == nil {
			continue
		}
		members++
		st := light.State()
		if st.On {
			anyOn = true
			lightsOn++
			briSum += st.Bri
		} else {
			allOn = false
		}
	}

	if members == 0 {
		allOn = false
	}
	avg := 0
	if lightsOn > 0 {
		avg = briSum / lightsOn
	}
	return GroupState{AllOn: allOn, AnyOn: anyOn, AvgBri: avg}
}

// StateValue implements Stateful against the live aggregate.
func (g *Group) StateValue(field string) (any, bool) {
	st := g.AggregateState()
	switch field {
	case "all_on":
		return st.AllOn, true
	case "any_on":
		return st.AnyOn, true
	case "avg_bri":
		return st.AvgBri, true
	default:
		return nil, false
	}
}

// LastChanged implements Stateful.
func (g *Group) LastChanged(field string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts, ok := g.lastChanged[field]
	return ts, ok
}

// SetAction applies a partial state to every live member light, updates the
// stored group action (including its own colormode tag) and publishes a
// grouped change event.
func (g *Group) SetAction(p StatePatch, now time.Time) {
	before := g.AggregateState()

	if g.reg != nil {
		for _, id := range g.LightIDs {
			light := g.reg.LightByID(id)
			if light == nil {
				continue
			}
			light.SetState(p, now)
		}
	}

	g.mu.Lock()
	switch {
	case p.XY != nil:
		g.action.Colormode = ColormodeXY
	case p.CT != nil:
		g.action.Colormode = ColormodeCT
	case p.Hue != nil || p.Sat != nil:
		g.action.Colormode = ColormodeHS
	}
	if p.On != nil {
		g.action.On = *p.On
	}
	if p.Bri != nil {
		g.action.Bri = *p.Bri
	}
	if p.Hue != nil {
		g.action.Hue = *p.Hue
	}
	if p.Sat != nil {
		g.action.Sat = *p.Sat
	}
	if p.XY != nil {
		g.action.XY = *p.XY
	}
	if p.CT != nil {
		g.action.CT = *p.CT
	}
	g.mu.Unlock()

	after := g.AggregateState()
	g.mu.Lock()
	if before.AllOn != after.AllOn {
		g.lastChanged["all_on"] = now
	}
	if before.AnyOn != after.AnyOn {
		g.lastChanged["any_on"] = now
	}
	g.mu.Unlock()

	g.publish(eventbus.EventUpdate, now, V2StateData(p))
}

// Stream returns a copy of the streaming state.
func (g *Group) Stream() StreamState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream
}

// StreamActive reports whether an entertainment session owns this group.
func (g *Group) StreamActive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream.Active
}

// StartStream marks the group as actively streamed by owner.
func (g *Group) StartStream(owner string) {
	g.mu.Lock()
	g.stream.Active = true
	g.stream.Owner = owner
	g.mu.Unlock()
}

// StopStream clears the streaming claim. Safe to call repeatedly.
func (g *Group) StopStream() {
	g.mu.Lock()
	g.stream.Active = false
	g.stream.Owner = ""
	g.mu.Unlock()
}

func (g *Group) publish(typ eventbus.EventType, now time.Time, data map[string]any) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(eventbus.Event{
		Time:         now,
		Type:         typ,
		ResourceType: TypeGroup,
		ResourceID:   g.IDV1,
		Data:         data,
	})
}
