package resource

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/eventbus"
)

// Registry is the in-memory resource store. Weak references between
// resources (group member lists, scene light states) are held as v1 id keys
// into the registry, so a removed resource simply stops resolving.
type Registry struct {
	mu        sync.RWMutex
	lights    map[string]*Light
	groups    map[string]*Group
	scenes    map[string]*Scene
	sensors   map[string]*Sensor
	rules     map[string]*Rule
	schedules map[string]*Schedule
	behaviors map[string]*BehaviorInstance
	smart     map[string]*SmartScene

	nextID int

	bus *eventbus.Bus
}

// NewRegistry creates an empty registry publishing changes to bus. The bus
// may be nil in tests.
func NewRegistry(bus *eventbus.Bus) *Registry {
	return &Registry{
		lights:    make(map[string]*Light),
		groups:    make(map[string]*Group),
		scenes:    make(map[string]*Scene),
		sensors:   make(map[string]*Sensor),
		rules:     make(map[string]*Rule),
		schedules: make(map[string]*Schedule),
		behaviors: make(map[string]*BehaviorInstance),
		smart:     make(map[string]*SmartScene),
		nextID:    1,
		bus:       bus,
	}
}

// NextV1ID allocates the next numeric v1 id.
func (r *Registry) NextV1ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextV1IDLocked()
}

func (r *Registry) nextV1IDLocked() string {
	id := strconv.Itoa(r.nextID)
	r.nextID++
	return id
}

// bumpV1ID keeps the allocator ahead of ids loaded from a snapshot.
func (r *Registry) bumpV1ID(id string) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return
	}
	if n >= r.nextID {
		r.nextID = n + 1
	}
}

// AddLight registers a light and wires it to the bus.
func (r *Registry) AddLight(l *Light) {
	r.mu.Lock()
	l.bus = r.bus
	r.lights[l.IDV1] = l
	r.bumpV1ID(l.IDV1)
	r.mu.Unlock()
	r.publishAdd(TypeLight, l.IDV1)
}

// AddGroup registers a group and wires it to the bus and registry.
func (r *Registry) AddGroup(g *Group) {
	r.mu.Lock()
	g.bus = r.bus
	g.reg = r
	r.groups[g.IDV1] = g
	r.bumpV1ID(g.IDV1)
	r.mu.Unlock()
	r.publishAdd(TypeGroup, g.IDV1)
}

// AddScene registers a scene.
func (r *Registry) AddScene(s *Scene) {
	r.mu.Lock()
	s.reg = r
	r.scenes[s.IDV1] = s
	r.mu.Unlock()
	r.publishAdd(TypeScene, s.IDV1)
}

// AddSensor registers a sensor and wires it to the bus.
func (r *Registry) AddSensor(s *Sensor) {
	r.mu.Lock()
	s.bus = r.bus
	r.sensors[s.IDV1] = s
	r.bumpV1ID(s.IDV1)
	r.mu.Unlock()
	r.publishAdd(TypeSensor, s.IDV1)
}

// AddRule registers a rule.
func (r *Registry) AddRule(rl *Rule) {
	r.mu.Lock()
	r.rules[rl.IDV1] = rl
	r.bumpV1ID(rl.IDV1)
	r.mu.Unlock()
	r.publishAdd(TypeRule, rl.IDV1)
}

// AddSchedule registers a schedule.
func (r *Registry) AddSchedule(s *Schedule) {
	r.mu.Lock()
	r.schedules[s.IDV1] = s
	r.bumpV1ID(s.IDV1)
	r.mu.Unlock()
	r.publishAdd(TypeSchedule, s.IDV1)
}

// AddBehavior registers a behavior instance.
func (r *Registry) AddBehavior(b *BehaviorInstance) {
	r.mu.Lock()
	r.behaviors[b.IDV2] = b
	r.mu.Unlock()
	r.publishAdd(TypeBehaviorInstance, b.IDV2)
}

// AddSmartScene registers a smart scene.
func (r *Registry) AddSmartScene(s *SmartScene) {
	r.mu.Lock()
	r.smart[s.IDV2] = s
	r.mu.Unlock()
	r.publishAdd(TypeSmartScene, s.IDV2)
}

// LightByID returns the light with the given v1 id, nil if absent.
func (r *Registry) LightByID(id string) *Light {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lights[id]
}

// GroupByID returns the group with the given v1 id, nil if absent.
func (r *Registry) GroupByID(id string) *Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[id]
}

// SceneByID returns the scene with the given v1 id, nil if absent.
func (r *Registry) SceneByID(id string) *Scene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.scenes[id]
}

// SensorByID returns the sensor with the given v1 id, nil if absent.
func (r *Registry) SensorByID(id string) *Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sensors[id]
}

// RuleByID returns the rule with the given v1 id, nil if absent.
func (r *Registry) RuleByID(id string) *Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rules[id]
}

// ScheduleByID returns the schedule with the given v1 id, nil if absent.
func (r *Registry) ScheduleByID(id string) *Schedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.schedules[id]
}

// BehaviorByID returns the behavior instance with the given v2 id.
func (r *Registry) BehaviorByID(id string) *BehaviorInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.behaviors[id]
}

// SmartSceneByID returns the smart scene with the given v2 id.
func (r *Registry) SmartSceneByID(id string) *SmartScene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.smart[id]
}

// GroupByV2 resolves a group by its v2 id.
func (r *Registry) GroupByV2(idV2 string) *Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		if g.IDV2 == idV2 {
			return g
		}
	}
	return nil
}

// SceneByV2 resolves a scene by its v2 id.
func (r *Registry) SceneByV2(idV2 string) *Scene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.scenes {
		if s.IDV2 == idV2 {
			return s
		}
	}
	return nil
}

// Stateful resolves a resource by type name and v1 id for condition
// evaluation.
func (r *Registry) Stateful(resource, id string) (Stateful, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch resource {
	case TypeLight:
		if l, ok := r.lights[id]; ok {
			return l, nil
		}
	case TypeGroup:
		if g, ok := r.groups[id]; ok {
			return g, nil
		}
	case TypeSensor:
		if s, ok := r.sensors[id]; ok {
			return s, nil
		}
	case TypeRule:
		if rl, ok := r.rules[id]; ok {
			return rl, nil
		}
	default:
		return nil, fmt.Errorf("resource type %q has no state", resource)
	}
	return nil, fmt.Errorf("%s/%s not found", resource, id)
}

// Lights returns a snapshot of all lights.
func (r *Registry) Lights() []*Light {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Light, 0, len(r.lights))
	for _, l := range r.lights {
		out = append(out, l)
	}
	return out
}

// Groups returns a snapshot of all groups.
func (r *Registry) Groups() []*Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Group, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out
}

// Scenes returns a snapshot of all scenes.
func (r *Registry) Scenes() []*Scene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Scene, 0, len(r.scenes))
	for _, s := range r.scenes {
		out = append(out, s)
	}
	return out
}

// Sensors returns a snapshot of all sensors.
func (r *Registry) Sensors() []*Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s)
	}
	return out
}

// Rules returns a snapshot of all rules.
func (r *Registry) Rules() []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Rule, 0, len(r.rules))
	for _, rl := range r.rules {
		out = append(out, rl)
	}
	return out
}

// Schedules returns a snapshot of all schedules.
func (r *Registry) Schedules() []*Schedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, s)
	}
	return out
}

// Behaviors returns a snapshot of all behavior instances.
func (r *Registry) Behaviors() []*BehaviorInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BehaviorInstance, 0, len(r.behaviors))
	for _, b := range r.behaviors {
		out = append(out, b)
	}
	return out
}

// SmartScenes returns a snapshot of all smart scenes.
func (r *Registry) SmartScenes() []*SmartScene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SmartScene, 0, len(r.smart))
	for _, s := range r.smart {
		out = append(out, s)
	}
	return out
}

// Remove deletes a resource by type name and id. References from other
// resources are left in place and resolve to nothing afterwards.
func (r *Registry) Remove(resource, id string) bool {
	r.mu.Lock()
	var found bool
	switch resource {
	case TypeLight:
		_, found = r.lights[id]
		delete(r.lights, id)
	case TypeGroup:
		_, found = r.groups[id]
		delete(r.groups, id)
	case TypeScene:
		_, found = r.scenes[id]
		delete(r.scenes, id)
	case TypeSensor:
		_, found = r.sensors[id]
		delete(r.sensors, id)
	case TypeRule:
		_, found = r.rules[id]
		delete(r.rules, id)
	case TypeSchedule:
		_, found = r.schedules[id]
		delete(r.schedules, id)
	case TypeBehaviorInstance:
		_, found = r.behaviors[id]
		delete(r.behaviors, id)
	case TypeSmartScene:
		_, found = r.smart[id]
		delete(r.smart, id)
	}
	r.mu.Unlock()

	if !found {
		return false
	}
	log.Info().Str("resource", resource).Str("id", id).Msg("Resource removed")
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{
			Time:         time.Now(),
			Type:         eventbus.EventDelete,
			ResourceType: resource,
			ResourceID:   id,
		})
	}
	return true
}

func (r *Registry) publishAdd(resource, id string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{
		Time:         time.Now(),
		Type:         eventbus.EventAdd,
		ResourceType: resource,
		ResourceID:   id,
	})
}
