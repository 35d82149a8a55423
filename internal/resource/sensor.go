package resource

import (
	"sync"
	"time"

	"github.com/dokzlo13/bridged/internal/eventbus"
)

// Well-known sensor ids and types.
const (
	DaylightSensorID   = "1"
	SensorTypeDaylight = "Daylight"
)

// Sensor is a generic sensor resource: switches, motion, the built-in
// daylight sensor. State is a flat field map with per-field change
// timestamps so rules can address any field.
type Sensor struct {
	IDV1     string
	IDV2     string
	Name     string
	Type     string
	ModelID  string
	UniqueID string

	mu          sync.Mutex
	state       map[string]any
	config      map[string]any
	lastChanged map[string]time.Time

	bus *eventbus.Bus
}

// NewSensor creates a sensor with empty state.
func NewSensor(idV1, name, typ string) *Sensor {
	return &Sensor{
		IDV1:        idV1,
		IDV2:        NewID(),
		Name:        name,
		Type:        typ,
		state:       make(map[string]any),
		config:      make(map[string]any),
		lastChanged: make(map[string]time.Time),
	}
}

// ObjectPath implements Stateful.
func (s *Sensor) ObjectPath() (string, string) {
	return TypeSensor, s.IDV1
}

// StateValue implements Stateful.
func (s *Sensor) StateValue(field string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[field]
	return v, ok
}

// LastChanged implements Stateful.
func (s *Sensor) LastChanged(field string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.lastChanged[field]
	return ts, ok
}

// SetState merges fields into the sensor state, stamps lastChanged for each
// one and publishes an update event.
func (s *Sensor) SetState(fields map[string]any, now time.Time) {
	s.mu.Lock()
	for k, v := range fields {
		s.state[k] = v
		s.lastChanged[k] = now
	}
	s.mu.Unlock()

	if s.bus != nil {
		data := make(map[string]any, len(fields))
		for k, v := range fields {
			data[k] = v
		}
		s.bus.Publish(eventbus.Event{
			Time:         now,
			Type:         eventbus.EventUpdate,
			ResourceType: TypeSensor,
			ResourceID:   s.IDV1,
			Data:         data,
		})
	}
}

// Config returns the value of a configuration key.
func (s *Sensor) Config(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.config[key]
	return v, ok
}

// SetConfig merges configuration keys without touching state or timestamps.
func (s *Sensor) SetConfig(fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range fields {
		s.config[k] = v
	}
}

// snapshot returns copies of the internal maps for persistence.
func (s *Sensor) snapshot() (state, config map[string]any, lastChanged map[string]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state = make(map[string]any, len(s.state))
	for k, v := range s.state {
		state[k] = v
	}
	config = make(map[string]any, len(s.config))
	for k, v := range s.config {
		config[k] = v
	}
	lastChanged = make(map[string]time.Time, len(s.lastChanged))
	for k, v := range s.lastChanged {
		lastChanged[k] = v
	}
	return state, config, lastChanged
}

// restore replaces state wholesale, used when loading a snapshot.
func (s *Sensor) restore(state, config map[string]any, lastChanged map[string]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state != nil {
		s.state = state
	}
	if config != nil {
		s.config = config
	}
	if lastChanged != nil {
		s.lastChanged = lastChanged
	}
}
