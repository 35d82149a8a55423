package resource

import (
	"sync"
	"time"
)

// Smart scene timeslot start kinds.
const (
	StartKindTime   = "time"
	StartKindSunset = "sunset"
)

// Smart scene states.
const (
	SmartSceneActive   = "active"
	SmartSceneInactive = "inactive"
)

// StartTime is when a timeslot becomes current: either a fixed wall-clock
// time or local sunset.
type StartTime struct {
	Kind   string `json:"kind"`
	Hour   int    `json:"hour,omitempty"`
	Minute int    `json:"minute,omitempty"`
	Second int    `json:"second,omitempty"`
}

// Timeslot binds a start time to the scene that should play from then on.
type Timeslot struct {
	Start   StartTime `json:"start_time"`
	SceneID string    `json:"target"` // v2 scene id
}

// SmartScene rotates a group through scenes over the day according to its
// timeslots.
type SmartScene struct {
	IDV2    string
	Name    string
	GroupID string // v1 group id

	mu          sync.Mutex
	timeslots   []Timeslot
	recurrence  []string
	state       string
	activeSlot  int
	lastRecall  time.Time
	transition  int // milliseconds applied on slot changes
}

// NewSmartScene creates an inactive smart scene.
func NewSmartScene(idV2, name, groupID string, slots []Timeslot, recurrence []string) *SmartScene {
	return &SmartScene{
		IDV2:       idV2,
		Name:       name,
		GroupID:    groupID,
		timeslots:  slots,
		recurrence: recurrence,
		state:      SmartSceneInactive,
		activeSlot: -1,
		transition: 60000,
	}
}

// Timeslots returns the slot list in definition order.
func (s *SmartScene) Timeslots() []Timeslot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Timeslot, len(s.timeslots))
	copy(out, s.timeslots)
	return out
}

// SetTimeslots replaces the slot list.
func (s *SmartScene) SetTimeslots(slots []Timeslot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeslots = slots
	s.activeSlot = -1
}

// Recurrence returns the weekday names the scene runs on; empty means daily.
func (s *SmartScene) Recurrence() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recurrence
}

// Active reports whether the smart scene is currently driving its group.
func (s *SmartScene) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SmartSceneActive
}

// State returns "active" or "inactive".
func (s *SmartScene) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Activate marks the scene active and forgets the slot cursor so the next
// tick recalls the current slot.
func (s *SmartScene) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SmartSceneActive
	s.activeSlot = -1
}

// Deactivate stops the scene.
func (s *SmartScene) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SmartSceneInactive
	s.activeSlot = -1
}

// ActiveSlot returns the index of the last recalled slot, -1 if none.
func (s *SmartScene) ActiveSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSlot
}

// MarkRecalled records that the given slot was recalled.
func (s *SmartScene) MarkRecalled(slot int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSlot = slot
	s.lastRecall = now
}

// Transition returns the fade to apply on slot changes, in milliseconds.
func (s *SmartScene) Transition() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition
}
