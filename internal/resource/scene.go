package resource

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Scene is a snapshot of partial light states taken at store time. It stays
// immutable until recaptured; activating it copies each snapshot back into
// its light. Lights are referenced by registry key and may have been removed
// since capture.
type Scene struct {
	IDV1    string
	IDV2    string
	Name    string
	Type    string
	Owner   string
	GroupID string

	// LightStates maps v1 light id to the captured partial state.
	LightStates map[string]StatePatch

	Status      string
	LastUpdated time.Time

	reg *Registry
}

// NewScene creates an empty scene for the given group.
func NewScene(idV1, name, groupID string) *Scene {
	return &Scene{
		IDV1:        idV1,
		IDV2:        NewID(),
		Name:        name,
		Type:        "GroupScene",
		GroupID:     groupID,
		LightStates: make(map[string]StatePatch),
		Status:      "inactive",
	}
}

// Capture stores the current on/color/brightness of every referenced light,
// replacing the previous snapshot.
func (s *Scene) Capture(lightIDs []string, now time.Time) {
	if s.reg == nil {
		return
	}
	states := make(map[string]StatePatch, len(lightIDs))
	for _, id := range lightIDs {
		light := s.reg.LightByID(id)
		if light == nil {
			continue
		}
		st := light.State()
		on, bri := st.On, st.Bri
		p := StatePatch{On: &on, Bri: &bri}
		switch st.Colormode {
		case ColormodeXY:
			xy := st.XY
			p.XY = &xy
		case ColormodeCT:
			ct := st.CT
			p.CT = &ct
		case ColormodeHS:
			hue, sat := st.Hue, st.Sat
			p.Hue = &hue
			p.Sat = &sat
		}
		states[id] = p
	}
	s.LightStates = states
	s.LastUpdated = now
}

// Activate copies every captured state back into its light. The optional
// transition (v1 deciseconds) is attached to each write. Removed lights are
// skipped.
func (s *Scene) Activate(transition *int, now time.Time) {
	if s.reg == nil {
		return
	}
	s.Status = "active"
	for id, p := range s.LightStates {
		light := s.reg.LightByID(id)
		if light == nil {
			log.Debug().Str("scene", s.IDV1).Str("light", id).Msg("Scene member no longer exists, skipping")
			continue
		}
		if transition != nil {
			p.TransitionTime = transition
		}
		light.SetState(p, now)
	}
}

// Deactivate marks the scene inactive. Light state is left as-is.
func (s *Scene) Deactivate() {
	s.Status = "inactive"
}
