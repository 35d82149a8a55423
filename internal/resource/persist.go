package resource

import (
	"time"
)

// Snapshot is the serializable image of the whole registry, written to the
// database on the housekeeping tick and loaded back on startup.
type Snapshot struct {
	Lights      []LightRecord      `json:"lights"`
	Groups      []GroupRecord      `json:"groups"`
	Scenes      []SceneRecord      `json:"scenes"`
	Sensors     []SensorRecord     `json:"sensors"`
	Rules       []RuleRecord       `json:"rules"`
	Schedules   []ScheduleRecord   `json:"schedules"`
	Behaviors   []BehaviorRecord   `json:"behavior_instances"`
	SmartScenes []SmartSceneRecord `json:"smart_scenes"`
}

type LightRecord struct {
	IDV1        string               `json:"id_v1"`
	IDV2        string               `json:"id_v2"`
	Name        string               `json:"name"`
	ModelID     string               `json:"modelid"`
	UniqueID    string               `json:"uniqueid"`
	Protocol    string               `json:"protocol"`
	ProtocolCfg ProtocolConfig       `json:"protocol_cfg"`
	State       LightState           `json:"state"`
	LastChanged map[string]time.Time `json:"last_changed"`
}

type GroupRecord struct {
	IDV1      string     `json:"id_v1"`
	IDV2      string     `json:"id_v2"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Class     string     `json:"class,omitempty"`
	LightIDs  []string   `json:"lights"`
	SensorIDs []string   `json:"sensors,omitempty"`
	Channels  []Channel  `json:"channels,omitempty"`
	Action    LightState `json:"action"`
}

type SceneRecord struct {
	IDV1        string                `json:"id_v1"`
	IDV2        string                `json:"id_v2"`
	Name        string                `json:"name"`
	Type        string                `json:"type"`
	Owner       string                `json:"owner,omitempty"`
	GroupID     string                `json:"group"`
	LightStates map[string]StatePatch `json:"lightstates"`
	LastUpdated time.Time             `json:"lastupdated"`
}

type SensorRecord struct {
	IDV1        string               `json:"id_v1"`
	IDV2        string               `json:"id_v2"`
	Name        string               `json:"name"`
	Type        string               `json:"type"`
	ModelID     string               `json:"modelid"`
	UniqueID    string               `json:"uniqueid"`
	State       map[string]any       `json:"state"`
	Config      map[string]any       `json:"config"`
	LastChanged map[string]time.Time `json:"last_changed"`
}

type RuleRecord struct {
	IDV1           string      `json:"id_v1"`
	Name           string      `json:"name"`
	Owner          string      `json:"owner,omitempty"`
	Conditions     []Condition `json:"conditions"`
	Actions        []Action    `json:"actions"`
	Status         string      `json:"status"`
	LastTriggered  time.Time   `json:"lasttriggered"`
	TimesTriggered int         `json:"timestriggered"`
}

type ScheduleRecord struct {
	IDV1        string    `json:"id_v1"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Command     Action    `json:"command"`
	Localtime   string    `json:"localtime"`
	Starttime   time.Time `json:"starttime"`
	Status      string    `json:"status"`
	Autodelete  bool      `json:"autodelete"`
}

type BehaviorRecord struct {
	IDV2     string         `json:"id_v2"`
	ScriptID string         `json:"script_id"`
	Name     string         `json:"name"`
	Enabled  bool           `json:"enabled"`
	Active   bool           `json:"active"`
	Config   map[string]any `json:"configuration"`
}

type SmartSceneRecord struct {
	IDV2       string     `json:"id_v2"`
	Name       string     `json:"name"`
	GroupID    string     `json:"group"`
	Timeslots  []Timeslot `json:"timeslots"`
	Recurrence []string   `json:"recurrence,omitempty"`
	State      string     `json:"state"`
}

// Snapshot captures the full registry contents.
func (r *Registry) Snapshot() Snapshot {
	var snap Snapshot

	for _, l := range r.Lights() {
		l.mu.Lock()
		lc := make(map[string]time.Time, len(l.lastChanged))
		for k, v := range l.lastChanged {
			lc[k] = v
		}
		snap.Lights = append(snap.Lights, LightRecord{
			IDV1:        l.IDV1,
			IDV2:        l.IDV2,
			Name:        l.Name,
			ModelID:     l.ModelID,
			UniqueID:    l.UniqueID,
			Protocol:    l.Protocol,
			ProtocolCfg: l.ProtocolCfg,
			State:       l.state,
			LastChanged: lc,
		})
		l.mu.Unlock()
	}

	for _, g := range r.Groups() {
		g.mu.Lock()
		snap.Groups = append(snap.Groups, GroupRecord{
			IDV1:      g.IDV1,
			IDV2:      g.IDV2,
			Name:      g.Name,
			Type:      g.Type,
			Class:     g.Class,
			LightIDs:  append([]string(nil), g.LightIDs...),
			SensorIDs: append([]string(nil), g.SensorIDs...),
			Channels:  append([]Channel(nil), g.Channels...),
			Action:    g.action,
		})
		g.mu.Unlock()
	}

	for _, s := range r.Scenes() {
		states := make(map[string]StatePatch, len(s.LightStates))
		for k, v := range s.LightStates {
			states[k] = v
		}
		snap.Scenes = append(snap.Scenes, SceneRecord{
			IDV1:        s.IDV1,
			IDV2:        s.IDV2,
			Name:        s.Name,
			Type:        s.Type,
			Owner:       s.Owner,
			GroupID:     s.GroupID,
			LightStates: states,
			LastUpdated: s.LastUpdated,
		})
	}

	for _, s := range r.Sensors() {
		state, config, lc := s.snapshot()
		snap.Sensors = append(snap.Sensors, SensorRecord{
			IDV1:        s.IDV1,
			IDV2:        s.IDV2,
			Name:        s.Name,
			Type:        s.Type,
			ModelID:     s.ModelID,
			UniqueID:    s.UniqueID,
			State:       state,
			Config:      config,
			LastChanged: lc,
		})
	}

	for _, rl := range r.Rules() {
		rl.mu.Lock()
		snap.Rules = append(snap.Rules, RuleRecord{
			IDV1:           rl.IDV1,
			Name:           rl.Name,
			Owner:          rl.Owner,
			Conditions:     append([]Condition(nil), rl.Conditions...),
			Actions:        append([]Action(nil), rl.Actions...),
			Status:         rl.status,
			LastTriggered:  rl.lastTriggered,
			TimesTriggered: rl.timesTriggered,
		})
		rl.mu.Unlock()
	}

	for _, s := range r.Schedules() {
		s.mu.Lock()
		snap.Schedules = append(snap.Schedules, ScheduleRecord{
			IDV1:        s.IDV1,
			Name:        s.Name,
			Description: s.Description,
			Command:     s.Command,
			Localtime:   s.localtime,
			Starttime:   s.starttime,
			Status:      s.status,
			Autodelete:  s.autodelete,
		})
		s.mu.Unlock()
	}

	for _, b := range r.Behaviors() {
		b.mu.Lock()
		snap.Behaviors = append(snap.Behaviors, BehaviorRecord{
			IDV2:     b.IDV2,
			ScriptID: b.ScriptID,
			Name:     b.Name,
			Enabled:  b.enabled,
			Active:   b.active,
			Config:   b.config,
		})
		b.mu.Unlock()
	}

	for _, s := range r.SmartScenes() {
		s.mu.Lock()
		snap.SmartScenes = append(snap.SmartScenes, SmartSceneRecord{
			IDV2:       s.IDV2,
			Name:       s.Name,
			GroupID:    s.GroupID,
			Timeslots:  append([]Timeslot(nil), s.timeslots...),
			Recurrence: s.recurrence,
			State:      s.state,
		})
		s.mu.Unlock()
	}

	return snap
}

// Restore rebuilds the registry from a snapshot. Startup restore does not
// publish add events for restored resources.
func (r *Registry) Restore(snap Snapshot) {
	now := time.Now()

	for _, rec := range snap.Lights {
		l := NewLight(rec.IDV1, rec.Name, rec.ModelID)
		l.IDV2 = rec.IDV2
		l.UniqueID = rec.UniqueID
		l.Protocol = rec.Protocol
		l.ProtocolCfg = rec.ProtocolCfg
		l.restore(rec.State, rec.LastChanged)
		r.mu.Lock()
		l.bus = r.bus
		r.lights[l.IDV1] = l
		r.bumpV1ID(l.IDV1)
		r.mu.Unlock()
	}

	for _, rec := range snap.Groups {
		g := NewGroup(rec.IDV1, rec.Name, rec.Type)
		g.IDV2 = rec.IDV2
		g.Class = rec.Class
		g.LightIDs = rec.LightIDs
		g.SensorIDs = rec.SensorIDs
		g.Channels = rec.Channels
		g.action = rec.Action
		r.mu.Lock()
		g.bus = r.bus
		g.reg = r
		r.groups[g.IDV1] = g
		r.bumpV1ID(g.IDV1)
		r.mu.Unlock()
	}

	for _, rec := range snap.Scenes {
		s := NewScene(rec.IDV1, rec.Name, rec.GroupID)
		s.IDV2 = rec.IDV2
		s.Type = rec.Type
		s.Owner = rec.Owner
		s.LightStates = rec.LightStates
		s.LastUpdated = rec.LastUpdated
		r.mu.Lock()
		s.reg = r
		r.scenes[s.IDV1] = s
		r.mu.Unlock()
	}

	for _, rec := range snap.Sensors {
		s := NewSensor(rec.IDV1, rec.Name, rec.Type)
		s.IDV2 = rec.IDV2
		s.ModelID = rec.ModelID
		s.UniqueID = rec.UniqueID
		s.restore(rec.State, rec.Config, rec.LastChanged)
		r.mu.Lock()
		s.bus = r.bus
		r.sensors[s.IDV1] = s
		r.bumpV1ID(s.IDV1)
		r.mu.Unlock()
	}

	for _, rec := range snap.Rules {
		rl := NewRule(rec.IDV1, rec.Name, rec.Conditions, rec.Actions)
		rl.Owner = rec.Owner
		rl.status = rec.Status
		rl.lastTriggered = rec.LastTriggered
		rl.timesTriggered = rec.TimesTriggered
		r.mu.Lock()
		r.rules[rl.IDV1] = rl
		r.bumpV1ID(rl.IDV1)
		r.mu.Unlock()
	}

	for _, rec := range snap.Schedules {
		// Timers re-anchor at startup rather than firing for time spent down.
		s := NewSchedule(rec.IDV1, rec.Name, rec.Localtime, rec.Command, now)
		s.Description = rec.Description
		s.status = rec.Status
		s.autodelete = rec.Autodelete
		r.mu.Lock()
		r.schedules[s.IDV1] = s
		r.bumpV1ID(s.IDV1)
		r.mu.Unlock()
	}

	for _, rec := range snap.Behaviors {
		b := NewBehaviorInstance(rec.IDV2, rec.ScriptID, rec.Name, rec.Config)
		if rec.Enabled {
			b.SetEnabled(true, now)
			b.SetActive(rec.Active)
		}
		r.mu.Lock()
		r.behaviors[b.IDV2] = b
		r.mu.Unlock()
	}

	for _, rec := range snap.SmartScenes {
		s := NewSmartScene(rec.IDV2, rec.Name, rec.GroupID, rec.Timeslots, rec.Recurrence)
		if rec.State == SmartSceneActive {
			s.Activate()
		}
		r.mu.Lock()
		r.smart[s.IDV2] = s
		r.mu.Unlock()
	}
}
