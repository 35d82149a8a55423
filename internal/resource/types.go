// Package resource holds the canonical device state model: lights, groups,
// scenes, sensors and the declarative automation resources (rules,
// schedules, behavior instances, smart scenes). All mutation goes through
// the typed operations here so colormode precedence, per-field change
// timestamps and change events stay consistent.
package resource

import (
	"time"

	"github.com/google/uuid"
)

// Type names double as the path segment used in condition and action
// addresses ("/sensors/2/state/presence").
const (
	TypeLight            = "lights"
	TypeGroup            = "groups"
	TypeScene            = "scenes"
	TypeRule             = "rules"
	TypeSchedule         = "schedules"
	TypeSensor           = "sensors"
	TypeBehaviorInstance = "behavior_instance"
	TypeSmartScene       = "smart_scene"
)

// Colormode values. The most recently written color representation wins.
const (
	ColormodeXY = "xy"
	ColormodeCT = "ct"
	ColormodeHS = "hs"
)

// Light mode values. Streaming suspends normal automation control.
const (
	ModeNormal    = "homeautomation"
	ModeStreaming = "streaming"
)

// Stateful is implemented by resources that rules can reference: a state
// field readable by name plus the timestamp of its last write.
type Stateful interface {
	// ObjectPath returns the resource type ("lights", "sensors", ...) and id.
	ObjectPath() (string, string)
	// StateValue returns the current value of a state field by name.
	StateValue(field string) (any, bool)
	// LastChanged returns when the field was last written.
	LastChanged(field string) (time.Time, bool)
}

// Ref points at a v2 resource.
type Ref struct {
	RID   string `json:"rid"`
	RType string `json:"rtype"`
}

// NewID returns a fresh v2 resource id.
func NewID() string {
	return uuid.NewString()
}

// ServiceID derives the stable v2 id of a service owned by a resource, e.g.
// the entertainment service of a light.
func ServiceID(idV2, service string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(idV2+service)).String()
}
