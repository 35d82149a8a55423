package resource

import (
	"sync"
	"time"
)

// Schedule statuses.
const (
	ScheduleEnabled  = "enabled"
	ScheduleDisabled = "disabled"
)

// Schedule fires a single API command at a time described by the v1 localtime
// grammar: absolute timestamps, recurring weekday patterns and timers.
type Schedule struct {
	IDV1        string
	Name        string
	Description string

	Command Action

	mu         sync.Mutex
	localtime  string
	starttime  time.Time
	status     string
	autodelete bool
	created    time.Time
}

// NewSchedule creates an enabled schedule. The starttime anchors PT timers.
func NewSchedule(idV1, name, localtime string, command Action, now time.Time) *Schedule {
	return &Schedule{
		IDV1:      idV1,
		Name:      name,
		Command:   command,
		localtime: localtime,
		starttime: now,
		status:    ScheduleEnabled,
		created:   now,
	}
}

// Localtime returns the schedule's time pattern.
func (s *Schedule) Localtime() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localtime
}

// SetLocaltime replaces the pattern and re-anchors the timer base.
func (s *Schedule) SetLocaltime(localtime string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localtime = localtime
	s.starttime = now
}

// Starttime returns the timer anchor.
func (s *Schedule) Starttime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starttime
}

// Rearm resets the timer anchor, used by recurring timers after they fire.
func (s *Schedule) Rearm(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starttime = now
}

// Enabled reports whether the schedule may fire.
func (s *Schedule) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == ScheduleEnabled
}

// SetStatus enables or disables the schedule. Enabling re-anchors timers so a
// PT pattern counts from the enable instant.
func (s *Schedule) SetStatus(status string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == ScheduleEnabled && s.status != ScheduleEnabled {
		s.starttime = now
	}
	s.status = status
}

// Autodelete reports whether the schedule removes itself after firing.
func (s *Schedule) Autodelete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autodelete
}

// SetAutodelete toggles self-removal after firing.
func (s *Schedule) SetAutodelete(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autodelete = v
}
