// Package automation runs the time-driven side of the bridge: schedules,
// behavior scripts, smart scenes, the daylight sensor and periodic
// housekeeping. Everything hangs off a one-second tick so recurring
// patterns can match an exact wall-clock second.
package automation

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/daylight"
	"github.com/dokzlo13/bridged/internal/dispatch"
	"github.com/dokzlo13/bridged/internal/resource"
)

// Saver persists a registry snapshot. Implemented by the store.
type Saver interface {
	Save(resource.Snapshot) error
}

// Engine drives schedules, behaviors and smart scenes off a ticker.
type Engine struct {
	reg        *resource.Registry
	dispatcher dispatch.Dispatcher
	sun        *daylight.Calculator
	saver      Saver

	interval time.Duration

	// patterns caches each schedule's parsed localtime so the /A random
	// element is drawn once per arming, not once per tick. Entries are
	// invalidated when the localtime changes or the day rolls over.
	patterns map[string]cachedPattern

	// daily callbacks run once per day during the maintenance slot.
	daily []func(time.Time)
}

// cachedPattern is one schedule's parsed localtime with the inputs that
// invalidate it.
type cachedPattern struct {
	localtime string
	day       int
	pattern   TimePattern
}

// NewEngine creates the automation engine. saver may be nil to disable the
// periodic state save.
func NewEngine(reg *resource.Registry, dispatcher dispatch.Dispatcher, sun *daylight.Calculator, saver Saver) *Engine {
	return &Engine{
		reg:        reg,
		dispatcher: dispatcher,
		sun:        sun,
		saver:      saver,
		interval:   time.Second,
		patterns:   make(map[string]cachedPattern),
	}
}

// Run ticks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().Msg("Automation engine started")
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Automation engine stopped")
			return ctx.Err()
		case now := <-ticker.C:
			e.tick(now)
		}
	}
}

// tick runs one evaluation pass. Split out for tests.
func (e *Engine) tick(now time.Time) {
	e.runSchedules(now)
	e.runBehaviors(now)
	e.runSmartScenes(now)
	e.updateDaylight(now)
	e.housekeeping(now)
}

// runSchedules fires every due schedule. One-shot schedules disable
// themselves after firing; recurring timers re-arm from the fire instant.
func (e *Engine) runSchedules(now time.Time) {
	for _, sched := range e.reg.Schedules() {
		if !sched.Enabled() {
			continue
		}

		pattern, err := e.schedulePattern(sched, now)
		if err != nil {
			log.Warn().Err(err).Str("schedule", sched.IDV1).Msg("Unparseable schedule localtime")
			continue
		}
		if !pattern.Due(now, sched.Starttime()) {
			continue
		}

		log.Info().Str("schedule", sched.IDV1).Str("name", sched.Name).Msg("Schedule fired")
		cmd := sched.Command
		if err := e.dispatcher.Dispatch(cmd.Address, cmd.Method, cmd.Body); err != nil {
			log.Warn().Err(err).Str("schedule", sched.IDV1).Msg("Schedule command failed")
		}

		switch pattern.Kind {
		case KindTimer, KindAbsolute:
			sched.SetStatus(resource.ScheduleDisabled, now)
			delete(e.patterns, sched.IDV1)
			if sched.Autodelete() {
				e.reg.Remove(resource.TypeSchedule, sched.IDV1)
			}
		case KindRecurringTimer:
			// Re-arming drops the cached pattern so the next period draws
			// fresh jitter.
			sched.Rearm(now)
			delete(e.patterns, sched.IDV1)
		}
	}
}

// schedulePattern returns the schedule's parsed localtime, parsing at most
// once per day so jittered patterns keep a single trigger instant.
func (e *Engine) schedulePattern(sched *resource.Schedule, now time.Time) (TimePattern, error) {
	localtime := sched.Localtime()
	day := now.Year()*1000 + now.YearDay()
	if c, ok := e.patterns[sched.IDV1]; ok && c.localtime == localtime && c.day == day {
		return c.pattern, nil
	}

	pattern, err := ParseTimePattern(localtime)
	if err != nil {
		return TimePattern{}, err
	}
	e.patterns[sched.IDV1] = cachedPattern{localtime: localtime, day: day, pattern: pattern}
	return pattern, nil
}

// updateDaylight keeps the built-in daylight sensor in sync with the sun.
// The write goes through SetState so a sunrise or sunset edge drives rules
// like any other sensor change.
func (e *Engine) updateDaylight(now time.Time) {
	if e.sun == nil {
		return
	}
	sensor := e.reg.SensorByID(resource.DaylightSensorID)
	if sensor == nil {
		return
	}

	isDay := e.sun.IsDaylight(now)
	if cur, ok := sensor.StateValue("daylight"); ok {
		if b, ok := cur.(bool); ok && b == isDay {
			return
		}
	}

	log.Info().Bool("daylight", isDay).Msg("Daylight transition")
	sensor.SetState(map[string]any{"daylight": isDay}, now)
}

// housekeeping saves state hourly and warms the sun-time cache once a day.
func (e *Engine) housekeeping(now time.Time) {
	if now.Minute() == 0 && now.Second() == 10 {
		if e.saver != nil {
			if err := e.saver.Save(e.reg.Snapshot()); err != nil {
				log.Error().Err(err).Msg("Periodic state save failed")
			} else {
				log.Debug().Msg("State snapshot saved")
			}
		}
		if e.sun != nil {
			e.sun.Times(now)
		}
	}

	if now.Hour() == 14 && now.Minute() == 0 && now.Second() == 0 {
		if e.sun != nil {
			times := e.sun.Times(now.AddDate(0, 0, 1))
			log.Info().
				Time("sunrise", times.Sunrise).
				Time("sunset", times.Sunset).
				Msg("Daily maintenance, next day sun times computed")
		}
		for _, fn := range e.daily {
			fn(now)
		}
	}
}

// OnDaily registers a callback run once a day during the maintenance slot.
// Collaborators hook firmware or catalog refreshes here. Not safe to call
// after Run has started.
func (e *Engine) OnDaily(fn func(time.Time)) {
	e.daily = append(e.daily, fn)
}
