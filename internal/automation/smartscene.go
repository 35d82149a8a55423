package automation

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/resource"
)

// runSmartScenes advances every active smart scene to its current timeslot.
func (e *Engine) runSmartScenes(now time.Time) {
	for _, ss := range e.reg.SmartScenes() {
		if !ss.Active() {
			continue
		}
		if !resource.RecursOn(ss.Recurrence(), now.Weekday()) {
			continue
		}
		slots := ss.Timeslots()
		if len(slots) == 0 {
			continue
		}

		idx := e.currentSlot(slots, now)
		if idx < 0 || idx == ss.ActiveSlot() {
			continue
		}

		// The final slot ends the day by switching the group off instead of
		// recalling its scene. The scene stays active so the cycle resumes
		// at the first slot of the next day.
		if idx == len(slots)-1 {
			e.endSlot(ss, idx, now)
			continue
		}
		e.recallSlot(ss, slots[idx], idx, now)
	}
}

// currentSlot picks the slot whose start is the latest one already passed
// today, -1 when the first slot is still ahead.
func (e *Engine) currentSlot(slots []resource.Timeslot, now time.Time) int {
	cur := now.Hour()*3600 + now.Minute()*60 + now.Second()
	starts := e.resolveSlotStarts(slots, now)

	best := -1
	bestStart := -1
	for i, start := range starts {
		if start <= cur && start > bestStart {
			best = i
			bestStart = start
		}
	}
	return best
}

// resolveSlotStarts maps each slot to seconds since midnight. A sunset slot
// resolves to the computed local sunset; when sunset runs past the next
// slot's own start, that slot is pushed back to sunset plus half an hour.
func (e *Engine) resolveSlotStarts(slots []resource.Timeslot, now time.Time) []int {
	starts := make([]int, len(slots))
	sunsetIdx := -1

	for i, slot := range slots {
		if slot.Start.Kind == resource.StartKindSunset && e.sun != nil {
			sunset := e.sun.Times(now).Sunset
			starts[i] = sunset.Hour()*3600 + sunset.Minute()*60 + sunset.Second()
			sunsetIdx = i
			continue
		}
		starts[i] = slot.Start.Hour*3600 + slot.Start.Minute*60 + slot.Start.Second
		if sunsetIdx >= 0 && i == sunsetIdx+1 && starts[sunsetIdx] > starts[i] {
			starts[i] = starts[sunsetIdx] + 1800
		}
	}
	return starts
}

// recallSlot plays a slot's scene into the smart scene's group.
func (e *Engine) recallSlot(ss *resource.SmartScene, slot resource.Timeslot, idx int, now time.Time) {
	group := e.reg.GroupByID(ss.GroupID)
	if group == nil {
		log.Warn().Str("smart_scene", ss.IDV2).Str("group", ss.GroupID).Msg("Smart scene group missing")
		return
	}

	body := map[string]any{
		"scene": slot.SceneID,
		// Transition is stored in ms, dispatch wants 100ms units.
		"transitiontime": ss.Transition() / 100,
	}
	if err := e.dispatcher.Dispatch("/groups/"+group.IDV1+"/action", "PUT", body); err != nil {
		log.Warn().Err(err).Str("smart_scene", ss.IDV2).Int("slot", idx).Msg("Smart scene recall failed")
		return
	}

	log.Info().Str("smart_scene", ss.IDV2).Int("slot", idx).Str("scene", slot.SceneID).Msg("Smart scene slot recalled")
	ss.MarkRecalled(idx, now)
}

// endSlot turns the smart scene's group off for the last slot of the day.
func (e *Engine) endSlot(ss *resource.SmartScene, idx int, now time.Time) {
	group := e.reg.GroupByID(ss.GroupID)
	if group == nil {
		log.Warn().Str("smart_scene", ss.IDV2).Str("group", ss.GroupID).Msg("Smart scene group missing")
		return
	}

	if err := e.dispatcher.Dispatch("/groups/"+group.IDV1+"/action", "PUT", map[string]any{"on": false}); err != nil {
		log.Warn().Err(err).Str("smart_scene", ss.IDV2).Msg("Smart scene group off failed")
		return
	}

	log.Info().Str("smart_scene", ss.IDV2).Msg("Smart scene reached final slot, group off")
	ss.MarkRecalled(idx, now)
}
