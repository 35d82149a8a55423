package automation

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/resource"
)

// runBehaviors evaluates every enabled behavior instance against the tick.
func (e *Engine) runBehaviors(now time.Time) {
	for _, b := range e.reg.Behaviors() {
		if !b.Enabled() {
			continue
		}
		switch b.ScriptID {
		case resource.ScriptWakeUp:
			e.runWakeUp(b, now)
		case resource.ScriptGoToSleep:
			e.runGoToSleep(b, now)
		case resource.ScriptCountdown:
			e.runCountdown(b, now)
		case resource.ScriptSceneSchedule:
			e.runSceneSchedule(b, now)
		default:
			log.Warn().Str("behavior", b.IDV2).Str("script", b.ScriptID).Msg("Unknown behavior script")
		}
	}
}

// atTimePoint matches a configured clock time at second zero, so each
// trigger fires exactly once per day.
func atTimePoint(tp resource.TimePoint, now time.Time) bool {
	return atOffset(tp, 0, now)
}

// atOffset matches the clock time shifted by offset seconds, wrapping over
// midnight.
func atOffset(tp resource.TimePoint, offset int, now time.Time) bool {
	want := ((tp.Hour*3600+tp.Minute*60+offset)%86400 + 86400) % 86400
	cur := now.Hour()*3600 + now.Minute()*60 + now.Second()
	return cur == want
}

// runWakeUp ramps the target groups from minimum to the configured end
// brightness. The ramp starts early so the lights reach full brightness at
// the configured time point; with a turn_lights_off_after the same offset
// anchors both the start and the delayed off routine.
func (e *Engine) runWakeUp(b *resource.BehaviorInstance, now time.Time) {
	when, ok := b.When()
	if !ok {
		return
	}
	if !resource.RecursOn(when.RecurrenceDays, now.Weekday()) {
		return
	}

	fade, ok := b.Fade("fade_in_duration")
	if !ok {
		fade = resource.FadeDuration{Seconds: 900}
	}
	offAfter, hasOffAfter := b.Fade("turn_lights_off_after")

	if b.Active() && hasOffAfter {
		if !atOffset(when.TimePoint, offAfter.Seconds, now) {
			return
		}
		log.Info().Str("behavior", b.IDV2).Msg("Wake-up end, lights off")
		for _, groupID := range e.behaviorGroups(b) {
			e.dispatchLogged(b, "/groups/"+groupID+"/action", map[string]any{"on": false})
		}
		b.SetActive(false)
		return
	}

	delta := fade.Seconds
	if hasOffAfter {
		delta = offAfter.Seconds
	}
	if !atOffset(when.TimePoint, -delta, now) {
		return
	}

	endBri := 254
	if v, ok := b.Config()["end_brightness"]; ok {
		if n, ok := asInt(v); ok {
			endBri = n
		}
	}

	log.Info().Str("behavior", b.IDV2).Int("end_bri", endBri).Msg("Wake-up started")
	for _, groupID := range e.behaviorGroups(b) {
		addr := "/groups/" + groupID + "/action"
		// Start warm and dim, then ramp.
		if err := e.dispatcher.Dispatch(addr, "PUT", map[string]any{"on": true, "bri": 1, "ct": 250}); err != nil {
			log.Warn().Err(err).Str("behavior", b.IDV2).Msg("Wake-up start failed")
			continue
		}
		// transitiontime is in 100ms units.
		e.dispatchLogged(b, addr, map[string]any{
			"bri":            endBri,
			"transitiontime": fade.Seconds * 10,
		})
	}
	b.SetActive(hasOffAfter)
}

// runGoToSleep fades the target groups down to minimum brightness, then
// switches them off once the fade has run when end_state asks for it.
func (e *Engine) runGoToSleep(b *resource.BehaviorInstance, now time.Time) {
	when, ok := b.When()
	if !ok {
		return
	}
	if !resource.RecursOn(when.RecurrenceDays, now.Weekday()) {
		return
	}

	fade, ok := b.Fade("fade_out_duration")
	if !ok {
		fade = resource.FadeDuration{Seconds: 1800}
	}

	if b.Active() {
		if !atOffset(when.TimePoint, fade.Seconds, now) {
			return
		}
		endState, _ := b.Config()["end_state"].(string)
		if endState == "" || endState == "turn_off" {
			log.Info().Str("behavior", b.IDV2).Msg("Go-to-sleep finished, lights off")
			for _, groupID := range e.behaviorGroups(b) {
				e.dispatchLogged(b, "/groups/"+groupID+"/action", map[string]any{"on": false})
			}
		}
		b.SetActive(false)
		return
	}

	if !atTimePoint(when.TimePoint, now) {
		return
	}

	log.Info().Str("behavior", b.IDV2).Msg("Go-to-sleep started")
	for _, groupID := range e.behaviorGroups(b) {
		addr := "/groups/" + groupID + "/action"
		// Shift to the warmest white, then fade down to minimum.
		e.dispatchLogged(b, addr, map[string]any{"ct": 500})
		e.dispatchLogged(b, addr, map[string]any{
			"bri":            1,
			"transitiontime": fade.Seconds * 10,
		})
	}
	b.SetActive(true)
}

// runCountdown plays the recall target when the timer is armed, then fires
// the end state once the duration has elapsed and disables the instance.
func (e *Engine) runCountdown(b *resource.BehaviorInstance, now time.Time) {
	secs, ok := b.Duration()
	if !ok {
		return
	}

	if !b.Active() {
		log.Info().Str("behavior", b.IDV2).Int("seconds", secs).Msg("Countdown started")
		e.countdownStart(b)
		b.SetActive(true)
		return
	}

	if now.Before(b.ArmedAt().Add(time.Duration(secs) * time.Second)) {
		return
	}

	body := map[string]any{"on": false}
	if end, ok := b.Config()["end_state"].(map[string]any); ok {
		body = end
	}

	log.Info().Str("behavior", b.IDV2).Msg("Countdown elapsed")
	for _, groupID := range e.countdownGroups(b) {
		e.dispatchLogged(b, "/groups/"+groupID+"/action", body)
	}
	b.SetEnabled(false, now)
}

// countdownStart recalls each "what" target into its group, with the Bright
// pseudo-scene mapping to a fixed preset. Without explicit targets the
// where groups get the preset.
func (e *Engine) countdownStart(b *resource.BehaviorInstance) {
	bright := map[string]any{"on": true, "bri": 254, "ct": 247}

	targets := b.What()
	if len(targets) == 0 {
		for _, groupID := range e.behaviorGroups(b) {
			e.dispatchLogged(b, "/groups/"+groupID+"/action", bright)
		}
		return
	}

	for _, t := range targets {
		groupID := e.resolveGroup(t.Group.RID)
		if groupID == "" {
			continue
		}
		body := bright
		if t.Recall != "" && t.Recall != resource.BrightSceneID {
			body = map[string]any{"scene": t.Recall}
		}
		e.dispatchLogged(b, "/groups/"+groupID+"/action", body)
	}
}

// countdownGroups resolves the groups the end state applies to: the "what"
// targets when present, the where refs otherwise.
func (e *Engine) countdownGroups(b *resource.BehaviorInstance) []string {
	targets := b.What()
	if len(targets) == 0 {
		return e.behaviorGroups(b)
	}
	var ids []string
	for _, t := range targets {
		if id := e.resolveGroup(t.Group.RID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// runSceneSchedule recalls a scene at the start time and turns the groups
// off at the optional end time.
func (e *Engine) runSceneSchedule(b *resource.BehaviorInstance, now time.Time) {
	we, ok := b.WhenExtended()
	if !ok {
		return
	}
	if !resource.RecursOn(we.RecurrenceDays, now.Weekday()) {
		return
	}

	if !b.Active() && atTimePoint(we.StartAt, now) {
		sceneID, _ := b.Config()["scene"].(string)
		if sceneID == "" {
			log.Warn().Str("behavior", b.IDV2).Msg("Scene schedule without scene")
			return
		}
		log.Info().Str("behavior", b.IDV2).Str("scene", sceneID).Msg("Scene schedule start")
		for _, groupID := range e.behaviorGroups(b) {
			e.dispatchLogged(b, "/groups/"+groupID+"/action", map[string]any{"scene": sceneID})
		}
		b.SetActive(we.HasEnd)
		return
	}

	if b.Active() && we.HasEnd && atTimePoint(*we.EndAt, now) {
		log.Info().Str("behavior", b.IDV2).Msg("Scene schedule end")
		for _, groupID := range e.behaviorGroups(b) {
			e.dispatchLogged(b, "/groups/"+groupID+"/action", map[string]any{"on": false})
		}
		b.SetActive(false)
	}
}

// resolveGroup maps a v2 or v1 rid to the group's v1 id.
func (e *Engine) resolveGroup(rid string) string {
	if g := e.reg.GroupByV2(rid); g != nil {
		return g.IDV1
	}
	if g := e.reg.GroupByID(rid); g != nil {
		return g.IDV1
	}
	return ""
}

// behaviorGroups resolves the instance's where refs to v1 group ids.
func (e *Engine) behaviorGroups(b *resource.BehaviorInstance) []string {
	var ids []string
	for _, ref := range b.Where() {
		if g := e.reg.GroupByV2(ref.RID); g != nil {
			ids = append(ids, g.IDV1)
			continue
		}
		// Fall back to treating the rid as a v1 id.
		if g := e.reg.GroupByID(ref.RID); g != nil {
			ids = append(ids, g.IDV1)
		}
	}
	return ids
}

func (e *Engine) dispatchLogged(b *resource.BehaviorInstance, address string, body map[string]any) {
	if err := e.dispatcher.Dispatch(address, "PUT", body); err != nil {
		log.Warn().Err(err).Str("behavior", b.IDV2).Str("address", address).Msg("Behavior action failed")
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
