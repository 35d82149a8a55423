// Package dispatch executes API-call descriptors against the bridge's own
// state model. Rule actions, schedule commands and behavior scripts all
// funnel through here, so a rule firing is indistinguishable from a client
// request.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/driver"
	"github.com/dokzlo13/bridged/internal/resource"
)

// Dispatcher executes one API call descriptor.
type Dispatcher interface {
	Dispatch(address, method string, body map[string]any) error
}

// Local dispatches against the in-process registry and pushes resulting
// light changes out through the driver resolver.
type Local struct {
	reg      *resource.Registry
	resolver *driver.Resolver

	// applyTimeout bounds each driver push.
	applyTimeout time.Duration
}

// NewLocal creates a dispatcher over the registry. resolver may be nil when
// no hardware is attached.
func NewLocal(reg *resource.Registry, resolver *driver.Resolver) *Local {
	return &Local{
		reg:          reg,
		resolver:     resolver,
		applyTimeout: 5 * time.Second,
	}
}

// Dispatch routes an address like "/lights/1/state" or
// "/api/<user>/groups/0/action" to the matching operation. Only PUT is
// meaningful for the command surface.
func (d *Local) Dispatch(address, method string, body map[string]any) error {
	parts := splitAddress(address)
	if len(parts) < 2 {
		return fmt.Errorf("dispatch: unroutable address %q", address)
	}

	if method != "PUT" && method != "POST" {
		return fmt.Errorf("dispatch: method %s not supported for %q", method, address)
	}

	now := time.Now()
	resourceType, id := parts[0], parts[1]
	tail := parts[2:]

	switch resourceType {
	case resource.TypeLight:
		return d.lightCall(id, tail, body, now)
	case resource.TypeGroup:
		return d.groupCall(id, tail, body, now)
	case resource.TypeSensor:
		return d.sensorCall(id, tail, body, now)
	case resource.TypeSchedule:
		return d.scheduleCall(id, body, now)
	case resource.TypeRule:
		return d.ruleCall(id, body)
	case resource.TypeScene:
		return d.sceneCall(id, body, now)
	default:
		return fmt.Errorf("dispatch: unknown resource type %q in %q", resourceType, address)
	}
}

// splitAddress strips an optional /api/<user> prefix and splits the rest.
func splitAddress(address string) []string {
	parts := strings.Split(strings.Trim(address, "/"), "/")
	if len(parts) >= 2 && parts[0] == "api" {
		parts = parts[2:]
	}
	return parts
}

func (d *Local) lightCall(id string, tail []string, body map[string]any, now time.Time) error {
	light := d.reg.LightByID(id)
	if light == nil {
		return fmt.Errorf("dispatch: light %s not found", id)
	}
	if len(tail) == 0 || tail[0] != "state" {
		return fmt.Errorf("dispatch: unsupported light path %v", tail)
	}

	patch, err := resource.DecodePatch(body)
	if err != nil {
		return err
	}
	light.SetState(patch, now)
	d.pushToDevice(light, patch)
	return nil
}

func (d *Local) groupCall(id string, tail []string, body map[string]any, now time.Time) error {
	group := d.reg.GroupByID(id)
	if group == nil {
		return fmt.Errorf("dispatch: group %s not found", id)
	}
	if len(tail) == 0 || tail[0] != "action" {
		return fmt.Errorf("dispatch: unsupported group path %v", tail)
	}

	// Scene recall replaces the rest of the body.
	if sceneID, ok := body["scene"].(string); ok {
		scene := d.reg.SceneByID(sceneID)
		if scene == nil {
			scene = d.reg.SceneByV2(sceneID)
		}
		if scene == nil {
			return fmt.Errorf("dispatch: scene %s not found", sceneID)
		}
		var transition *int
		if tt, ok := toInt(body["transitiontime"]); ok {
			transition = &tt
		}
		scene.Activate(transition, now)
		for lightID, patch := range scene.LightStates {
			if light := d.reg.LightByID(lightID); light != nil {
				d.pushToDevice(light, patch)
			}
		}
		log.Info().Str("group", id).Str("scene", sceneID).Msg("Scene recalled")
		return nil
	}

	patch, err := resource.DecodePatch(body)
	if err != nil {
		return err
	}
	group.SetAction(patch, now)
	for _, lightID := range group.LightIDs {
		if light := d.reg.LightByID(lightID); light != nil {
			d.pushToDevice(light, patch)
		}
	}
	return nil
}

func (d *Local) sensorCall(id string, tail []string, body map[string]any, now time.Time) error {
	sensor := d.reg.SensorByID(id)
	if sensor == nil {
		return fmt.Errorf("dispatch: sensor %s not found", id)
	}
	if len(tail) > 0 && tail[0] == "config" {
		sensor.SetConfig(body)
		return nil
	}
	sensor.SetState(body, now)
	return nil
}

func (d *Local) scheduleCall(id string, body map[string]any, now time.Time) error {
	sched := d.reg.ScheduleByID(id)
	if sched == nil {
		return fmt.Errorf("dispatch: schedule %s not found", id)
	}
	if status, ok := body["status"].(string); ok {
		sched.SetStatus(status, now)
	}
	if localtime, ok := body["localtime"].(string); ok {
		sched.SetLocaltime(localtime, now)
	}
	if autodelete, ok := body["autodelete"].(bool); ok {
		sched.SetAutodelete(autodelete)
	}
	return nil
}

func (d *Local) ruleCall(id string, body map[string]any) error {
	rule := d.reg.RuleByID(id)
	if rule == nil {
		return fmt.Errorf("dispatch: rule %s not found", id)
	}
	if status, ok := body["status"].(string); ok {
		rule.SetStatus(status)
	}
	return nil
}

func (d *Local) sceneCall(id string, body map[string]any, now time.Time) error {
	scene := d.reg.SceneByID(id)
	if scene == nil {
		return fmt.Errorf("dispatch: scene %s not found", id)
	}
	if _, ok := body["storelightstate"]; ok {
		lightIDs := make([]string, 0, len(scene.LightStates))
		for lightID := range scene.LightStates {
			lightIDs = append(lightIDs, lightID)
		}
		scene.Capture(lightIDs, now)
	}
	return nil
}

// pushToDevice applies the patch on the physical light. A failed apply marks
// the light unreachable; the model keeps the desired state.
func (d *Local) pushToDevice(light *resource.Light, patch resource.StatePatch) {
	if d.resolver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.applyTimeout)
	defer cancel()

	if err := d.resolver.Apply(ctx, light, patch); err != nil {
		log.Warn().Err(err).Str("light", light.IDV1).Msg("Device apply failed, marking unreachable")
		light.SetReachable(false, time.Now())
		return
	}
	if !light.State().Reachable {
		light.SetReachable(true, time.Now())
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
