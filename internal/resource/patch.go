package resource

import (
	"fmt"

	"github.com/dokzlo13/bridged/internal/color"
)

// StatePatch is a partial light state update. Nil fields are left untouched.
// The *_inc fields are relative deltas resolved against current state before
// the merge.
type StatePatch struct {
	On             *bool     `json:"on,omitempty"`
	Bri            *int      `json:"bri,omitempty"`
	Hue            *int      `json:"hue,omitempty"`
	Sat            *int      `json:"sat,omitempty"`
	XY             *color.XY `json:"xy,omitempty"`
	CT             *int      `json:"ct,omitempty"`
	Alert          *string   `json:"alert,omitempty"`
	Effect         *string   `json:"effect,omitempty"`
	Mode           *string   `json:"mode,omitempty"`
	Reachable      *bool     `json:"reachable,omitempty"`
	TransitionTime *int      `json:"transitiontime,omitempty"`

	BriInc *int `json:"bri_inc,omitempty"`
	CTInc  *int `json:"ct_inc,omitempty"`
	HueInc *int `json:"hue_inc,omitempty"`
	SatInc *int `json:"sat_inc,omitempty"`
}

// Empty reports whether the patch writes nothing.
func (p StatePatch) Empty() bool {
	return p.On == nil && p.Bri == nil && p.Hue == nil && p.Sat == nil &&
		p.XY == nil && p.CT == nil && p.Alert == nil && p.Effect == nil &&
		p.Mode == nil && p.Reachable == nil &&
		p.BriInc == nil && p.CTInc == nil && p.HueInc == nil && p.SatInc == nil
}

// resolveIncrements folds the relative *_inc fields into absolute values
// against the given state. At most one increment is honored per patch, in
// bri, ct, hue, sat order, matching the v1 API contract.
func (p StatePatch) resolveIncrements(cur LightState) StatePatch {
	switch {
	case p.BriInc != nil:
		v := clampInt(cur.Bri+*p.BriInc, 1, 254)
		p.Bri = &v
		p.BriInc = nil
	case p.CTInc != nil:
		v := clampInt(cur.CT+*p.CTInc, 153, 500)
		p.CT = &v
		p.CTInc = nil
	case p.HueInc != nil:
		v := ((cur.Hue+*p.HueInc)%65536 + 65536) % 65536
		p.Hue = &v
		p.HueInc = nil
	case p.SatInc != nil:
		v := clampInt(cur.Sat+*p.SatInc, 1, 254)
		p.Sat = &v
		p.SatInc = nil
	}
	return p
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DecodePatch converts an untyped action body into a StatePatch. Unknown
// fields are rejected without partial application.
func DecodePatch(body map[string]any) (StatePatch, error) {
	var p StatePatch
	for key, raw := range body {
		switch key {
		case "on":
			v, ok := raw.(bool)
			if !ok {
				return StatePatch{}, fmt.Errorf("field %q: expected bool, got %T", key, raw)
			}
			p.On = &v
		case "bri", "hue", "sat", "ct", "transitiontime", "bri_inc", "ct_inc", "hue_inc", "sat_inc":
			v, ok := toInt(raw)
			if !ok {
				return StatePatch{}, fmt.Errorf("field %q: expected number, got %T", key, raw)
			}
			switch key {
			case "bri":
				p.Bri = &v
			case "hue":
				p.Hue = &v
			case "sat":
				p.Sat = &v
			case "ct":
				p.CT = &v
			case "transitiontime":
				p.TransitionTime = &v
			case "bri_inc":
				p.BriInc = &v
			case "ct_inc":
				p.CTInc = &v
			case "hue_inc":
				p.HueInc = &v
			case "sat_inc":
				p.SatInc = &v
			}
		case "xy":
			xy, err := toXY(raw)
			if err != nil {
				return StatePatch{}, fmt.Errorf("field %q: %w", key, err)
			}
			p.XY = &xy
		case "alert":
			v, ok := raw.(string)
			if !ok {
				return StatePatch{}, fmt.Errorf("field %q: expected string, got %T", key, raw)
			}
			// "lselect" is a v1 alias kept for old clients.
			if v == "lselect" {
				v = "select"
			}
			p.Alert = &v
		case "effect":
			v, ok := raw.(string)
			if !ok {
				return StatePatch{}, fmt.Errorf("field %q: expected string, got %T", key, raw)
			}
			p.Effect = &v
		default:
			return StatePatch{}, fmt.Errorf("unknown state field %q", key)
		}
	}
	return p, nil
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func toXY(raw any) (color.XY, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) != 2 {
		return color.XY{}, fmt.Errorf("expected [x, y] pair, got %T", raw)
	}
	x, okX := toFloat(arr[0])
	y, okY := toFloat(arr[1])
	if !okX || !okY {
		return color.XY{}, fmt.Errorf("expected numeric coordinates")
	}
	return color.XY{X: x, Y: y}, nil
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
