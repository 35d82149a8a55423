package resource

import (
	"math"

	"github.com/dokzlo13/bridged/internal/color"
)

// briScale is the exact factor between v1 brightness (1..254) and v2
// brightness percent (0..100).
const briScale = 2.54

// V2On mirrors the v2 "on" feature.
type V2On struct {
	On bool `json:"on"`
}

// V2Dimming mirrors the v2 "dimming" feature (brightness percent).
type V2Dimming struct {
	Brightness float64 `json:"brightness"`
}

// V2ColorTemperature mirrors the v2 "color_temperature" feature.
type V2ColorTemperature struct {
	Mirek int `json:"mirek"`
}

// V2Color mirrors the v2 "color" feature.
type V2Color struct {
	XY color.XY `json:"xy"`
}

// V2LightState is the modern nested shape of a partial light state.
type V2LightState struct {
	On               *V2On               `json:"on,omitempty"`
	Dimming          *V2Dimming          `json:"dimming,omitempty"`
	ColorTemperature *V2ColorTemperature `json:"color_temperature,omitempty"`
	Color            *V2Color            `json:"color,omitempty"`
}

// V1StateToV2 translates a legacy partial state into the modern shape.
// Mirek and xy pass through unchanged; brightness divides by 2.54, rounded
// to two decimals.
func V1StateToV2(p StatePatch) V2LightState {
	var v2 V2LightState
	if p.On != nil {
		v2.On = &V2On{On: *p.On}
	}
	if p.Bri != nil {
		v2.Dimming = &V2Dimming{Brightness: math.Round(float64(*p.Bri)/briScale*100) / 100}
	}
	if p.CT != nil {
		v2.ColorTemperature = &V2ColorTemperature{Mirek: *p.CT}
	}
	if p.XY != nil {
		v2.Color = &V2Color{XY: *p.XY}
	}
	return v2
}

// V2StateToV1 translates a modern partial state back into the legacy shape.
// Brightness multiplies by 2.54, truncated as the v1 API does.
func V2StateToV1(v2 V2LightState) StatePatch {
	var p StatePatch
	if v2.On != nil {
		on := v2.On.On
		p.On = &on
	}
	if v2.Dimming != nil {
		bri := int(v2.Dimming.Brightness * briScale)
		p.Bri = &bri
	}
	if v2.ColorTemperature != nil {
		ct := v2.ColorTemperature.Mirek
		p.CT = &ct
	}
	if v2.Color != nil {
		xy := v2.Color.XY
		p.XY = &xy
	}
	return p
}

// V2StateData renders a patch as the loosely-typed payload carried by change
// events.
func V2StateData(p StatePatch) map[string]any {
	v2 := V1StateToV2(p)
	data := make(map[string]any)
	if v2.On != nil {
		data["on"] = map[string]any{"on": v2.On.On}
	}
	if v2.Dimming != nil {
		data["dimming"] = map[string]any{"brightness": v2.Dimming.Brightness}
	}
	if v2.ColorTemperature != nil {
		data["color_temperature"] = map[string]any{"mirek": v2.ColorTemperature.Mirek}
	}
	if v2.Color != nil {
		data["color"] = map[string]any{"xy": map[string]any{"x": v2.Color.XY.X, "y": v2.Color.XY.Y}}
	}
	if p.Reachable != nil {
		status := "connected"
		if !*p.Reachable {
			status = "connectivity_issue"
		}
		data["status"] = status
	}
	if p.Mode != nil {
		data["mode"] = *p.Mode
	}
	return data
}
