package driver

import (
	"context"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/resource"
)

// HueDriver controls lights proxied from a downstream Hue bridge. The
// light's protocol config carries the numeric id on that bridge.
type HueDriver struct {
	bridge *huego.Bridge
}

// NewHueDriver wraps a downstream bridge connection.
func NewHueDriver(host, user string) *HueDriver {
	return &HueDriver{bridge: huego.New(host, user)}
}

// Apply translates the patch and pushes it to the downstream light.
func (d *HueDriver) Apply(ctx context.Context, light *resource.Light, patch resource.StatePatch) error {
	hl, err := d.bridge.GetLight(light.ProtocolCfg.HueID)
	if err != nil {
		return err
	}

	state := huego.State{}
	hasChanges := false

	if patch.On != nil {
		state.On = *patch.On
		hasChanges = true
	}
	if patch.Bri != nil {
		state.Bri = uint8(*patch.Bri)
		hasChanges = true
	}
	if patch.Hue != nil {
		state.Hue = uint16(*patch.Hue)
		hasChanges = true
	}
	if patch.Sat != nil {
		state.Sat = uint8(*patch.Sat)
		hasChanges = true
	}
	if patch.XY != nil {
		state.Xy = []float32{float32(patch.XY.X), float32(patch.XY.Y)}
		hasChanges = true
	}
	if patch.CT != nil {
		state.Ct = uint16(*patch.CT)
		hasChanges = true
	}
	if patch.TransitionTime != nil {
		state.TransitionTime = uint16(*patch.TransitionTime)
	}

	if !hasChanges {
		return nil
	}

	log.Debug().
		Str("light", light.IDV1).
		Int("hue_id", light.ProtocolCfg.HueID).
		Msg("Applying state to downstream light")
	return hl.SetState(state)
}

// Poll reads reachability from the downstream bridge.
func (d *HueDriver) Poll(ctx context.Context, light *resource.Light) (bool, error) {
	hl, err := d.bridge.GetLight(light.ProtocolCfg.HueID)
	if err != nil {
		return false, err
	}
	return hl.State.Reachable, nil
}
