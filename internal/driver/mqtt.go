package driver

import (
	"context"

	"github.com/dokzlo13/bridged/internal/mqtt"
	"github.com/dokzlo13/bridged/internal/resource"
)

// MQTTDriver controls lights behind a zigbee2mqtt-style broker topic. The
// light's protocol config carries the command topic.
type MQTTDriver struct {
	client *mqtt.Client
}

// NewMQTTDriver wraps a connected broker client.
func NewMQTTDriver(client *mqtt.Client) *MQTTDriver {
	return &MQTTDriver{client: client}
}

// Apply translates the patch into a zigbee2mqtt set payload.
func (d *MQTTDriver) Apply(ctx context.Context, light *resource.Light, patch resource.StatePatch) error {
	topic := light.ProtocolCfg.CommandTopic
	if topic == "" {
		return nil
	}

	payload := make(map[string]any)
	if patch.On != nil {
		if *patch.On {
			payload["state"] = "ON"
		} else {
			payload["state"] = "OFF"
		}
	}
	if patch.Bri != nil {
		payload["brightness"] = *patch.Bri
	}
	if patch.CT != nil {
		payload["color_temp"] = *patch.CT
	}
	if patch.XY != nil {
		payload["color"] = map[string]float64{"x": patch.XY.X, "y": patch.XY.Y}
	}
	if patch.TransitionTime != nil {
		// v1 transitiontime is in 100ms units, zigbee2mqtt wants seconds.
		payload["transition"] = float64(*patch.TransitionTime) / 10.0
	}
	if len(payload) == 0 {
		return nil
	}

	return d.client.PublishJSON(topic, payload)
}

// Poll reports the broker connection as the reachability proxy.
func (d *MQTTDriver) Poll(ctx context.Context, light *resource.Light) (bool, error) {
	return d.client.IsConnected(), nil
}
