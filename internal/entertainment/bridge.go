package entertainment

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
)

// BridgeLink relays streaming frames for lights that live on a downstream
// Hue bridge. The link arms streaming on the remote entertainment group
// through the huego client and writes v1 frames to the transport. The
// encrypted transport itself is injected: the caller owns the DTLS
// handshake.
type BridgeLink struct {
	ip      string
	groupID int

	bridge    *huego.Bridge
	transport io.Writer
}

// NewBridgeLink creates a link to the remote group. transport may be nil
// until Arm succeeds.
func NewBridgeLink(ip, user string, groupID int) *BridgeLink {
	return &BridgeLink{
		ip:      ip,
		groupID: groupID,
		bridge:  huego.New(ip, user),
	}
}

// SetTransport installs the frame writer once the encrypted channel is up.
func (l *BridgeLink) SetTransport(w io.Writer) {
	l.transport = w
}

// Arm switches the remote group into streaming mode.
func (l *BridgeLink) Arm(ctx context.Context) error {
	group, err := l.bridge.GetGroupContext(ctx, l.groupID)
	if err != nil {
		return fmt.Errorf("bridge link: %w", err)
	}
	if err := group.EnableStreamingContext(ctx); err != nil {
		return fmt.Errorf("bridge link: %w", err)
	}
	log.Debug().Str("bridge", l.ip).Int("group", l.groupID).Msg("Downstream streaming enabled")
	return nil
}

// Disarm switches the remote group back to normal mode.
func (l *BridgeLink) Disarm(ctx context.Context) error {
	group, err := l.bridge.GetGroupContext(ctx, l.groupID)
	if err != nil {
		return fmt.Errorf("bridge link: %w", err)
	}
	if err := group.DisableStreamingContext(ctx); err != nil {
		return fmt.Errorf("bridge link: %w", err)
	}
	log.Debug().Str("bridge", l.ip).Int("group", l.groupID).Msg("Downstream streaming disabled")
	return nil
}

// Send encodes one v1 RGB frame for the given lights (remote v1 id to RGB)
// and writes it to the transport. Each 8-bit component is doubled into the
// 16-bit wire slot.
func (l *BridgeLink) Send(lights map[int][3]int) error {
	if l.transport == nil {
		return fmt.Errorf("bridge link: no transport")
	}

	frame := EncodeV1Frame(lights)
	if _, err := l.transport.Write(frame); err != nil {
		return fmt.Errorf("bridge link: %w", err)
	}
	return nil
}

// EncodeV1Frame builds a version 1 RGB-colorspace frame. Lights are encoded
// in id order so frames are deterministic.
func EncodeV1Frame(lights map[int][3]int) []byte {
	ids := make([]int, 0, len(lights))
	for id := range lights {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	frame := make([]byte, 0, v1HeaderLen+len(lights)*v1RecordLen)
	frame = append(frame, marker...)
	frame = append(frame,
		1, 0, // api version
		0,    // sequence, unused
		0, 0, // reserved
		ColorspaceRGB,
		0, // reserved
	)
	for _, id := range ids {
		rgb := lights[id]
		r, g, b := byte(rgb[0]), byte(rgb[1]), byte(rgb[2])
		frame = append(frame,
			0,             // type: light
			0, byte(id),   // 16-bit v1 light id
			r, r, g, g, b, b,
		)
	}
	return frame
}
