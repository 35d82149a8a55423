// Package entertainment implements the streaming fast path: decoding
// client frames from the encrypted channel and fanning light updates out to
// the transports that can keep up with frame rate. The DTLS endpoint itself
// is outside this package; Serve consumes the decrypted byte stream.
package entertainment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/bridged/internal/color"
	"github.com/dokzlo13/bridged/internal/driver"
	"github.com/dokzlo13/bridged/internal/mqtt"
	"github.com/dokzlo13/bridged/internal/resource"
)

// gradientModels are the light models addressed per-segment by gradient
// records in v1 frames.
var gradientModels = map[string]bool{
	"LCX001": true, "LCX002": true, "LCX003": true, "915005987201": true, "LCX004": true,
}

// Config carries the engine's external endpoints.
type Config struct {
	// Downstream bridge for lights proxied over a second Hue bridge.
	DownstreamIP   string
	DownstreamUser string

	// DownstreamDial opens the encrypted frame channel to the downstream
	// bridge after streaming is armed on it. The caller owns the handshake;
	// nil disables the relay.
	DownstreamDial func(ctx context.Context, ip string) (io.WriteCloser, error)

	// NonUDPRate caps state pushes to lights without a frame-rate capable
	// transport, in updates per second.
	NonUDPRate float64
}

// Engine runs entertainment streaming sessions.
type Engine struct {
	reg      *resource.Registry
	resolver *driver.Resolver
	mqtt     *mqtt.Client
	cfg      Config
}

// NewEngine creates the streaming engine. mqttClient may be nil when no
// broker is configured.
func NewEngine(reg *resource.Registry, resolver *driver.Resolver, mqttClient *mqtt.Client, cfg Config) *Engine {
	if cfg.NonUDPRate <= 0 {
		cfg.NonUDPRate = 25
	}
	return &Engine{
		reg:      reg,
		resolver: resolver,
		mqtt:     mqttClient,
		cfg:      cfg,
	}
}

// session is the state of one running stream.
type session struct {
	engine *Engine
	group  *resource.Group

	lightsV1 map[int]*resource.Light
	channels map[int]*resource.Light
	gradient *resource.Light

	filter        *frameFilter
	udp           *udpSender
	sessions      *sessionPool
	link          *BridgeLink
	linkTransport io.WriteCloser
	limiter       *rate.Limiter

	// nonUDP lights get one update per frame, round-robin.
	nonUDP     []*resource.Light
	nonUDPNext int
}

// Serve runs a streaming session until the context is cancelled, the
// group's stream flag is cleared, or the source ends. src must deliver the
// decrypted frame bytes. On return all member lights are back in
// home-automation mode.
func (e *Engine) Serve(ctx context.Context, group *resource.Group, owner string, src io.Reader) error {
	now := time.Now()
	group.StartStream(owner)

	s := &session{
		engine:   e,
		group:    group,
		lightsV1: make(map[int]*resource.Light),
		channels: make(map[int]*resource.Light),
		filter:   newFrameFilter(),
		sessions: newSessionPool(),
		limiter:  rate.NewLimiter(rate.Limit(e.cfg.NonUDPRate), int(e.cfg.NonUDPRate)),
	}
	defer s.teardown()

	udp, err := newUDPSender()
	if err != nil {
		return err
	}
	s.udp = udp

	// Streaming owns the lights: force them on, into streaming mode, with
	// xy as the color mode.
	for _, id := range group.LightIDs {
		light := e.reg.LightByID(id)
		if light == nil {
			continue
		}
		n, err := strconv.Atoi(light.IDV1)
		if err != nil {
			continue
		}
		s.lightsV1[n] = light
		if gradientModels[light.ModelID] && s.gradient == nil {
			s.gradient = light
		}

		on := true
		mode := resource.ModeStreaming
		xy := light.State().XY
		light.ApplyStreamState(resource.StatePatch{On: &on, Mode: &mode, XY: &xy}, now)

		if light.Protocol == "hue" && s.link == nil && e.cfg.DownstreamIP != "" {
			s.link = NewBridgeLink(e.cfg.DownstreamIP, e.cfg.DownstreamUser, light.ProtocolCfg.HueID)
		}
	}
	for _, ch := range group.Channels {
		if light := e.reg.LightByID(ch.LightID); light != nil {
			s.channels[ch.ID] = light
		}
	}

	if s.link != nil {
		if err := s.link.Arm(ctx); err != nil {
			log.Warn().Err(err).Msg("Downstream bridge arming failed, dropping relay")
			s.link = nil
		} else if e.cfg.DownstreamDial != nil {
			w, err := e.cfg.DownstreamDial(ctx, e.cfg.DownstreamIP)
			if err != nil {
				log.Warn().Err(err).Msg("Downstream frame channel failed, dropping relay")
				s.link = nil
			} else {
				s.link.SetTransport(w)
				s.linkTransport = w
			}
		}
	}

	log.Info().
		Str("group", group.IDV1).
		Str("owner", owner).
		Int("lights", len(s.lightsV1)).
		Msg("Entertainment stream started")

	frameLen, err := Negotiate(src)
	if err != nil {
		return err
	}
	log.Debug().Int("frame_len", frameLen).Msg("Stream frame length negotiated")

	buf := make([]byte, frameLen)
	lastFPSLog := time.Now()
	frames := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !group.StreamActive() {
			return nil
		}

		if _, err := io.ReadFull(src, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("entertainment: read frame: %w", err)
		}

		frame, err := Decode(buf)
		if err != nil {
			// A damaged frame means we lost sync; bail out rather than
			// feeding garbage to the lights.
			return err
		}
		s.apply(frame, time.Now())

		frames++
		if since := time.Since(lastFPSLog); since > time.Second {
			log.Info().Float64("fps", float64(frames)/since.Seconds()).Msg("Entertainment frame rate")
			lastFPSLog = time.Now()
			frames = 0
		}
	}
}

// apply pushes one decoded frame into the model and out to the transports.
func (s *session) apply(frame Frame, now time.Time) {
	out := newFrameFanout()
	var nonUDPDirty []*resource.Light

	for _, rec := range frame.Records {
		light := s.resolve(frame.APIVersion, rec)
		if light == nil {
			continue
		}

		var r, g, b, bri int
		var xy color.XY
		if rec.HasXY {
			xy = color.XY{X: rec.X, Y: rec.Y}
			bri = rec.Bri
			r, g, b = color.XYToRGB(rec.X, rec.Y, bri)
		} else {
			r, g, b = rec.R, rec.G, rec.B
			xy = color.RGBToXY(float64(r), float64(g), float64(b))
			bri = (r + g + b) / 3
		}

		s.updateModel(light, r, g, b, bri, xy, now)
		if !s.route(out, light, r, g, b, bri, xy) {
			nonUDPDirty = appendUnique(nonUDPDirty, light)
		}
	}

	out.sendNative(s.udp)
	out.sendWLED(s.udp)
	if len(out.mqtt) > 0 && s.engine.mqtt != nil {
		s.engine.mqtt.PublishBatch(out.mqtt)
	}
	if len(out.hue) > 0 && s.link != nil {
		if err := s.link.Send(out.hue); err != nil {
			log.Debug().Err(err).Msg("Downstream frame relay failed")
		}
	}
	s.updateNonUDP(nonUDPDirty)
}

// route fills the fanout for one light and reports whether the light's
// transport can take per-frame updates. Lights that cannot are served
// round-robin through their regular driver.
func (s *session) route(out *frameFanout, light *resource.Light, r, g, b, bri int, xy color.XY) bool {
	cfg := light.ProtocolCfg
	rgb := [3]int{r, g, b}

	switch light.Protocol {
	case "native", "native_multi", "native_single":
		out.addNative(cfg.IP, cfg.LightNr-1, rgb)
	case "wled":
		out.addWLED(cfg.IP, cfg.SegmentID, wledSegment{
			ledCount: cfg.LEDCount,
			start:    cfg.SegmentStart,
			udpPort:  cfg.UDPPort,
			rgb:      rgb,
		})
	case "mqtt":
		switch s.filter.check(light.IDV1, xy.X, xy.Y, bri) {
		case sendColor:
			out.mqtt[cfg.CommandTopic] = map[string]any{
				"color":      map[string]float64{"x": xy.X, "y": xy.Y},
				"transition": 0.15,
			}
		case sendBrightness:
			out.mqtt[cfg.CommandTopic] = map[string]any{
				"brightness": bri,
				"transition": 0.2,
			}
		}
	case "tcp_direct":
		sess := s.sessions.get(cfg.IP)
		switch s.filter.check(light.IDV1, xy.X, xy.Y, bri) {
		case sendColor:
			if err := sess.SetRGB(r, g, b); err != nil {
				log.Debug().Err(err).Str("light", light.IDV1).Msg("Direct session command failed")
			}
		case sendBrightness:
			if err := sess.SetBrightness(bri); err != nil {
				log.Debug().Err(err).Str("light", light.IDV1).Msg("Direct session command failed")
			}
		}
	case "hue":
		if s.link != nil && s.link.transport != nil {
			out.hue[cfg.HueID] = rgb
			break
		}
		return false
	default:
		return false
	}
	return true
}

// updateNonUDP serves one slow-transport light per frame, skipping frames
// that moved less than the tolerances and respecting the rate cap.
func (s *session) updateNonUDP(dirty []*resource.Light) {
	for _, light := range dirty {
		s.nonUDP = appendUnique(s.nonUDP, light)
	}
	if len(s.nonUDP) == 0 {
		return
	}

	light := s.nonUDP[s.nonUDPNext%len(s.nonUDP)]
	s.nonUDPNext = (s.nonUDPNext + 1) % len(s.nonUDP)

	state := light.State()
	op := s.filter.check(light.IDV1, state.XY.X, state.XY.Y, state.Bri)
	if op == sendNothing || !s.limiter.Allow() {
		return
	}

	transition := 3
	patch := resource.StatePatch{TransitionTime: &transition}
	if op == sendBrightness {
		bri := state.Bri
		patch.Bri = &bri
	} else {
		xy := state.XY
		patch.XY = &xy
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.engine.resolver.Apply(ctx, light, patch); err != nil {
		log.Debug().Err(err).Str("light", light.IDV1).Msg("Slow-path frame apply failed")
	}
}

// teardown returns the group and its lights to home-automation mode.
func (s *session) teardown() {
	now := time.Now()
	mode := resource.ModeNormal
	for _, light := range s.lightsV1 {
		light.ApplyStreamState(resource.StatePatch{Mode: &mode}, now)
	}

	s.group.StopStream()
	s.sessions.closeAll()
	if s.udp != nil {
		s.udp.close()
	}
	if s.linkTransport != nil {
		s.linkTransport.Close()
	}
	if s.link != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.link.Disarm(ctx); err != nil {
			log.Debug().Err(err).Msg("Downstream bridge disarm failed")
		}
	}
	log.Info().Str("group", s.group.IDV1).Msg("Entertainment stream stopped")
}

func appendUnique(lights []*resource.Light, light *resource.Light) []*resource.Light {
	for _, l := range lights {
		if l == light {
			return lights
		}
	}
	return append(lights, light)
}

// updateModel mirrors the frame into the light's state without emitting bus
// events: at frame rate the event stream would drown everything else.
func (s *session) updateModel(light *resource.Light, r, g, b, bri int, xy color.XY, now time.Time) {
	if r == 0 && g == 0 && b == 0 {
		off := false
		light.ApplyStreamState(resource.StatePatch{On: &off}, now)
		return
	}
	on := true
	light.ApplyStreamState(resource.StatePatch{On: &on, Bri: &bri, XY: &xy}, now)
}

// resolve maps a record to its target light.
func (s *session) resolve(apiVersion byte, rec Record) *resource.Light {
	if apiVersion == 1 {
		if rec.Type == 1 {
			return s.gradient
		}
		return s.lightsV1[rec.ID]
	}
	return s.channels[rec.ID]
}
