package entertainment

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	// nativePort is the fixed UDP port native lights listen on.
	nativePort = 2100

	// DNRGB protocol header for WLED segments.
	wledUDPMode    = 4
	wledSecsToWait = 2
)

// wledSegment is one WLED segment's frame data.
type wledSegment struct {
	ledCount int
	start    int
	udpPort  int
	rgb      [3]int
}

// frameFanout collects one frame's worth of per-protocol updates so each
// transport gets at most one packet per target per frame.
type frameFanout struct {
	// native maps ip to lightNr-1 to RGB.
	native map[string]map[int][3]int
	// wled maps ip to segment id to segment data.
	wled map[string]map[int]wledSegment
	// mqtt maps command topic to payload.
	mqtt map[string]any
	// hue maps downstream v1 light id to RGB.
	hue map[int][3]int
}

func newFrameFanout() *frameFanout {
	return &frameFanout{
		native: make(map[string]map[int][3]int),
		wled:   make(map[string]map[int]wledSegment),
		mqtt:   make(map[string]any),
		hue:    make(map[int][3]int),
	}
}

func (f *frameFanout) addNative(ip string, slot int, rgb [3]int) {
	if _, ok := f.native[ip]; !ok {
		f.native[ip] = make(map[int][3]int)
	}
	f.native[ip][slot] = rgb
}

func (f *frameFanout) addWLED(ip string, segmentID int, seg wledSegment) {
	if _, ok := f.wled[ip]; !ok {
		f.wled[ip] = make(map[int]wledSegment)
	}
	f.wled[ip][segmentID] = seg
}

// udpSender shares one local socket for all outgoing frame packets.
type udpSender struct {
	mu   sync.Mutex
	conn net.PacketConn
}

func newUDPSender() (*udpSender, error) {
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("entertainment: udp socket: %w", err)
	}
	return &udpSender{conn: conn}, nil
}

// send fires one packet, dropping it on resolve or write errors: a lost
// frame is cheaper than a stalled stream.
func (u *udpSender) send(ip string, port int, payload []byte) {
	host := ip
	if idx := strings.Index(ip, ":"); idx >= 0 {
		host = ip[:idx]
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("Frame packet address unresolvable")
		return
	}
	u.mu.Lock()
	_, err = u.conn.WriteTo(payload, addr)
	u.mu.Unlock()
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("Frame packet dropped")
	}
}

func (u *udpSender) close() {
	u.conn.Close()
}

// sendNative emits one packet per native host: [slot, r, g, b] per light.
func (f *frameFanout) sendNative(u *udpSender) {
	for ip, slots := range f.native {
		payload := make([]byte, 0, len(slots)*4)
		for slot, rgb := range slots {
			payload = append(payload, byte(slot), byte(rgb[0]), byte(rgb[1]), byte(rgb[2]))
		}
		u.send(ip, nativePort, payload)
	}
}

// sendWLED emits one DNRGB packet per segment: header, 16-bit start index,
// then the color repeated across the segment's LEDs.
func (f *frameFanout) sendWLED(u *udpSender) {
	for ip, segments := range f.wled {
		for _, seg := range segments {
			payload := make([]byte, 0, 4+seg.ledCount*3)
			payload = append(payload,
				wledUDPMode, wledSecsToWait,
				byte(seg.start>>8), byte(seg.start),
			)
			for i := 0; i < seg.ledCount; i++ {
				payload = append(payload, byte(seg.rgb[0]), byte(seg.rgb[1]), byte(seg.rgb[2]))
			}
			u.send(ip, seg.udpPort, payload)
		}
	}
}
