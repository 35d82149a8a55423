package entertainment

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	directPort        = 55443
	directDialTimeout = 5 * time.Second
	// directFade keeps command fades short enough for streaming.
	directFade = 200
)

// DirectSession is a persistent TCP command channel to a light that takes
// newline-delimited JSON commands (Yeelight wire format). The session
// reconnects lazily after a write failure.
type DirectSession struct {
	ip string

	mu   sync.Mutex
	conn net.Conn
}

// NewDirectSession creates an unconnected session; the first command dials.
func NewDirectSession(ip string) *DirectSession {
	return &DirectSession{ip: ip}
}

func (s *DirectSession) connectLocked() error {
	if s.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", s.ip, directPort), directDialTimeout)
	if err != nil {
		return fmt.Errorf("direct session %s: %w", s.ip, err)
	}
	s.conn = conn
	log.Debug().Str("ip", s.ip).Msg("Direct light session connected")
	return nil
}

// command sends one JSON command. A failed write drops the connection so
// the next command redials.
func (s *DirectSession) command(method string, params []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connectLocked(); err != nil {
		return err
	}

	msg, err := json.Marshal(map[string]any{"id": 1, "method": method, "params": params})
	if err != nil {
		return err
	}
	msg = append(msg, '\r', '\n')

	if _, err := s.conn.Write(msg); err != nil {
		s.conn.Close()
		s.conn = nil
		return fmt.Errorf("direct session %s: %w", s.ip, err)
	}
	return nil
}

// SetBrightness sends a smooth brightness change, scaled to percent.
func (s *DirectSession) SetBrightness(bri int) error {
	return s.command("set_bright", []any{int(float64(bri) / 2.55), "smooth", directFade})
}

// SetRGB sends a smooth color change as a packed 24-bit value.
func (s *DirectSession) SetRGB(r, g, b int) error {
	return s.command("set_rgb", []any{r<<16 | g<<8 | b, "smooth", directFade})
}

// Close drops the connection.
func (s *DirectSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// sessionPool caches direct sessions by ip for the duration of a stream.
type sessionPool struct {
	mu       sync.Mutex
	sessions map[string]*DirectSession
}

func newSessionPool() *sessionPool {
	return &sessionPool{sessions: make(map[string]*DirectSession)}
}

func (p *sessionPool) get(ip string) *DirectSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[ip]; ok {
		return s
	}
	s := NewDirectSession(ip)
	p.sessions[ip] = s
	return s
}

func (p *sessionPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.Close()
	}
	p.sessions = make(map[string]*DirectSession)
}
