// Package driver pushes model state changes out to physical lights. The
// emulator core treats drivers as fire-and-forget appliers keyed by the
// light's protocol name.
package driver

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/resource"
)

// LightDriver applies desired state to one protocol family.
type LightDriver interface {
	// Apply pushes a state patch to the physical device.
	Apply(ctx context.Context, light *resource.Light, patch resource.StatePatch) error
	// Poll reads back reachability from the device.
	Poll(ctx context.Context, light *resource.Light) (reachable bool, err error)
}

// Resolver routes lights to drivers by protocol name. Unknown protocols get
// the loopback driver so the model stays usable without hardware.
type Resolver struct {
	mu       sync.RWMutex
	drivers  map[string]LightDriver
	fallback LightDriver
}

// NewResolver creates a resolver with a loopback fallback.
func NewResolver() *Resolver {
	return &Resolver{
		drivers:  make(map[string]LightDriver),
		fallback: Loopback{},
	}
}

// Register binds a protocol name to a driver.
func (r *Resolver) Register(protocol string, d LightDriver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[protocol] = d
	log.Debug().Str("protocol", protocol).Msg("Light driver registered")
}

// For returns the driver for a light's protocol.
func (r *Resolver) For(light *resource.Light) LightDriver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.drivers[light.Protocol]; ok {
		return d
	}
	return r.fallback
}

// Apply routes the patch to the light's driver.
func (r *Resolver) Apply(ctx context.Context, light *resource.Light, patch resource.StatePatch) error {
	return r.For(light).Apply(ctx, light, patch)
}

// Loopback is the no-hardware driver: every apply succeeds, every poll
// reports reachable.
type Loopback struct{}

func (Loopback) Apply(ctx context.Context, light *resource.Light, patch resource.StatePatch) error {
	return nil
}

func (Loopback) Poll(ctx context.Context, light *resource.Light) (bool, error) {
	return true, nil
}
