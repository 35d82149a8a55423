package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/bridged/internal/automation"
	"github.com/dokzlo13/bridged/internal/config"
	"github.com/dokzlo13/bridged/internal/daylight"
	"github.com/dokzlo13/bridged/internal/db"
	"github.com/dokzlo13/bridged/internal/dispatch"
	"github.com/dokzlo13/bridged/internal/driver"
	"github.com/dokzlo13/bridged/internal/entertainment"
	"github.com/dokzlo13/bridged/internal/eventbus"
	"github.com/dokzlo13/bridged/internal/mqtt"
	"github.com/dokzlo13/bridged/internal/resource"
	"github.com/dokzlo13/bridged/internal/rules"
	"github.com/dokzlo13/bridged/internal/store"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB    *db.DB
	Store *store.Store
	Bus   *eventbus.Bus
	MQTT  *mqtt.Client

	// State model
	Registry *resource.Registry
	Sun      *daylight.Calculator
	Resolver *driver.Resolver

	// Engines
	Dispatcher *dispatch.Local
	Rules      *rules.Processor
	Automation *automation.Engine
	Streaming  *entertainment.Engine
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database and snapshot store
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Store = store.New(database.DB)

	// Change event bus and resource registry
	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Registry = resource.NewRegistry(s.Bus)

	// Restore persisted state
	snap, ok, err := s.Store.Load()
	if err != nil {
		s.Close()
		return nil, err
	}
	if ok {
		s.Registry.Restore(snap)
		log.Info().
			Int("lights", len(snap.Lights)).
			Int("groups", len(snap.Groups)).
			Int("rules", len(snap.Rules)).
			Msg("State restored from snapshot")
	}
	s.seedDaylightSensor()

	// Sun time calculator for the configured location
	s.Sun = daylight.NewCalculator(cfg.Location.Lat, cfg.Location.Lon, cfg.Location.Timezone)

	// Optional MQTT broker for zigbee2mqtt lights
	if cfg.MQTT.Enabled() {
		client, err := mqtt.Connect(mqtt.Config{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.MQTT = client
	}

	// Device drivers
	s.Resolver = driver.NewResolver()
	if cfg.Downstream.IP != "" {
		s.Resolver.Register("hue", driver.NewHueDriver(cfg.Downstream.IP, cfg.Downstream.User))
	}
	if s.MQTT != nil {
		s.Resolver.Register("mqtt", driver.NewMQTTDriver(s.MQTT))
	}

	// Dispatcher routes action addresses into the state model
	s.Dispatcher = dispatch.NewLocal(s.Registry, s.Resolver)

	// Rule engine fed by the change bus
	s.Rules = rules.NewProcessor(s.Registry, s.Dispatcher)
	s.Bus.Subscribe(s.Rules.HandleEvent)

	// Time-driven automation
	s.Automation = automation.NewEngine(s.Registry, s.Dispatcher, s.Sun, s.Store)

	// Entertainment streaming
	s.Streaming = entertainment.NewEngine(s.Registry, s.Resolver, s.MQTT, entertainment.Config{
		DownstreamIP:   cfg.Downstream.IP,
		DownstreamUser: cfg.Downstream.User,
		NonUDPRate:     cfg.Entertainment.NonUDPRate,
	})

	return s, nil
}

// seedDaylightSensor creates the built-in daylight sensor when the snapshot
// did not carry one.
func (s *Services) seedDaylightSensor() {
	if s.Registry.SensorByID(resource.DaylightSensorID) != nil {
		return
	}
	sensor := resource.NewSensor(resource.DaylightSensorID, "Daylight", resource.SensorTypeDaylight)
	sensor.SetConfig(map[string]any{
		"on":            true,
		"configured":    true,
		"sunriseoffset": 30,
		"sunsetoffset":  -30,
	})
	s.Registry.AddSensor(sensor)
	log.Debug().Msg("Daylight sensor seeded")
}

// Start starts all background services.
func (s *Services) Start(ctx context.Context) error {
	go func() {
		if err := s.Automation.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Automation engine exited")
		}
	}()
	return nil
}

// Stop gracefully stops all services and persists a final snapshot.
func (s *Services) Stop() error {
	if s.Rules != nil {
		s.Rules.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.Store != nil && s.Registry != nil {
		if err := s.Store.Save(s.Registry.Snapshot()); err != nil {
			log.Error().Err(err).Msg("Failed to save final snapshot")
		} else {
			log.Info().Msg("Final snapshot saved")
		}
	}
	s.Close()
	return nil
}

// Close releases held resources. Safe to call on a partially built container.
func (s *Services) Close() {
	if s.MQTT != nil {
		s.MQTT.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
