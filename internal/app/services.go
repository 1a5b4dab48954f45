package app

import (
	"io"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/luminad/internal/battery"
	"github.com/dokzlo13/luminad/internal/config"
	"github.com/dokzlo13/luminad/internal/db"
	"github.com/dokzlo13/luminad/internal/device"
	"github.com/dokzlo13/luminad/internal/discovery"
	"github.com/dokzlo13/luminad/internal/eeprom"
	"github.com/dokzlo13/luminad/internal/hostnet"
	"github.com/dokzlo13/luminad/internal/ledserial"
	"github.com/dokzlo13/luminad/internal/ota"
	"github.com/dokzlo13/luminad/internal/transport"
)

// closableStrip is what the concrete strip drivers provide beyond the
// core's strip interface.
type closableStrip interface {
	device.LEDStrip
	io.Closer
}

// Services is a container for the device's hardware backends and the
// core built on top of them. It manages initialization order and
// dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB    *db.DB
	Store *eeprom.SQLiteStore

	// Hardware backends
	Strip     closableStrip
	Net       *hostnet.Host
	Battery   device.Battery
	Updater   *ota.Receiver
	Announcer *discovery.Announcer

	DeviceID string

	// The device core
	Manager *device.Manager
}

// NewServices creates all backends and the device core with proper
// dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Device identity survives factory resets
	s.DeviceID, err = database.EnsureIdentity()
	if err != nil {
		s.Close()
		return nil, err
	}

	// Credential region backed by the database
	s.Store, err = eeprom.NewSQLiteStore(database.DB)
	if err != nil {
		s.Close()
		return nil, err
	}

	// LED strip: serial-attached controller, or a null strip when
	// running headless
	if cfg.LED.SerialPort != "" {
		s.Strip, err = ledserial.Open(cfg.LED.SerialPort, cfg.LED.Baud, cfg.Device.LEDCount)
		if err != nil {
			s.Close()
			return nil, err
		}
	} else {
		log.Warn().Msg("No serial port configured, running with a null strip")
		s.Strip = ledserial.NewNull(cfg.Device.LEDCount)
	}
	s.Strip.SetBrightness(cfg.LED.BrightnessMax)

	s.Net = hostnet.New()

	// Battery: kernel power-supply class, or a fixed healthy reading
	if cfg.Battery.SysfsPath != "" {
		s.Battery, err = battery.NewSysfs(cfg.Battery.SysfsPath)
		if err != nil {
			s.Close()
			return nil, err
		}
	} else {
		log.Debug().Msg("No battery sysfs path configured, reporting a fixed voltage")
		s.Battery = battery.NewFixed(4.0)
	}

	s.Updater = ota.NewReceiver(ota.Config{
		Port:        cfg.OTA.Port,
		Password:    cfg.OTA.Password,
		StagingPath: cfg.OTA.StagingPath,
	})

	if cfg.Discovery.Enabled {
		s.Announcer = discovery.NewAnnouncer(
			cfg.Device.Name,
			cfg.Network.UDPPort,
			cfg.Device.FirmwareVersion,
			s.DeviceID,
		)
	}

	s.Manager = device.NewManager(cfg, s.coreDeps())
	return s, nil
}

// coreDeps assembles the dependency set lent to a device core.
func (s *Services) coreDeps() device.Deps {
	deps := device.Deps{
		Strip:    s.Strip,
		Net:      s.Net,
		Battery:  s.Battery,
		Updater:  s.Updater,
		Store:    s.Store,
		NewConn:  func() device.PacketConn { return transport.NewUDPConn() },
		DeviceID: s.DeviceID,
	}
	if s.Announcer != nil {
		deps.Advertiser = s.Announcer
	}
	return deps
}

// RestartCore tears down the active core and boots a fresh one. This
// is the daemon's stand-in for the lamp's hardware restart: persistent
// state survives, everything in memory starts over.
func (s *Services) RestartCore() {
	log.Info().Msg("Restarting device core")
	s.Manager.Shutdown()
	s.Manager = device.NewManager(s.cfg, s.coreDeps())
	s.Manager.Begin()
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	if s.Manager != nil {
		s.Manager.Shutdown()
		s.Manager = nil
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Announcer != nil {
		s.Announcer.Stop()
	}
	if s.Updater != nil {
		s.Updater.Disarm()
	}
	if s.Strip != nil {
		if err := s.Strip.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close LED strip")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
