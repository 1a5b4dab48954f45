package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	LED       LEDConfig       `yaml:"led"`
	Network   NetworkConfig   `yaml:"network"`
	Battery   BatteryConfig   `yaml:"battery"`
	Timing    TimingConfig    `yaml:"timing"`
	OTA       OTAConfig       `yaml:"ota"`
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Log       LogConfig       `yaml:"log"`
}

// DeviceConfig identifies the lamp
type DeviceConfig struct {
	Name            string `yaml:"name"`
	FirmwareVersion string `yaml:"firmware_version"`
	LEDCount        int    `yaml:"led_count"`
}

// LEDConfig configures the LED strip driver
type LEDConfig struct {
	// SerialPort is the serial device driving the strip. Empty means
	// run headless with a null strip.
	SerialPort    string `yaml:"serial_port"`
	Baud          int    `yaml:"baud"`
	BrightnessMax uint8  `yaml:"brightness_max"`
}

// NetworkConfig contains the datagram port and the setup access point
type NetworkConfig struct {
	UDPPort int `yaml:"udp_port"`

	// Access point offered while provisioning. The password is a
	// static shared secret: it gates casual access to the setup
	// channel, it is not a confidentiality mechanism.
	APSSID     string `yaml:"ap_ssid"`
	APPassword string `yaml:"ap_password"`
}

// BatteryConfig contains voltage thresholds (Li-ion 18650 defaults)
type BatteryConfig struct {
	// SysfsPath points at a power-supply directory such as
	// /sys/class/power_supply/BAT0. Empty means report a fixed healthy
	// voltage.
	SysfsPath string  `yaml:"sysfs_path"`
	Full      float64 `yaml:"full"`
	Empty     float64 `yaml:"empty"`
	Warning   float64 `yaml:"warning"`
}

// TimingConfig contains the state timing knobs
type TimingConfig struct {
	TickInterval        Duration `yaml:"tick_interval"`
	HeartbeatInterval   Duration `yaml:"heartbeat_interval"`
	ConnectionTimeout   Duration `yaml:"connection_timeout"`  // searching -> provisioning
	ProvisionTimeout    Duration `yaml:"provision_timeout"`   // provisioning -> searching
	UpdateTimeout       Duration `yaml:"update_timeout"`      // updating -> connected
	BatteryReadInterval Duration `yaml:"battery_read_interval"`
}

// OTAConfig configures the firmware update receiver
type OTAConfig struct {
	Port int `yaml:"port"`
	// Password is a static shared secret, same caveat as APPassword.
	Password string `yaml:"password"`
	// StagingPath is where a received image is written before the
	// flasher takes over.
	StagingPath string `yaml:"staging_path"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DiscoveryConfig controls mDNS advertisement
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the configured level with a default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied. Used by
// tests and by runs without a config file.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Device.Name == "" {
		cfg.Device.Name = "Lumina"
	}
	if cfg.Device.FirmwareVersion == "" {
		cfg.Device.FirmwareVersion = "1.0.0"
	}
	if cfg.Device.LEDCount <= 0 {
		cfg.Device.LEDCount = 16
	}

	if cfg.LED.Baud == 0 {
		cfg.LED.Baud = 115200
	}
	if cfg.LED.BrightnessMax == 0 {
		cfg.LED.BrightnessMax = 200
	}

	if cfg.Network.UDPPort == 0 {
		cfg.Network.UDPPort = 4210
	}
	if cfg.Network.APSSID == "" {
		cfg.Network.APSSID = "Lumina-Setup"
	}
	if cfg.Network.APPassword == "" {
		cfg.Network.APPassword = "lumina2026"
	}

	if cfg.Battery.Full == 0 {
		cfg.Battery.Full = 4.2
	}
	if cfg.Battery.Empty == 0 {
		cfg.Battery.Empty = 3.0
	}
	if cfg.Battery.Warning == 0 {
		cfg.Battery.Warning = 3.3
	}

	if cfg.Timing.TickInterval == 0 {
		cfg.Timing.TickInterval = Duration(10 * time.Millisecond)
	}
	if cfg.Timing.HeartbeatInterval == 0 {
		cfg.Timing.HeartbeatInterval = Duration(5 * time.Second)
	}
	if cfg.Timing.ConnectionTimeout == 0 {
		cfg.Timing.ConnectionTimeout = Duration(30 * time.Second)
	}
	if cfg.Timing.ProvisionTimeout == 0 {
		cfg.Timing.ProvisionTimeout = Duration(5 * time.Minute)
	}
	if cfg.Timing.UpdateTimeout == 0 {
		cfg.Timing.UpdateTimeout = Duration(10 * time.Minute)
	}
	if cfg.Timing.BatteryReadInterval == 0 {
		cfg.Timing.BatteryReadInterval = Duration(10 * time.Second)
	}

	if cfg.OTA.Port == 0 {
		cfg.OTA.Port = 8266
	}
	if cfg.OTA.Password == "" {
		cfg.OTA.Password = "lumina-ota-2026"
	}
	if cfg.OTA.StagingPath == "" {
		cfg.OTA.StagingPath = "./firmware.staged"
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./luminad.sqlite"
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
