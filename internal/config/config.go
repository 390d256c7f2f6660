// Package config loads the tunable defaults that §6.4 fixes for the
// servo controller: pulse ranges, tick cadences, planner constants, the
// flash sector location, and the transport device to open.
package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ServoConfig holds the position/continuous calibration defaults applied
// to every axis absent a loaded Store record.
type ServoConfig struct {
	PulseMinUs          uint16  `yaml:"pulse_min_us"`
	PulseMaxUs          uint16  `yaml:"pulse_max_us"`
	PulseCenterUs       uint16  `yaml:"pulse_center_us"`
	NeutralUs           uint16  `yaml:"neutral_us"`
	DeadbandUs          uint16  `yaml:"deadband_us"`
	MinSpeedThresholdPc float32 `yaml:"min_speed_threshold_pct"`
	DefaultAccelPctPerS float32 `yaml:"default_accel_pct_per_s"`
	DefaultDecelPctPerS float32 `yaml:"default_decel_pct_per_s"`
	DirectionDelayMs    int     `yaml:"direction_change_delay_ms"`
	SafetyTimeoutMs     int     `yaml:"safety_timeout_ms"`
}

// MotionConfig holds planner/scheduler/interpolator tick cadences and
// junction-smoothing constants (§6.4).
type MotionConfig struct {
	PlannerBufferSize int     `yaml:"planner_buffer_size"`
	InterpTickMs      int     `yaml:"interp_tick_ms"`
	SchedulerTickMs   int     `yaml:"scheduler_tick_ms"`
	SystemTickMs      int     `yaml:"system_tick_ms"`
	JunctionDeviation float32 `yaml:"junction_deviation"`
	MinJunctionSpeed  float32 `yaml:"min_junction_speed"`
}

// StoreConfig holds the flash sector location and the local file used to
// stand in for it on a hosted target.
type StoreConfig struct {
	SectorOffset int    `yaml:"sector_offset"`
	FilePath     string `yaml:"file_path"`
}

// TransportConfig holds the USB-CDC device path and baud rate (§6.2).
type TransportConfig struct {
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

// Config is the top-level servoctld configuration document.
type Config struct {
	Servo     ServoConfig     `yaml:"servo"`
	Motion    MotionConfig    `yaml:"motion"`
	Store     StoreConfig     `yaml:"store"`
	Transport TransportConfig `yaml:"transport"`

	path string
}

// Defaults returns the §6.4 fixed parameters.
func Defaults() *Config {
	return &Config{
		Servo: ServoConfig{
			PulseMinUs:          500,
			PulseMaxUs:          2500,
			PulseCenterUs:       1500,
			NeutralUs:           1500,
			DeadbandUs:          50,
			MinSpeedThresholdPc: 5,
			DefaultAccelPctPerS: 50,
			DefaultDecelPctPerS: 80,
			DirectionDelayMs:    200,
			SafetyTimeoutMs:     3000,
		},
		Motion: MotionConfig{
			PlannerBufferSize: 32,
			InterpTickMs:      20,
			SchedulerTickMs:   10,
			SystemTickMs:      1,
			JunctionDeviation: 0.05,
			MinJunctionSpeed:  5,
		},
		Store: StoreConfig{
			SectorOffset: 256 * 1024,
			FilePath:     "/var/lib/servoctl/store.bin",
		},
		Transport: TransportConfig{
			Device:   "/dev/ttyACM0",
			BaudRate: 115200,
		},
	}
}

// Load reads config from a YAML file, falling back to Defaults() if the
// file is absent or fails to parse, then applies environment overrides —
// mirroring the teacher's LoadConfig default-filling behavior.
func Load(path string) *Config {
	cfg := Defaults()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = Defaults()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// applyEnvOverrides reads SERVOCTL_DEVICE, SERVOCTL_BAUD, and
// SERVOCTL_STORE_PATH overrides, matching the teacher's ECU_*/GPS_*
// environment override convention.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SERVOCTL_DEVICE"); v != "" {
		c.Transport.Device = v
	}
	if v := os.Getenv("SERVOCTL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Transport.BaudRate = n
		}
	}
	if v := os.Getenv("SERVOCTL_STORE_PATH"); v != "" {
		c.Store.FilePath = v
	}
}

// Save writes c back to its YAML file.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = "/etc/servoctl/config.yaml"
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
