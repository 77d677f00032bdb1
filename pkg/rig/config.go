package rig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"
)

const DefaultConfigFile = "minirig.json"

// Duration is a time.Duration that reads and writes as "10ms" style text.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Backpressure policies for a full command queue.
const (
	BackpressureBlock = "block"
	BackpressureFail  = "fail"
)

// Config holds the rig configuration
type Config struct {
	Port     string            `json:"port" yaml:"port" env:"MINIRIG_PORT"`
	BaudRate int               `json:"baud_rate,omitempty" yaml:"baud_rate" env:"MINIRIG_BAUD"`
	Variant  Variant           `json:"variant" yaml:"variant" env:"MINIRIG_VARIANT"`
	IDs      map[MotorName]int `json:"ids,omitempty" yaml:"ids"`

	ReadPeriod   Duration `json:"read_period" yaml:"read_period" env:"MINIRIG_READ_PERIOD"`
	Retries      int      `json:"retries" yaml:"retries" env:"MINIRIG_RETRIES"`
	StatsPeriod  Duration `json:"stats_period,omitempty" yaml:"stats_period" env:"MINIRIG_STATS_PERIOD"`
	InitTimeout  Duration `json:"init_timeout" yaml:"init_timeout" env:"MINIRIG_INIT_TIMEOUT"`
	BusTimeout   Duration `json:"bus_timeout" yaml:"bus_timeout" env:"MINIRIG_BUS_TIMEOUT"`
	QueueSize    int      `json:"queue_size,omitempty" yaml:"queue_size" env:"MINIRIG_QUEUE_SIZE"`
	Backpressure string   `json:"backpressure,omitempty" yaml:"backpressure" env:"MINIRIG_BACKPRESSURE"`

	Calibration Calibration `json:"calibration,omitempty" yaml:"calibration"`
}

// DefaultConfig returns the settings used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		BaudRate:     1_000_000,
		Variant:      VariantMixed,
		ReadPeriod:   Duration(10 * time.Millisecond),
		Retries:      5,
		InitTimeout:  Duration(time.Second),
		BusTimeout:   Duration(10 * time.Millisecond),
		QueueSize:    100,
		Backpressure: BackpressureBlock,
	}
}

// IsCalibrated returns true if the config carries calibration data
func (c *Config) IsCalibrated() bool {
	return len(c.Calibration) > 0
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Files ending in
// .yaml or .yml are read as YAML, anything else as JSON. Values missing from
// the file keep their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MINIRIG_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate checks the config for values the control loop cannot run with.
func (c *Config) Validate() error {
	if c.ReadPeriod <= 0 {
		return fmt.Errorf("read_period must be positive, got %s", c.ReadPeriod.D())
	}
	if c.Retries <= 0 {
		return fmt.Errorf("retries must be positive, got %d", c.Retries)
	}
	if c.StatsPeriod < 0 {
		return fmt.Errorf("stats_period must not be negative, got %s", c.StatsPeriod.D())
	}
	if c.InitTimeout <= 0 {
		return fmt.Errorf("init_timeout must be positive, got %s", c.InitTimeout.D())
	}
	switch c.Backpressure {
	case "", BackpressureBlock, BackpressureFail:
	default:
		return fmt.Errorf("unknown backpressure policy %q", c.Backpressure)
	}
	m, err := c.ActuatorMap()
	if err != nil {
		return err
	}
	if c.IsCalibrated() {
		return c.Calibration.Check(m)
	}
	return nil
}

// ActuatorMap builds the actuator map described by the config.
func (c *Config) ActuatorMap() (*ActuatorMap, error) {
	return NewActuatorMap(c.Variant, c.IDs)
}

// CalibrationFor returns the configured calibration, or the default one for m.
func (c *Config) CalibrationFor(m *ActuatorMap) Calibration {
	if c.IsCalibrated() {
		return c.Calibration
	}
	return DefaultCalibration(m)
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
