package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Sensor    SensorConfig    `yaml:"sensor"`
	Forward   ForwardConfig   `yaml:"forward"`
	Record    RecordConfig    `yaml:"record"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
	Indicator IndicatorConfig `yaml:"indicator"`
}

type SensorConfig struct {
	Enable bool `yaml:"enable"`

	// Format is the parser family; only "forsense" is supported.
	Format string `yaml:"format"`

	// Source is one of serial, tcp, sim.
	Source string `yaml:"source"`

	// Device may be empty to auto-detect.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`

	TCPAddr string `yaml:"tcp_addr"`

	BufferBytes    int           `yaml:"buffer_bytes"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	Sim SimConfig `yaml:"sim"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	AltM         float64       `yaml:"alt_m"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	RateHz       float64       `yaml:"rate_hz"`
}

// ForwardConfig sends raw passthrough frames (GPGGA) to a UDP destination.
type ForwardConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File, when set, receives JSON logs rotated by size.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type IndicatorConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	// Pin is nil when unset; line 0 is a valid choice.
	Pin *int `yaml:"pin"`
}

var (
	validSources    = []string{"serial", "tcp", "sim"}
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error", "disabled"}
	validLogFormats = []string{"console", "json"}
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields and rejects inconsistent settings.
func DefaultAndValidate(cfg *Config) error {
	s := &cfg.Sensor
	s.Format = strings.ToLower(strings.TrimSpace(s.Format))
	if s.Format == "" {
		s.Format = "forsense"
	}
	if s.Format != "forsense" {
		return fmt.Errorf("sensor.format %q is not supported", s.Format)
	}

	s.Source = strings.ToLower(strings.TrimSpace(s.Source))
	if s.Source == "" {
		s.Source = "serial"
	}
	if !oneOf(s.Source, validSources) {
		return fmt.Errorf("sensor.source must be one of %s", strings.Join(validSources, ", "))
	}
	if s.Baud == 0 {
		s.Baud = 115200
	}
	if s.Baud < 0 {
		return fmt.Errorf("sensor.baud must be > 0")
	}
	if s.Source == "tcp" {
		if strings.TrimSpace(s.TCPAddr) == "" {
			return fmt.Errorf("sensor.tcp_addr is required when sensor.source is tcp")
		}
		if _, _, err := net.SplitHostPort(s.TCPAddr); err != nil {
			return fmt.Errorf("sensor.tcp_addr invalid: %w", err)
		}
	}
	if s.BufferBytes == 0 {
		s.BufferBytes = 4096
	}
	if s.BufferBytes < 64 {
		return fmt.Errorf("sensor.buffer_bytes must be >= 64")
	}
	if s.StaleAfter <= 0 {
		s.StaleAfter = 2 * time.Second
	}
	if s.ReconnectDelay <= 0 {
		s.ReconnectDelay = time.Second
	}

	// Simulator defaults (safe even if the sim source is not selected).
	if s.Sim.RadiusM <= 0 {
		s.Sim.RadiusM = 50
	}
	if s.Sim.Period <= 0 {
		s.Sim.Period = 60 * time.Second
	}
	if s.Sim.RateHz <= 0 {
		s.Sim.RateHz = 10
	}
	if s.Sim.RateHz > 200 {
		return fmt.Errorf("sensor.sim.rate_hz must be <= 200")
	}
	if s.Sim.CenterLatDeg < -89 || s.Sim.CenterLatDeg > 89 {
		return fmt.Errorf("sensor.sim.center_lat_deg must be within [-89, 89]")
	}

	if cfg.Forward.Enable {
		if strings.TrimSpace(cfg.Forward.Dest) == "" {
			return fmt.Errorf("forward.dest is required when forward.enable is true")
		}
		if _, _, err := net.SplitHostPort(cfg.Forward.Dest); err != nil {
			return fmt.Errorf("forward.dest invalid: %w", err)
		}
	}

	if cfg.Record.Enable && strings.TrimSpace(cfg.Record.Path) == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if !oneOf(cfg.Log.Level, validLogLevels) {
		return fmt.Errorf("log.level must be one of %s", strings.Join(validLogLevels, ", "))
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if !oneOf(cfg.Log.Format, validLogFormats) {
		return fmt.Errorf("log.format must be one of %s", strings.Join(validLogFormats, ", "))
	}

	if cfg.Log.MaxSizeMB < 0 || cfg.Log.MaxBackups < 0 || cfg.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must be >= 0")
	}
	if cfg.Log.File != "" && cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 20
	}

	if cfg.Indicator.Chip == "" {
		cfg.Indicator.Chip = "gpiochip0"
	}
	if cfg.Indicator.Pin == nil {
		pin := 17
		cfg.Indicator.Pin = &pin
	}
	if *cfg.Indicator.Pin < 0 {
		return fmt.Errorf("indicator.pin must be >= 0")
	}

	return nil
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
