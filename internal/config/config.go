// Package config manages ctrlr configuration persistence
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ctrlr/ctrlr/internal/midi"
)

const (
	// ConfigDirName is the name of the config directory
	ConfigDirName = ".ctrlr"
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"

	// DefaultListenAddr is the advertiser's preferred listening address
	DefaultListenAddr = ":51235"
	// DefaultControlAddr is where the daemon serves the control plane
	DefaultControlAddr = "127.0.0.1:50551"
)

// Duration is a time.Duration stored as a string such as "5s"
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "5s" style strings or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Service names the advertised mDNS record
type Service struct {
	Instance string `json:"instance"`
	Type     string `json:"type"`
	Domain   string `json:"domain"`
}

// Timeouts holds the connection timing knobs
type Timeouts struct {
	Browse    Duration `json:"browse"`
	Lookup    Duration `json:"lookup"`
	Retry     Duration `json:"retry"`
	Handshake Duration `json:"handshake"`
	Connect   Duration `json:"connect"`
}

// Config holds the ctrlr configuration
type Config struct {
	// Verbose enables debug logging
	Verbose bool     `json:"verbose"`
	Service Service  `json:"service"`
	Timeout Timeouts `json:"timeouts"`
	// ListenAddr is the advertiser's preferred address; port 0 is ephemeral
	ListenAddr string `json:"listen_addr"`
	// ControlAddr is the gRPC control plane address
	ControlAddr string `json:"control_addr"`
	// MetricsAddr enables the Prometheus endpoint when set
	MetricsAddr string `json:"metrics_addr,omitempty"`
	// LookupCommand overrides the dns-sd fallback argv
	LookupCommand []string `json:"lookup_command,omitempty"`
	// MIDIDeviceGlob is scanned for raw MIDI output targets
	MIDIDeviceGlob string `json:"midi_device_glob"`
	// PreferredTarget is selected on startup when present
	PreferredTarget string `json:"preferred_target,omitempty"`
	// MirrorToLog fans every inbound message out to the log as well
	MirrorToLog bool `json:"mirror_to_log"`
	// LogSize bounds the rolling diagnostic log
	LogSize int `json:"log_size"`
}

// Paths holds commonly used paths
type Paths struct {
	// ConfigDir is ~/.ctrlr
	ConfigDir string
	// ConfigFile is ~/.ctrlr/config.json
	ConfigFile string
}

// GetPaths returns the standard paths
func GetPaths() (*Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ConfigDirName)
	return &Paths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, ConfigFileName),
	}, nil
}

// Default returns a new Config with default values
func Default() *Config {
	return &Config{
		Service: Service{
			Instance: "Ctrlr",
			Type:     "_ctrlr._tcp",
			Domain:   "local.",
		},
		Timeout: Timeouts{
			Browse:    Duration(10 * time.Second),
			Lookup:    Duration(8 * time.Second),
			Retry:     Duration(3 * time.Second),
			Handshake: Duration(5 * time.Second),
			Connect:   Duration(5 * time.Second),
		},
		ListenAddr:     DefaultListenAddr,
		ControlAddr:    DefaultControlAddr,
		MIDIDeviceGlob: midi.DefaultRawMIDIGlob,
		LogSize:        64,
	}
}

// Load loads configuration from the default path
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}
	return LoadFrom(paths.ConfigFile)
}

// LoadFrom loads configuration from path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Save saves configuration to the default path
func (c *Config) Save() error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}
	return c.SaveTo(paths.ConfigFile)
}

// SaveTo writes configuration to path
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the fields that would otherwise fail at runtime
func (c *Config) Validate() error {
	if c.Service.Instance == "" {
		return errors.New("service.instance is empty")
	}
	if !strings.HasPrefix(c.Service.Type, "_") || !strings.HasSuffix(c.Service.Type, "._tcp") {
		return fmt.Errorf("service.type %q is not a _name._tcp type", c.Service.Type)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr: %w", err)
	}
	if _, _, err := net.SplitHostPort(c.ControlAddr); err != nil {
		return fmt.Errorf("control_addr: %w", err)
	}
	for name, d := range map[string]Duration{
		"browse":    c.Timeout.Browse,
		"lookup":    c.Timeout.Lookup,
		"retry":     c.Timeout.Retry,
		"handshake": c.Timeout.Handshake,
		"connect":   c.Timeout.Connect,
	} {
		if d <= 0 {
			return fmt.Errorf("timeouts.%s must be positive", name)
		}
	}
	if c.LogSize < 0 {
		return errors.New("log_size must not be negative")
	}
	return nil
}
