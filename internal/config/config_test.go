package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Service.Type != "_ctrlr._tcp" || cfg.Timeout.Handshake.Std() != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ConfigFileName)
	cfg := Default()
	cfg.Verbose = true
	cfg.PreferredTarget = "rawmidi:midiC1D0"
	cfg.Timeout.Retry = Duration(1500 * time.Millisecond)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"retry": "1.5s"`) {
		t.Fatalf("durations should be stored as strings:\n%s", data)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if !got.Verbose || got.PreferredTarget != cfg.PreferredTarget || got.Timeout.Retry != cfg.Timeout.Retry {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	os.WriteFile(path, []byte(`{"timeouts": {"handshake": 2}, "listen_addr": ":0"}`), 0600)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Timeout.Handshake.Std() != 2*time.Second {
		t.Fatalf("handshake = %s", cfg.Timeout.Handshake.Std())
	}
	if cfg.Timeout.Browse.Std() != 10*time.Second {
		t.Fatalf("browse default lost: %s", cfg.Timeout.Browse.Std())
	}
	if cfg.ListenAddr != ":0" || cfg.ControlAddr != DefaultControlAddr {
		t.Fatalf("addresses = %q %q", cfg.ListenAddr, cfg.ControlAddr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"empty instance", func(c *Config) { c.Service.Instance = "" }, "instance"},
		{"bad type", func(c *Config) { c.Service.Type = "ctrlr" }, "service.type"},
		{"bad listen", func(c *Config) { c.ListenAddr = "51235" }, "listen_addr"},
		{"zero handshake", func(c *Config) { c.Timeout.Handshake = 0 }, "handshake"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	os.WriteFile(path, []byte(`{"timeouts": {"retry": "soon"}}`), 0600)
	if _, err := LoadFrom(path); err == nil {
		t.Fatalf("expected an error for an unparsable duration")
	}
}
