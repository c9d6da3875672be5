package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supervisor.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "oper"
  location:
    latitude: -22.53
    longitude: -45.58
database:
  path: "/tmp/supervisor.db"
supervisor:
  freq: 0.05
  max_data_age: 15
  instruments:
    site: site
    dome: dome-0
    telescope: tel-0
  weather_stations: [ws-a, ws-b]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "oper" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "oper")
	}
	if cfg.Supervisor.Instruments["dome"] != "dome-0" {
		t.Errorf("Instruments[dome] = %q, want dome-0", cfg.Supervisor.Instruments["dome"])
	}
	if len(cfg.Supervisor.WeatherStations) != 2 {
		t.Errorf("WeatherStations = %v, want 2 entries", cfg.Supervisor.WeatherStations)
	}
	if got := cfg.WakeInterval(); got != 20*time.Second {
		t.Errorf("WakeInterval() = %v, want 20s", got)
	}
	if got := cfg.MaxDataAge(); got != 15*time.Minute {
		t.Errorf("MaxDataAge() = %v, want 15m", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/supervisor.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(*Config) {},
		},
		{
			name:    "missing site id",
			modify:  func(c *Config) { c.Site.ID = "" },
			wantErr: "site.id is required",
		},
		{
			name:    "latitude out of range",
			modify:  func(c *Config) { c.Site.Location.Latitude = 91 },
			wantErr: "latitude",
		},
		{
			name:    "zero frequency",
			modify:  func(c *Config) { c.Supervisor.Freq = 0 },
			wantErr: "supervisor.freq",
		},
		{
			name:    "api without secret",
			modify:  func(c *Config) { c.API.Enabled = true },
			wantErr: "security.jwt.secret is required",
		},
		{
			name: "api with short secret",
			modify: func(c *Config) {
				c.API.Enabled = true
				c.Security.JWT.Secret = "short"
			},
			wantErr: "at least 32 characters",
		},
		{
			name: "redis without address",
			modify: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr",
		},
		{
			name:    "invalid qos",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHIMERA_DATABASE_PATH", "/var/lib/chimera/supervisor.db")
	t.Setenv("CHIMERA_MQTT_HOST", "broker.local")
	t.Setenv("CHIMERA_SUPERVISOR_FREQ", "0.5")
	t.Setenv("CHIMERA_JWT_SECRET", "from-env")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/var/lib/chimera/supervisor.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.Supervisor.Freq != 0.5 {
		t.Errorf("Supervisor.Freq = %v, want 0.5", cfg.Supervisor.Freq)
	}
	if cfg.Security.JWT.Secret != "from-env" {
		t.Errorf("JWT.Secret = %q", cfg.Security.JWT.Secret)
	}
}

func TestApplyEnvOverrides_BadFrequencyIgnored(t *testing.T) {
	t.Setenv("CHIMERA_SUPERVISOR_FREQ", "often")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Supervisor.Freq != 0.01 {
		t.Errorf("Supervisor.Freq = %v, want default 0.01", cfg.Supervisor.Freq)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Supervisor.Freq != 0.01 {
		t.Errorf("Freq = %v, want 0.01", cfg.Supervisor.Freq)
	}
	if cfg.Supervisor.MaxDataAge != 10 {
		t.Errorf("MaxDataAge = %d, want 10", cfg.Supervisor.MaxDataAge)
	}
	if cfg.Notifier.AskTimeout != 60 {
		t.Errorf("AskTimeout = %d, want 60", cfg.Notifier.AskTimeout)
	}
	if _, ok := cfg.Supervisor.Instruments["site"]; !ok {
		t.Error("default instruments should include site")
	}
	if got := cfg.HandlerTimeout(); got != 5*time.Minute {
		t.Errorf("HandlerTimeout() = %v, want 5m", got)
	}
}
