package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetDefaultOpener(t *testing.T) {
	expected := map[string]string{
		"darwin":  "open",
		"linux":   "xdg-open",
		"windows": "start",
	}

	opener := getDefaultOpener()

	if expectedOpener, ok := expected[runtime.GOOS]; ok {
		if opener != expectedOpener {
			t.Errorf("getDefaultOpener() = %s, want %s for %s", opener, expectedOpener, runtime.GOOS)
		}
	} else if opener != "open" {
		t.Errorf("getDefaultOpener() = %s, want 'open' for unknown OS", opener)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Timeout != 1*time.Second {
		t.Errorf("Database.Timeout = %v, want 1s", cfg.Database.Timeout)
	}

	// Provider mix
	if len(cfg.Providers) != 2 {
		t.Fatalf("len(Providers) = %d, want 2", len(cfg.Providers))
	}
	if cfg.Providers[0].Name != "pexels" || cfg.Providers[0].Weight != 0.65 {
		t.Errorf("Providers[0] = %s/%v, want pexels/0.65", cfg.Providers[0].Name, cfg.Providers[0].Weight)
	}
	if cfg.Providers[1].Name != "unsplash" || cfg.Providers[1].Weight != 0.35 {
		t.Errorf("Providers[1] = %s/%v, want unsplash/0.35", cfg.Providers[1].Name, cfg.Providers[1].Weight)
	}

	// Sourcing defaults
	if cfg.Sourcing.MaxAttempts != 6 {
		t.Errorf("Sourcing.MaxAttempts = %d, want 6", cfg.Sourcing.MaxAttempts)
	}
	if cfg.Sourcing.ErrorThreshold != 5 {
		t.Errorf("Sourcing.ErrorThreshold = %d, want 5", cfg.Sourcing.ErrorThreshold)
	}
	if cfg.Sourcing.BackoffCap != 300*time.Second {
		t.Errorf("Sourcing.BackoffCap = %v, want 5m", cfg.Sourcing.BackoffCap)
	}
	if cfg.Sourcing.GlobalRetention != 24*time.Hour {
		t.Errorf("Sourcing.GlobalRetention = %v, want 24h", cfg.Sourcing.GlobalRetention)
	}

	if cfg.Schedule.Tolerance != time.Minute {
		t.Errorf("Schedule.Tolerance = %v, want 1m", cfg.Schedule.Tolerance)
	}
	if cfg.Schedule.RetentionDays != 7 {
		t.Errorf("Schedule.RetentionDays = %d, want 7", cfg.Schedule.RetentionDays)
	}
	if cfg.Orchestrator.PollInterval != 5*time.Minute {
		t.Errorf("Orchestrator.PollInterval = %v, want 5m", cfg.Orchestrator.PollInterval)
	}
	if cfg.Publisher.Timeout != 30*time.Second {
		t.Errorf("Publisher.Timeout = %v, want 30s", cfg.Publisher.Timeout)
	}

	if cfg.Media.DefaultOpener == "" {
		t.Error("Media.DefaultOpener should not be empty")
	}
	if cfg.Network.UserAgent == "" {
		t.Error("Network.UserAgent should not be empty")
	}
}

func TestLoad_DefaultConfig(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}

	if cfg.Orchestrator.PollInterval != 5*time.Minute {
		t.Errorf("Orchestrator.PollInterval = %v, want 5m", cfg.Orchestrator.PollInterval)
	}
	if len(cfg.Identities) != 1 {
		t.Errorf("len(Identities) = %d, want 1", len(cfg.Identities))
	}
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "test-config.toml")
	configContent := `
[database]
path = "/tmp/test.db"
timeout = "10s"

[[providers]]
name = "stock"
kind = "pexels"
weight = 1.0
base_url = "https://api.pexels.com/v1"
http_timeout = "15s"

[[identities]]
id = "alice"
display_name = "Alice"
timezone = "Europe/Berlin"
slots = ["07:30", "19:45"]
topics = ["forest"]
preferred_provider = "stock"

[orchestrator]
poll_interval = "30s"
`

	if writeErr := os.WriteFile(configPath, []byte(configContent), 0o644); writeErr != nil {
		t.Fatal(writeErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %s, want '/tmp/test.db'", cfg.Database.Path)
	}
	if cfg.Database.Timeout != 10*time.Second {
		t.Errorf("Database.Timeout = %v, want 10s", cfg.Database.Timeout)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Name != "stock" {
		t.Fatalf("Providers = %+v, want single 'stock' provider", cfg.Providers)
	}
	if cfg.Providers[0].HTTPTimeout != 15*time.Second {
		t.Errorf("Providers[0].HTTPTimeout = %v, want 15s", cfg.Providers[0].HTTPTimeout)
	}
	if len(cfg.Identities) != 1 || cfg.Identities[0].ID != "alice" {
		t.Fatalf("Identities = %+v, want single 'alice' identity", cfg.Identities)
	}
	if got := cfg.Identities[0].Slots; len(got) != 2 || got[1] != "19:45" {
		t.Errorf("Identities[0].Slots = %v", got)
	}
	if cfg.Orchestrator.PollInterval != 30*time.Second {
		t.Errorf("Orchestrator.PollInterval = %v, want 30s", cfg.Orchestrator.PollInterval)
	}
	// Untouched sections keep their defaults
	if cfg.Sourcing.MaxAttempts != 6 {
		t.Errorf("Sourcing.MaxAttempts = %d, want 6", cfg.Sourcing.MaxAttempts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := defaultConfig()
	cfg.Database.Path = "/test/path.db"
	cfg.Network.UserAgent = "test-save-agent"
	cfg.Identities[0].Slots = []string{"06:00"}
	cfg.Publisher.Timeout = 12 * time.Second

	savePath := filepath.Join(tmpDir, "saved-config.toml")
	if saveErr := Save(cfg, savePath); saveErr != nil {
		t.Fatalf("Save() error = %v", saveErr)
	}

	if _, statErr := os.Stat(savePath); os.IsNotExist(statErr) {
		t.Fatal("Save() did not create config file")
	}

	loaded, err := Load(savePath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loaded.Database.Path != cfg.Database.Path {
		t.Errorf("Loaded Database.Path = %s, want %s", loaded.Database.Path, cfg.Database.Path)
	}
	if loaded.Network.UserAgent != cfg.Network.UserAgent {
		t.Errorf("Loaded Network.UserAgent = %s, want %s", loaded.Network.UserAgent, cfg.Network.UserAgent)
	}
	if len(loaded.Identities) != 1 || len(loaded.Identities[0].Slots) != 1 || loaded.Identities[0].Slots[0] != "06:00" {
		t.Errorf("Loaded Identities = %+v", loaded.Identities)
	}
	if loaded.Publisher.Timeout != 12*time.Second {
		t.Errorf("Loaded Publisher.Timeout = %v, want 12s", loaded.Publisher.Timeout)
	}
}

func TestGenerateDefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "generated.toml")
	if genErr := GenerateDefaultConfig(configPath); genErr != nil {
		t.Fatalf("GenerateDefaultConfig() error = %v", genErr)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}

	if len(cfg.Providers) != 2 {
		t.Errorf("Generated config has %d providers, want 2", len(cfg.Providers))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("generated config does not validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "test config is valid",
			mutate: func(*Config) {},
		},
		{
			name: "duplicate identity",
			mutate: func(c *Config) {
				c.Identities = append(c.Identities, c.Identities[0])
			},
			wantErr: "registered more than once",
		},
		{
			name: "bad slot",
			mutate: func(c *Config) {
				c.Identities[0].Slots = []string{"9am"}
			},
			wantErr: "not HH:MM",
		},
		{
			name: "unknown timezone",
			mutate: func(c *Config) {
				c.Identities[0].Timezone = "Mars/Olympus"
			},
			wantErr: "timezone",
		},
		{
			name: "unknown provider kind",
			mutate: func(c *Config) {
				c.Providers[0].Kind = "flickr"
			},
			wantErr: "unknown kind",
		},
		{
			name: "negative weight",
			mutate: func(c *Config) {
				c.Providers[0].Weight = -1
			},
			wantErr: "weight",
		},
		{
			name: "feed without urls",
			mutate: func(c *Config) {
				c.Providers = append(c.Providers, ProviderConfig{Name: "rss", Kind: KindFeed})
			},
			wantErr: "search_url or listing_url",
		},
		{
			name: "unknown preferred provider",
			mutate: func(c *Config) {
				c.Identities[0].PreferredProvider = "nope"
			},
			wantErr: "preferred provider",
		},
		{
			name: "no providers",
			mutate: func(c *Config) {
				c.Providers = nil
			},
			wantErr: "at least one provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := TestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestIdentityLookup(t *testing.T) {
	cfg := TestConfig()
	ic, ok := cfg.Identity("test_bot")
	if !ok || ic.DisplayName != "Test Bot" {
		t.Fatalf("Identity(test_bot) = %+v, %v", ic, ok)
	}
	if _, ok := cfg.Identity("ghost"); ok {
		t.Error("Identity(ghost) should not be found")
	}
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()

	if cfg == nil {
		t.Fatal("TestConfig() returned nil")
	}

	if cfg.Database.Path != ":memory:" {
		t.Errorf("TestConfig Database.Path = %s, want ':memory:'", cfg.Database.Path)
	}
	if cfg.Network.UserAgent != "lensbot-test/1.0" {
		t.Errorf("TestConfig Network.UserAgent = %s, want 'lensbot-test/1.0'", cfg.Network.UserAgent)
	}
}
