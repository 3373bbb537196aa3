package config

import "time"

// TestConfig returns a config suitable for testing
func TestConfig() *Config {
	cfg := defaultConfig()
	cfg.Database = DatabaseConfig{
		Path:    ":memory:", // Use in-memory database for tests
		Timeout: 1 * time.Second,
	}
	cfg.Logging = LoggingConfig{Level: "off"}
	cfg.Network = NetworkConfig{
		UserAgent:             "lensbot-test/1.0",
		AllowPrivateEndpoints: true,
	}
	cfg.Identities = []IdentityConfig{
		{
			ID:          "test_bot",
			DisplayName: "Test Bot",
			BotType:     "photographer",
			Folder:      "bots/test_bot",
			Timezone:    "UTC",
			Slots:       []string{"09:00"},
			Topics:      []string{"nature"},
		},
	}
	cfg.Orchestrator.PollInterval = 1 * time.Minute
	cfg.Publisher.BaseURL = "http://127.0.0.1:5000"
	cfg.Publisher.Timeout = 5 * time.Second
	for i := range cfg.Providers {
		cfg.Providers[i].HTTPTimeout = 5 * time.Second
	}
	return cfg
}
