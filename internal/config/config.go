package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pders01/lensbot/internal/validation"
)

type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Network      NetworkConfig      `mapstructure:"network"`
	Providers    []ProviderConfig   `mapstructure:"providers"`
	Identities   []IdentityConfig   `mapstructure:"identities"`
	Sourcing     SourcingConfig     `mapstructure:"sourcing"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Publisher    PublisherConfig    `mapstructure:"publisher"`
	Captions     CaptionConfig      `mapstructure:"captions"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Media        MediaConfig        `mapstructure:"media"`
}

type DatabaseConfig struct {
	Path        string        `mapstructure:"path"`
	Timeout     time.Duration `mapstructure:"timeout"`
	SearchIndex string        `mapstructure:"search_index"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type NetworkConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	// AllowPrivateEndpoints permits localhost and private IPs for provider
	// and backend endpoints. Development only.
	AllowPrivateEndpoints bool `mapstructure:"allow_private_endpoints"`
}

// Provider kinds understood by the provider registry.
const (
	KindUnsplash = "unsplash"
	KindPexels   = "pexels"
	KindFeed     = "feed"
)

type ProviderConfig struct {
	Name            string        `mapstructure:"name"`
	Kind            string        `mapstructure:"kind"`
	Weight          float64       `mapstructure:"weight"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	SearchURL       string        `mapstructure:"search_url"`
	ListingURL      string        `mapstructure:"listing_url"`
	RequestsPerHour int           `mapstructure:"requests_per_hour"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

type IdentityConfig struct {
	ID                string   `mapstructure:"id"`
	DisplayName       string   `mapstructure:"display_name"`
	Avatar            string   `mapstructure:"avatar"`
	Bio               string   `mapstructure:"bio"`
	BotType           string   `mapstructure:"bot_type"`
	Folder            string   `mapstructure:"folder"`
	Timezone          string   `mapstructure:"timezone"`
	Slots             []string `mapstructure:"slots"`
	Topics            []string `mapstructure:"topics"`
	PreferredProvider string   `mapstructure:"preferred_provider"`
}

type SourcingConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	MaxPage         int           `mapstructure:"max_page"`
	MaxPerPage      int           `mapstructure:"max_per_page"`
	ErrorThreshold  int           `mapstructure:"error_threshold"`
	BackoffCap      time.Duration `mapstructure:"backoff_cap"`
	GlobalRetention time.Duration `mapstructure:"global_retention"`
	Oversample      int           `mapstructure:"oversample"`
}

type ScheduleConfig struct {
	Tolerance     time.Duration `mapstructure:"tolerance"`
	RetentionDays int           `mapstructure:"retention_days"`
	// PruneCron drives retention maintenance (robfig/cron syntax).
	PruneCron string `mapstructure:"prune_cron"`
	// HealthResetCron optionally resets provider health on a schedule.
	HealthResetCron string `mapstructure:"health_reset_cron"`
}

type OrchestratorConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	SourceTimeout  time.Duration `mapstructure:"source_timeout"`
	CaptionTimeout time.Duration `mapstructure:"caption_timeout"`
}

type PublisherConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Path            string        `mapstructure:"path"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerWindow   int           `mapstructure:"breaker_window"`
	BreakerDelay    time.Duration `mapstructure:"breaker_delay"`
}

type CaptionConfig struct {
	Templates []string `mapstructure:"templates"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type MediaConfig struct {
	ImageViewers  []string `mapstructure:"image_viewers"`
	DefaultOpener string   `mapstructure:"default_opener"`
}

func defaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".lensbot", "lensbot.db")
	searchIndexPath := filepath.Join(homeDir, ".lensbot", "history.bleve")
	logPath := filepath.Join(homeDir, ".lensbot", "lensbot.log")

	return &Config{
		Database: DatabaseConfig{
			Path:        dbPath,
			Timeout:     1 * time.Second,
			SearchIndex: searchIndexPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  logPath,
		},
		Network: NetworkConfig{
			UserAgent: "lensbot/1.0 (https://github.com/pders01/lensbot)",
		},
		Providers: []ProviderConfig{
			{
				Name:            "pexels",
				Kind:            KindPexels,
				Weight:          0.65,
				BaseURL:         "https://api.pexels.com/v1",
				RequestsPerHour: 200,
				HTTPTimeout:     30 * time.Second,
			},
			{
				Name:            "unsplash",
				Kind:            KindUnsplash,
				Weight:          0.35,
				BaseURL:         "https://api.unsplash.com",
				RequestsPerHour: 50,
				HTTPTimeout:     30 * time.Second,
			},
		},
		Identities: []IdentityConfig{
			{
				ID:          "jay_soundo_photography",
				DisplayName: "Jay Soundo Photography",
				Bio:         "Professional photographer capturing life's diverse moments.",
				BotType:     "photographer",
				Folder:      "bots/jay_soundo_photography",
				Timezone:    "Asia/Ho_Chi_Minh",
				Slots:       []string{"08:00", "14:00", "20:00"},
				Topics: []string{
					"nature", "landscape", "urban", "architecture", "people", "lifestyle",
					"travel", "abstract", "creative", "technology", "modern", "artistic",
				},
			},
		},
		Sourcing: SourcingConfig{
			MaxAttempts:     6,
			MaxPage:         5,
			MaxPerPage:      20,
			ErrorThreshold:  5,
			BackoffCap:      300 * time.Second,
			GlobalRetention: 24 * time.Hour,
			Oversample:      3,
		},
		Schedule: ScheduleConfig{
			Tolerance:     1 * time.Minute,
			RetentionDays: 7,
			PruneCron:     "@daily",
		},
		Orchestrator: OrchestratorConfig{
			PollInterval:   5 * time.Minute,
			SourceTimeout:  2 * time.Minute,
			CaptionTimeout: 30 * time.Second,
		},
		Publisher: PublisherConfig{
			BaseURL:         "http://localhost:5000",
			Path:            "/api/bot/create-post",
			Timeout:         30 * time.Second,
			BreakerFailures: 3,
			BreakerWindow:   5,
			BreakerDelay:    5 * time.Minute,
		},
		Captions: CaptionConfig{
			Templates: []string{
				"Capturing moments that tell stories\n\n{{.Description}}\n\n#photography #{{.Topic}} #moment",
				"Through the lens of creativity\n\n{{.Description}}\n\n#photographer #creative #{{.Topic}}",
				"Every frame holds a universe\n\n{{.Description}}\n\n#photography #frame #{{.Topic}}",
				"Beauty in the everyday\n\n{{.Description}}\n\n#everyday #beauty #{{.Topic}}",
			},
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
		Media: MediaConfig{
			ImageViewers:  defaultImageViewers(),
			DefaultOpener: getDefaultOpener(),
		},
	}
}

func defaultImageViewers() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"preview", "open"}
	case "windows":
		return []string{"start"}
	default:
		return []string{"feh", "eog", "xdg-open"}
	}
}

func getDefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "linux":
		return "xdg-open"
	case "windows":
		return "start"
	default:
		return "open"
	}
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	cfg := defaultConfig()
	v.SetDefault("database", cfg.Database)
	v.SetDefault("logging", cfg.Logging)
	v.SetDefault("network", cfg.Network)
	v.SetDefault("providers", cfg.Providers)
	v.SetDefault("identities", cfg.Identities)
	v.SetDefault("sourcing", cfg.Sourcing)
	v.SetDefault("schedule", cfg.Schedule)
	v.SetDefault("orchestrator", cfg.Orchestrator)
	v.SetDefault("publisher", cfg.Publisher)
	v.SetDefault("captions", cfg.Captions)
	v.SetDefault("metrics", cfg.Metrics)
	v.SetDefault("media", cfg.Media)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		homeDir, _ := os.UserHomeDir()
		configDir := filepath.Join(homeDir, ".config", "lensbot")

		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LENSBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand paths after loading
	expandPaths(&config)

	return &config, nil
}

// expandPath expands ~ to home directory and converts to absolute path
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if len(path) >= 2 && path[:2] == "~/" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[2:])
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	return path
}

// expandPaths expands all paths in the config
func expandPaths(cfg *Config) {
	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Database.SearchIndex = expandPath(cfg.Database.SearchIndex)
	cfg.Logging.File = expandPath(cfg.Logging.File)
}

// Validate checks cross-field invariants that viper cannot express.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("at least one provider must be configured"))
	}

	endpoints := validation.NewEndpointValidator()
	if c.Network.AllowPrivateEndpoints {
		endpoints = validation.NewPermissiveEndpointValidator()
	}

	providerNames := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
			continue
		}
		if providerNames[p.Name] {
			errs = append(errs, fmt.Errorf("provider %q: duplicate name", p.Name))
		}
		providerNames[p.Name] = true

		if p.Weight < 0 {
			errs = append(errs, fmt.Errorf("provider %q: weight must not be negative", p.Name))
		}
		switch p.Kind {
		case KindUnsplash, KindPexels:
			if _, err := endpoints.ValidateAndNormalize(p.BaseURL); err != nil {
				errs = append(errs, fmt.Errorf("provider %q: base_url: %w", p.Name, err))
			}
		case KindFeed:
			if p.SearchURL == "" && p.ListingURL == "" {
				errs = append(errs, fmt.Errorf("provider %q: feed needs search_url or listing_url", p.Name))
			}
			if p.SearchURL != "" {
				if _, err := endpoints.ValidateTemplate(p.SearchURL); err != nil {
					errs = append(errs, fmt.Errorf("provider %q: search_url: %w", p.Name, err))
				}
			}
			if p.ListingURL != "" {
				if _, err := endpoints.ValidateAndNormalize(p.ListingURL); err != nil {
					errs = append(errs, fmt.Errorf("provider %q: listing_url: %w", p.Name, err))
				}
			}
		default:
			errs = append(errs, fmt.Errorf("provider %q: unknown kind %q", p.Name, p.Kind))
		}
	}

	identityIDs := make(map[string]bool, len(c.Identities))
	for i, id := range c.Identities {
		if id.ID == "" {
			errs = append(errs, fmt.Errorf("identities[%d]: id is required", i))
			continue
		}
		if identityIDs[id.ID] {
			errs = append(errs, fmt.Errorf("identity %q: registered more than once", id.ID))
		}
		identityIDs[id.ID] = true

		if _, err := time.LoadLocation(id.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("identity %q: timezone: %w", id.ID, err))
		}
		if len(id.Slots) == 0 {
			errs = append(errs, fmt.Errorf("identity %q: at least one slot is required", id.ID))
		}
		for _, s := range id.Slots {
			if _, err := time.Parse("15:04", s); err != nil {
				errs = append(errs, fmt.Errorf("identity %q: slot %q is not HH:MM", id.ID, s))
			}
		}
		if id.PreferredProvider != "" && !providerNames[id.PreferredProvider] {
			errs = append(errs, fmt.Errorf("identity %q: unknown preferred provider %q", id.ID, id.PreferredProvider))
		}
	}

	// The backend usually runs next to the bot, so local addresses are fine.
	if _, err := validation.NewPermissiveEndpointValidator().ValidateAndNormalize(c.Publisher.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("publisher base_url: %w", err))
	}
	if c.Sourcing.MaxAttempts <= 0 {
		errs = append(errs, errors.New("sourcing.max_attempts must be positive"))
	}
	if c.Orchestrator.PollInterval <= 0 {
		errs = append(errs, errors.New("orchestrator.poll_interval must be positive"))
	}

	return errors.Join(errs...)
}

// Identity returns the identity config with the given ID.
func (c *Config) Identity(id string) (IdentityConfig, bool) {
	for _, ic := range c.Identities {
		if ic.ID == id {
			return ic, true
		}
	}
	return IdentityConfig{}, false
}

func Save(config *Config, path string) error {
	v := viper.New()

	// Durations are written as strings for TOML readability
	dbCfg := map[string]interface{}{
		"path":         config.Database.Path,
		"timeout":      config.Database.Timeout.String(),
		"search_index": config.Database.SearchIndex,
	}

	providers := make([]map[string]interface{}, 0, len(config.Providers))
	for _, p := range config.Providers {
		providers = append(providers, map[string]interface{}{
			"name":              p.Name,
			"kind":              p.Kind,
			"weight":            p.Weight,
			"api_key":           p.APIKey,
			"base_url":          p.BaseURL,
			"search_url":        p.SearchURL,
			"listing_url":       p.ListingURL,
			"requests_per_hour": p.RequestsPerHour,
			"http_timeout":      p.HTTPTimeout.String(),
		})
	}

	identities := make([]map[string]interface{}, 0, len(config.Identities))
	for _, id := range config.Identities {
		identities = append(identities, map[string]interface{}{
			"id":                 id.ID,
			"display_name":       id.DisplayName,
			"avatar":             id.Avatar,
			"bio":                id.Bio,
			"bot_type":           id.BotType,
			"folder":             id.Folder,
			"timezone":           id.Timezone,
			"slots":              id.Slots,
			"topics":             id.Topics,
			"preferred_provider": id.PreferredProvider,
		})
	}

	sourcingCfg := map[string]interface{}{
		"max_attempts":     config.Sourcing.MaxAttempts,
		"max_page":         config.Sourcing.MaxPage,
		"max_per_page":     config.Sourcing.MaxPerPage,
		"error_threshold":  config.Sourcing.ErrorThreshold,
		"backoff_cap":      config.Sourcing.BackoffCap.String(),
		"global_retention": config.Sourcing.GlobalRetention.String(),
		"oversample":       config.Sourcing.Oversample,
	}

	scheduleCfg := map[string]interface{}{
		"tolerance":         config.Schedule.Tolerance.String(),
		"retention_days":    config.Schedule.RetentionDays,
		"prune_cron":        config.Schedule.PruneCron,
		"health_reset_cron": config.Schedule.HealthResetCron,
	}

	orchestratorCfg := map[string]interface{}{
		"poll_interval":   config.Orchestrator.PollInterval.String(),
		"source_timeout":  config.Orchestrator.SourceTimeout.String(),
		"caption_timeout": config.Orchestrator.CaptionTimeout.String(),
	}

	publisherCfg := map[string]interface{}{
		"base_url":         config.Publisher.BaseURL,
		"path":             config.Publisher.Path,
		"api_key":          config.Publisher.APIKey,
		"timeout":          config.Publisher.Timeout.String(),
		"breaker_failures": config.Publisher.BreakerFailures,
		"breaker_window":   config.Publisher.BreakerWindow,
		"breaker_delay":    config.Publisher.BreakerDelay.String(),
	}

	v.Set("database", dbCfg)
	v.Set("logging", map[string]interface{}{
		"level": config.Logging.Level,
		"file":  config.Logging.File,
	})
	v.Set("network", map[string]interface{}{
		"user_agent":              config.Network.UserAgent,
		"allow_private_endpoints": config.Network.AllowPrivateEndpoints,
	})
	v.Set("providers", providers)
	v.Set("identities", identities)
	v.Set("sourcing", sourcingCfg)
	v.Set("schedule", scheduleCfg)
	v.Set("orchestrator", orchestratorCfg)
	v.Set("publisher", publisherCfg)
	v.Set("captions", map[string]interface{}{"templates": config.Captions.Templates})
	v.Set("metrics", map[string]interface{}{"addr": config.Metrics.Addr})
	v.Set("media", map[string]interface{}{
		"image_viewers":  config.Media.ImageViewers,
		"default_opener": config.Media.DefaultOpener,
	})

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	return v.WriteConfigAs(path)
}

func GenerateDefaultConfig(path string) error {
	return Save(defaultConfig(), path)
}
