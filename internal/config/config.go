package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "SPOTFINDER_CONFIG"
	logLevelEnv       = "SPOTFINDER_LOG_LEVEL"
	databasePathEnv   = "SPOTFINDER_DB_PATH"
	nominatimURLEnv   = "NOMINATIM_URL"
	grokAPIKeyEnv     = "GROK_API_KEY"
	grokModelEnv      = "GROK_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Places        PlacesConfig       `yaml:"places"`
	Enrichment    EnrichmentConfig   `yaml:"enrichment"`
	Watch         WatchConfig        `yaml:"watch"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// LoggingConfig sets the slog level (debug, info, warn, error).
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig points at the SQLite record store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PlacesConfig selects and tunes the places search provider.
type PlacesConfig struct {
	Provider          string        `yaml:"provider"`
	Endpoint          string        `yaml:"endpoint"`
	UserAgent         string        `yaml:"userAgent"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout"`
}

// EnrichmentConfig defines how to contact the text-generation API.
// APIKey is the build-time fallback when GROK_API_KEY is unset.
type EnrichmentConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"apiKey"`
	MaxTokens   int           `yaml:"maxTokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cacheTTL"`
}

// WatchConfig drives periodic discovery around a fixed home location.
type WatchConfig struct {
	Latitude    float64       `yaml:"latitude"`
	Longitude   float64       `yaml:"longitude"`
	RadiusMiles float64       `yaml:"radiusMiles"`
	Interval    time.Duration `yaml:"interval"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MetricsConfig sets where watch mode exposes /metrics; empty disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv(nominatimURLEnv); v != "" {
		c.Places.Endpoint = v
	}

	if v := os.Getenv(grokAPIKeyEnv); v != "" {
		c.Enrichment.APIKey = v
	}

	if v := os.Getenv(grokModelEnv); v != "" {
		c.Enrichment.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv("SPOTFINDER_WATCH_LAT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Watch.Latitude = f
		}
	}
	if v := os.Getenv("SPOTFINDER_WATCH_LNG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Watch.Longitude = f
		}
	}
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Database.Path != "" {
		base.Database = override.Database
	}

	if override.Places.Provider != "" {
		base.Places.Provider = override.Places.Provider
	}
	if override.Places.Endpoint != "" {
		base.Places.Endpoint = override.Places.Endpoint
	}
	if override.Places.UserAgent != "" {
		base.Places.UserAgent = override.Places.UserAgent
	}
	if override.Places.RequestsPerSecond > 0 {
		base.Places.RequestsPerSecond = override.Places.RequestsPerSecond
	}
	if override.Places.Timeout > 0 {
		base.Places.Timeout = override.Places.Timeout
	}

	if override.Enrichment.Endpoint != "" {
		base.Enrichment.Endpoint = override.Enrichment.Endpoint
	}
	if override.Enrichment.Model != "" {
		base.Enrichment.Model = override.Enrichment.Model
	}
	if override.Enrichment.APIKey != "" {
		base.Enrichment.APIKey = override.Enrichment.APIKey
	}
	if override.Enrichment.MaxTokens > 0 {
		base.Enrichment.MaxTokens = override.Enrichment.MaxTokens
	}
	if override.Enrichment.Temperature > 0 {
		base.Enrichment.Temperature = override.Enrichment.Temperature
	}
	if override.Enrichment.Timeout > 0 {
		base.Enrichment.Timeout = override.Enrichment.Timeout
	}
	if override.Enrichment.CacheTTL > 0 {
		base.Enrichment.CacheTTL = override.Enrichment.CacheTTL
	}

	if override.Watch.Latitude != 0 || override.Watch.Longitude != 0 {
		base.Watch.Latitude = override.Watch.Latitude
		base.Watch.Longitude = override.Watch.Longitude
	}
	if override.Watch.RadiusMiles > 0 {
		base.Watch.RadiusMiles = override.Watch.RadiusMiles
	}
	if override.Watch.Interval > 0 {
		base.Watch.Interval = override.Watch.Interval
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Metrics.Listen != "" {
		base.Metrics.Listen = override.Metrics.Listen
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Path: "spotfinder.db"},
		Places: PlacesConfig{
			Provider:          "nominatim",
			Endpoint:          "https://nominatim.openstreetmap.org/search",
			UserAgent:         "SpotFinder/1.0",
			RequestsPerSecond: 1,
			Timeout:           15 * time.Second,
		},
		Enrichment: EnrichmentConfig{
			Endpoint:    "https://api.x.ai/v1/chat/completions",
			Model:       "grok-3-mini",
			APIKey:      "",
			MaxTokens:   2000,
			Temperature: 0.3,
			Timeout:     30 * time.Second,
			CacheTTL:    time.Hour,
		},
		Watch: WatchConfig{
			RadiusMiles: 20,
			Interval:    24 * time.Hour,
		},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
	}
}
