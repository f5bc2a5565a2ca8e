// Package config provides configuration loading for the homelab-core server.
// Configuration is loaded in order: YAML file → .env file → ENV vars → CLI flags.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var loadEnvOnce sync.Once

// loadDotEnv loads .env file if it exists (does not override existing env vars).
// It is called once before loading configuration.
func loadDotEnv() {
	loadEnvOnce.Do(func() {
		dotEnvSearchPaths := []string{".env", "configs/.env"}
		for _, f := range dotEnvSearchPaths {
			if _, err := os.Stat(f); err == nil {
				// Load .env but don't override existing environment variables
				_ = godotenv.Load(f)
				return
			}
		}
	})
}

// mustBindEnv binds an environment variable to a config key, panicking on error.
// This is safe because viper.BindEnv only fails if the key is empty, which is a programming error.
func mustBindEnv(v *viper.Viper, key string, envVars ...string) {
	if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
		panic(fmt.Sprintf("failed to bind env var for key %s: %v", key, err))
	}
}

// Config holds all configuration for the homelab-core server.
type Config struct {
	HomeAssistant HomeAssistantConfig `mapstructure:"homeassistant"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Gemini        GeminiConfig        `mapstructure:"gemini"`
	Weather       WeatherConfig       `mapstructure:"weather"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// HomeAssistantConfig holds Home Assistant connection settings.
type HomeAssistantConfig struct {
	URL          string        `mapstructure:"url"`
	Token        string        `mapstructure:"token"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ServerConfig holds HTTP server settings. Port serves the MCP endpoint,
// APIPort serves the dashboard/chat REST API.
type ServerConfig struct {
	Port    int `mapstructure:"port"`
	APIPort int `mapstructure:"api_port"`
}

// GeminiConfig holds Gemini assistant settings. The assistant is disabled
// when APIKey is empty.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// WeatherLocation is a named coordinate for weather forecasts.
type WeatherLocation struct {
	Name string  `mapstructure:"name"`
	Lat  float64 `mapstructure:"lat"`
	Lon  float64 `mapstructure:"lon"`
}

// WeatherConfig holds met.no weather client settings.
type WeatherConfig struct {
	UserAgent string            `mapstructure:"user_agent"`
	CacheTTL  time.Duration     `mapstructure:"cache_ttl"`
	Locations []WeatherLocation `mapstructure:"locations"`
}

// DatabaseConfig holds PostgreSQL connection settings. The user store is
// disabled when Host is empty.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// AuthConfig holds API authentication settings. JWT verification is
// disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// setDefaults registers all configuration defaults on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("homeassistant.url", "http://homeassistant.local:8123")
	v.SetDefault("homeassistant.token", "")
	v.SetDefault("homeassistant.poll_interval", 5*time.Second)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_port", 8081)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("weather.user_agent", "homelab-core/1.0")
	v.SetDefault("weather.cache_ttl", 30*time.Minute)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "homelab")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "homelab")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("auth.jwt_secret", "")
}

// bindEnvVars binds environment variable names to config keys.
func bindEnvVars(v *viper.Viper) {
	mustBindEnv(v, "homeassistant.url", "HA_URL")
	mustBindEnv(v, "homeassistant.token", "HA_TOKEN")
	mustBindEnv(v, "server.port", "HOMELAB_MCP_PORT")
	mustBindEnv(v, "server.api_port", "HOMELAB_API_PORT")
	mustBindEnv(v, "logging.level", "HOMELAB_LOG_LEVEL")
	mustBindEnv(v, "gemini.api_key", "GEMINI_API_KEY")
	mustBindEnv(v, "gemini.model", "GEMINI_MODEL")
	mustBindEnv(v, "weather.user_agent", "WEATHER_USER_AGENT")
	mustBindEnv(v, "database.host", "DB_HOST")
	mustBindEnv(v, "database.port", "DB_PORT")
	mustBindEnv(v, "database.user", "DB_USER")
	mustBindEnv(v, "database.password", "DB_PASSWORD")
	mustBindEnv(v, "database.name", "DB_NAME")
	mustBindEnv(v, "database.sslmode", "DB_SSLMODE")
	mustBindEnv(v, "auth.jwt_secret", "JWT_SECRET")
}

// configureViper applies defaults, config file, and env bindings to a viper instance.
func configureViper(v *viper.Viper, configFile string) error {
	// Load .env file first (if exists)
	loadDotEnv()

	setDefaults(v)

	// Load from config file if specified
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	return nil
}

// setupViper creates a fully configured viper instance.
func setupViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	if err := configureViper(v, configFile); err != nil {
		return nil, err
	}
	return v, nil
}

// load reads configuration into the viper instance and unmarshals it.
func load(v *viper.Viper, configFile string) (*Config, error) {
	if err := configureViper(v, configFile); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

// Load loads configuration from YAML file, environment variables, and CLI flags.
// Priority: CLI flags > ENV vars > .env file > YAML file > defaults.
// The configFile parameter is the path to the YAML config file (can be empty).
func Load(configFile string) (*Config, error) {
	return LoadWithViper(viper.New(), configFile)
}

// BindFlags binds cobra flags to viper configuration.
// Call this after parsing flags but before Load().
func BindFlags(v *viper.Viper, haURL, haToken string, port int) {
	if haURL != "" {
		v.Set("homeassistant.url", haURL)
	}
	if haToken != "" {
		v.Set("homeassistant.token", haToken)
	}
	if port != 0 {
		v.Set("server.port", port)
	}
}

// LoadWithViper loads configuration using a pre-configured viper instance.
// This allows CLI flags to be bound before loading.
func LoadWithViper(v *viper.Viper, configFile string) (*Config, error) {
	cfg, err := load(v, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadForDisplay loads configuration without validation, for display purposes.
// This allows showing the effective configuration even if required fields are missing.
func LoadForDisplay(configFile string) (*Config, error) {
	return load(viper.New(), configFile)
}

// MaskedConfig returns a copy of the config with sensitive data masked.
func (c *Config) MaskedConfig() Config {
	masked := *c
	if masked.HomeAssistant.Token != "" {
		masked.HomeAssistant.Token = maskToken(masked.HomeAssistant.Token)
	}
	if masked.Gemini.APIKey != "" {
		masked.Gemini.APIKey = maskToken(masked.Gemini.APIKey)
	}
	if masked.Database.Password != "" {
		masked.Database.Password = "****"
	}
	if masked.Auth.JWTSecret != "" {
		masked.Auth.JWTSecret = "****"
	}
	return masked
}

// maskToken masks a token, showing only the first 4 and last 4 characters.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	if c.HomeAssistant.URL == "" {
		return fmt.Errorf("homeassistant.url is required")
	}
	if c.HomeAssistant.Token == "" {
		return fmt.Errorf("homeassistant.token is required (set via HA_TOKEN env var, --ha-token flag, or config file)")
	}
	if c.HomeAssistant.PollInterval <= 0 {
		return fmt.Errorf("homeassistant.poll_interval must be positive")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.APIPort <= 0 || c.Server.APIPort > 65535 {
		return fmt.Errorf("server.api_port must be between 1 and 65535")
	}
	if c.Weather.CacheTTL <= 0 {
		return fmt.Errorf("weather.cache_ttl must be positive")
	}
	return nil
}
