// Package config loads service settings with viper.
//
// Precedence, highest first: command-line flags bound by the caller,
// environment (YOHANNS_SERVER_PORT style, plus the legacy names from the
// storefront's .env such as SUPABASE_URL), the config file, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
)

// Config is the resolved service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Supabase  SupabaseConfig  `mapstructure:"supabase"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Assign    AssignConfig    `mapstructure:"assign"`
	Media     MediaConfig     `mapstructure:"media"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type SupabaseConfig struct {
	URL            string `mapstructure:"url"`
	ServiceRoleKey string `mapstructure:"service_role_key"`
	JWTSecret      string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type AssignConfig struct {
	// MaxOpenTasks caps pending+in_progress tasks per artist; 0 = no cap.
	MaxOpenTasks int `mapstructure:"max_open_tasks"`
}

type MediaConfig struct {
	// Bucket is the Supabase Storage bucket used with the supabase driver.
	Bucket string `mapstructure:"bucket"`
	// Dir holds uploads with the sqlite driver.
	Dir string `mapstructure:"dir"`
	// PublicURL prefixes local object keys; defaults to /media.
	PublicURL string `mapstructure:"public_url"`
}

// legacyEnv maps keys to the variable names used by the Express server.
var legacyEnv = map[string]string{
	"server.port":               "PORT",
	"supabase.url":              "SUPABASE_URL",
	"supabase.service_role_key": "SUPABASE_SERVICE_ROLE_KEY",
	"supabase.jwt_secret":       "SUPABASE_JWT_SECRET",
	"database.url":              "DATABASE_URL",
	"anthropic.api_key":         "ANTHROPIC_API_KEY",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "yohanns.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("assign.max_open_tasks", 0)
	v.SetDefault("media.bucket", "yohanns-uploads")
	v.SetDefault("media.dir", "uploads")
	v.SetDefault("media.public_url", "/media")
}

// NewViper returns a viper instance with defaults, env bindings and the
// config search path. file, when set, is used instead of searching.
func NewViper(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("YOHANNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		_ = v.BindEnv(key, "YOHANNS_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("yohanns")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "yohanns"))
		}
	}
	return v
}

// Load reads the config file if present and decodes v into a Config.
// A missing file is not an error when searching.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a validated Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got %d)", c.Server.Port)
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case DriverSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceRoleKey == "" {
			return fmt.Errorf("supabase.url and supabase.service_role_key are required for the supabase driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q (want sqlite or supabase)", c.Store.Driver)
	}
	if c.Store.Driver == DriverSupabase && c.Media.Bucket == "" {
		return fmt.Errorf("media.bucket is required for the supabase driver")
	}
	if c.Store.Driver == DriverSQLite && c.Media.Dir == "" {
		return fmt.Errorf("media.dir is required for the sqlite driver")
	}
	if c.Assign.MaxOpenTasks < 0 {
		return fmt.Errorf("assign.max_open_tasks must not be negative")
	}
	return nil
}

// Watch calls onChange with the re-decoded config whenever the config file
// changes. Invalid edits are reported through onError and ignored.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
