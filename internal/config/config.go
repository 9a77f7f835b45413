package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Services ServicesConfig `yaml:"services"`
	Presence PresenceConfig `yaml:"presence"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	ServiceURL string `yaml:"service_url"`
	SecretKey  string `yaml:"secret_key"`
}

type ServicesConfig struct {
	UserServiceURL string `yaml:"user_service_url"`
}

// PresenceConfig tunes the per-session presence machinery. Durations are
// expressed in the unit named by the field suffix.
type PresenceConfig struct {
	UpdateIntervalSec    int    `yaml:"update_interval_sec"`
	AwayTimeoutSec       int    `yaml:"away_timeout_sec"`
	PresenceDebounceMs   int    `yaml:"presence_debounce_ms"`
	CursorDebounceMs     int    `yaml:"cursor_debounce_ms"`
	TrackCursor          bool   `yaml:"track_cursor"`
	ReconnectInitialMs   int    `yaml:"reconnect_initial_ms"`
	ReconnectMaxMs       int    `yaml:"reconnect_max_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	CleanupTimeoutSec    int    `yaml:"cleanup_timeout_sec"`
	OfflineAfterSec      int    `yaml:"offline_after_sec"`
	ReaperSchedule       string `yaml:"reaper_schedule"`
}

func (p PresenceConfig) UpdateInterval() time.Duration {
	return time.Duration(p.UpdateIntervalSec) * time.Second
}

func (p PresenceConfig) AwayTimeout() time.Duration {
	return time.Duration(p.AwayTimeoutSec) * time.Second
}

func (p PresenceConfig) PresenceDebounce() time.Duration {
	return time.Duration(p.PresenceDebounceMs) * time.Millisecond
}

func (p PresenceConfig) CursorDebounce() time.Duration {
	return time.Duration(p.CursorDebounceMs) * time.Millisecond
}

func (p PresenceConfig) ReconnectInitialDelay() time.Duration {
	return time.Duration(p.ReconnectInitialMs) * time.Millisecond
}

func (p PresenceConfig) ReconnectMaxDelay() time.Duration {
	return time.Duration(p.ReconnectMaxMs) * time.Millisecond
}

func (p PresenceConfig) CleanupTimeout() time.Duration {
	return time.Duration(p.CleanupTimeoutSec) * time.Second
}

func (p PresenceConfig) OfflineAfter() time.Duration {
	return time.Duration(p.OfflineAfterSec) * time.Second
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     8004,
			BasePath: "/api/presence",
			Env:      "dev",
			LogLevel: "debug",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		Presence: PresenceConfig{
			UpdateIntervalSec:    30,
			AwayTimeoutSec:       120,
			PresenceDebounceMs:   1000,
			CursorDebounceMs:     50,
			TrackCursor:          false,
			ReconnectInitialMs:   1000,
			ReconnectMaxMs:       30000,
			MaxReconnectAttempts: 5,
			CleanupTimeoutSec:    5,
			OfflineAfterSec:      600,
			ReaperSchedule:       "@every 1m",
		},
	}

	// Load from yaml file if exists
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Override with environment variables
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if basePath := os.Getenv("SERVER_BASE_PATH"); basePath != "" {
		cfg.Server.BasePath = basePath
	}
	if env := os.Getenv("ENV"); env != "" {
		cfg.Server.Env = env
	}
	if env := os.Getenv("NODE_ENV"); env != "" {
		cfg.Server.Env = env
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			cfg.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if authURL := os.Getenv("AUTH_SERVICE_URL"); authURL != "" {
		cfg.Auth.ServiceURL = authURL
	}
	if secretKey := os.Getenv("SECRET_KEY"); secretKey != "" {
		cfg.Auth.SecretKey = secretKey
	}
	if userURL := os.Getenv("USER_SERVICE_URL"); userURL != "" {
		cfg.Services.UserServiceURL = userURL
	}
	if v := os.Getenv("PRESENCE_UPDATE_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Presence.UpdateIntervalSec = n
		}
	}
	if v := os.Getenv("PRESENCE_AWAY_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Presence.AwayTimeoutSec = n
		}
	}
	if v := os.Getenv("PRESENCE_TRACK_CURSOR"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Presence.TrackCursor = b
		}
	}
	if v := os.Getenv("PRESENCE_MAX_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Presence.MaxReconnectAttempts = n
		}
	}
	if v := os.Getenv("PRESENCE_REAPER_SCHEDULE"); v != "" {
		cfg.Presence.ReaperSchedule = v
	}

	return cfg, nil
}
