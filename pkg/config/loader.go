package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CLASSROOM"

// Load reads configuration from an optional .env file, a YAML file and
// environment variables, in increasing order of precedence.
func Load(logger *slog.Logger, fileName string, searchPaths ...string) (*Config, error) {
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}

	for _, dir := range searchPaths {
		dotEnv := filepath.Join(dir, ".env")
		if _, err := os.Stat(dotEnv); err == nil {
			if err := godotenv.Load(dotEnv); err != nil {
				return nil, err
			}
			logger.Debug("Loaded env file", slog.String("path", dotEnv))
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	for _, dir := range searchPaths {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	cfg.Realtime.URL = strings.TrimRight(cfg.Realtime.URL, "/")
	return &cfg, nil
}

// Default returns the configuration Load would produce with no file and no env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.baseURL", APIBaseURL)
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.uploadTimeout", "120s")
	v.SetDefault("api.redirectDelay", "1500ms")

	v.SetDefault("realtime.url", RealtimeURL)
	v.SetDefault("realtime.transports", []string{"websocket", "polling"})
	v.SetDefault("realtime.reconnectAttempts", 5)
	v.SetDefault("realtime.reconnectDelay", "1s")
	v.SetDefault("realtime.dialTimeout", "10s")
	v.SetDefault("realtime.readTimeout", "0s")
	v.SetDefault("realtime.pollTimeout", "25s")

	v.SetDefault("session.storePath", defaultStorePath())
	v.SetDefault("session.storageKey", "token")

	v.SetDefault("routes.login", "/login")
	v.SetDefault("routes.register", "/register")
	v.SetDefault("routes.landing", "/dashboard")

	v.SetDefault("log.level", "info")

	v.SetDefault("stub.address", ":5000")
	v.SetDefault("stub.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("stub.tokenTTL", "24h")
	v.SetDefault("stub.bcryptCost", 10)
	v.SetDefault("stub.seedDemoUsers", true)
	v.SetDefault("stub.pollTimeout", "25s")
	v.SetDefault("stub.pollSessionTTL", "60s")
	v.SetDefault("stub.connectionLimit.maxPerIP", 0)
	v.SetDefault("stub.connectionLimit.mode", "reject")
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "classroom", "session.json")
}
