package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"xui-api/internal/constants"
	xerrors "xui-api/internal/errors"
)

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("XUI_CACHE_TTL", strconv.Itoa(constants.DefaultCacheTTL))
	v.SetDefault("XUI_TIMEOUT", strconv.Itoa(constants.DefaultTimeout))
	v.SetDefault("XUI_DEBUG", false)
	v.SetDefault("XUI_INSECURE_TLS", false)

	// Define environment variables
	_ = v.BindEnv("XUI_URI")
	_ = v.BindEnv("XUI_SUB_URL_PREFIX")

	uri := v.GetString("XUI_URI")
	if strings.TrimSpace(uri) == "" {
		return nil, &xerrors.ConfigError{Section: "server", Message: "XUI_URI is required"}
	}

	server, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	server.SubURLPrefix = strings.TrimRight(strings.TrimSpace(v.GetString("XUI_SUB_URL_PREFIX")), "/")

	cacheTTL, err := parseSeconds(v.GetString("XUI_CACHE_TTL"))
	if err != nil {
		return nil, &xerrors.ConfigError{Section: "cache", Message: fmt.Sprintf("invalid XUI_CACHE_TTL: %v", err)}
	}

	timeout, err := parseSeconds(v.GetString("XUI_TIMEOUT"))
	if err != nil {
		return nil, &xerrors.ConfigError{Section: "server", Message: fmt.Sprintf("invalid XUI_TIMEOUT: %v", err)}
	}

	cfg := &Config{
		URI:         strings.TrimSpace(uri),
		Server:      server,
		CacheTTL:    cacheTTL,
		Timeout:     timeout,
		Debug:       v.GetBool("XUI_DEBUG"),
		InsecureTLS: v.GetBool("XUI_INSECURE_TLS"),
		LogLevel:    v.GetString("LOG_LEVEL"),
	}

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseSeconds accepts either a bare number of seconds or a Go duration string
func parseSeconds(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if seconds, err := strconv.Atoi(text); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(text)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.CacheTTL < 0 {
		return &xerrors.ConfigError{Section: "cache", Message: "cache TTL cannot be negative"}
	}
	if cfg.Timeout <= 0 {
		return &xerrors.ConfigError{Section: "server", Message: "timeout must be positive"}
	}
	if cfg.Server.Password == "" {
		return &xerrors.ConfigError{Section: "server", Message: "password is required"}
	}
	return nil
}
