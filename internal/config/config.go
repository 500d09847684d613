package config

import "time"

// Config represents the configuration of the example program
type Config struct {
	URI         string        `mapstructure:"uri"`
	Server      ServerConfig  `mapstructure:"server"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Debug       bool          `mapstructure:"debug"`
	InsecureTLS bool          `mapstructure:"insecure_tls"`
	LogLevel    string        `mapstructure:"log_level"`
}

// ServerConfig holds the connection settings of a 3x-ui panel
type ServerConfig struct {
	Scheme       string `mapstructure:"scheme"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	BasePath     string `mapstructure:"base_path"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	APIURL       string `mapstructure:"api_url"`
	SubURLPrefix string `mapstructure:"sub_url_prefix"`
}
