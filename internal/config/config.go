package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	ServiceName    = "mt5-gateway"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

type EnvConfig struct {
	Env                     string              `mapstructure:"env"`
	Log                     LogConfig           `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration       `mapstructure:"graceful_shutdown_timeout"`
	Port                    map[string]string   `mapstructure:"port"`
	Venue                   VenueConfig         `mapstructure:"venue"`
	Broadcast               BroadcastConfig     `mapstructure:"broadcast"`
	NatsJetstream           NatsJetstreamConfig `mapstructure:"nats_jetstream"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type VenueConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Login    int64         `mapstructure:"login"`
	Password string        `mapstructure:"password"`
	Server   string        `mapstructure:"server"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Paper    bool          `mapstructure:"paper"`
}

type BroadcastConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// NatsJetstreamConfig is optional: an empty url disables tick republishing.
type NatsJetstreamConfig struct {
	URL             string        `mapstructure:"url"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}
