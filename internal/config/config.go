package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Debug    bool           `mapstructure:"debug"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AdminAPIKey  string        `mapstructure:"admin_api_key"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type WebhookConfig struct {
	MaxRetries  int         `mapstructure:"max_retries"`
	BulkWorkers int         `mapstructure:"bulk_workers"`
	Sweep       SweepConfig `mapstructure:"sweep"`
}

type SweepConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

type WhatsAppConfig struct {
	// SignatureSecret guards the inbound webhook. Empty means the
	// signature check passes unconditionally.
	SignatureSecret string         `mapstructure:"signature_secret"`
	VerifyToken     string         `mapstructure:"verify_token"`
	AutoReplyText   string         `mapstructure:"auto_reply_text"`
	Outbound        OutboundConfig `mapstructure:"outbound"`
}

type OutboundConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Session       string        `mapstructure:"session"`
	SigningSecret string        `mapstructure:"signing_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("hookwave")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/hookwave")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HOOKWAVE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/hookwave.db")

	viper.SetDefault("webhook.max_retries", 3)
	viper.SetDefault("webhook.bulk_workers", 4)
	viper.SetDefault("webhook.sweep.enabled", false)
	viper.SetDefault("webhook.sweep.schedule", "@every 1m")
	viper.SetDefault("webhook.sweep.batch_size", 100)

	viper.SetDefault("whatsapp.auto_reply_text", "Thanks for your message! We'll get back to you shortly.")
	viper.SetDefault("whatsapp.outbound.enabled", false)
	viper.SetDefault("whatsapp.outbound.base_url", "http://localhost:3000")
	viper.SetDefault("whatsapp.outbound.session", "default")
	viper.SetDefault("whatsapp.outbound.timeout", 15*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("debug", false)
}
