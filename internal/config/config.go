// Package config loads and validates the bot's runtime configuration
// from a settings file and BOT_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	TransportLongPoll = "longpoll"
	TransportWebhook  = "webhook"

	StorageVolatile = "volatile"
	StorageDurable  = "durable"
)

// Config is the full runtime configuration of the bot process.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Model    ModelConfig    `mapstructure:"model"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type TelegramConfig struct {
	Token         string `mapstructure:"token"`
	APIBase       string `mapstructure:"api_base"`
	PollTimeout   int    `mapstructure:"poll_timeout"`
	Transport     string `mapstructure:"transport"`
	WebhookListen string `mapstructure:"webhook_listen"`
	WebhookPath   string `mapstructure:"webhook_path"`
}

type ModelConfig struct {
	URL       string `mapstructure:"url"`
	Name      string `mapstructure:"name"`
	APIKey    string `mapstructure:"api_key"`
	Timeout   int    `mapstructure:"timeout"`    // seconds, overall per-call deadline
	MaxTokens int    `mapstructure:"max_tokens"` // 0 lets the endpoint decide
}

type ChatConfig struct {
	HistoryWindow      int     `mapstructure:"history_window"`
	DefaultTemperature float64 `mapstructure:"default_temperature"`
}

type StorageConfig struct {
	Mode string `mapstructure:"mode"`
	Path string `mapstructure:"path"` // durable mode only
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given file, or from
// settings.{yaml,toml,...} in . and ./configs when path is empty,
// applies environment overrides and validates the result. Running with
// no config file at all is fine: defaults plus environment variables
// cover a complete setup.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("settings")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Every key gets a default, including the empty ones: viper only maps
// BOT_* environment variables onto keys it already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("telegram.transport", TransportLongPoll)
	v.SetDefault("telegram.webhook_listen", ":8443")
	v.SetDefault("telegram.webhook_path", "/telegram/webhook")

	v.SetDefault("model.url", "http://localhost:1234/v1")
	v.SetDefault("model.name", "llama-3")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.timeout", 120)
	v.SetDefault("model.max_tokens", 0)

	v.SetDefault("chat.history_window", 20)
	v.SetDefault("chat.default_temperature", 0.7)

	v.SetDefault("storage.mode", StorageVolatile)
	v.SetDefault("storage.path", "db.sqlite")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (set BOT_TELEGRAM_TOKEN or add it to the config file)")
	}
	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram.poll_timeout must not be negative, got %d", c.Telegram.PollTimeout)
	}
	switch c.Telegram.Transport {
	case TransportLongPoll:
	case TransportWebhook:
		if strings.TrimSpace(c.Telegram.WebhookListen) == "" {
			return fmt.Errorf("telegram.webhook_listen is required when telegram.transport=%s", TransportWebhook)
		}
		if !strings.HasPrefix(c.Telegram.WebhookPath, "/") {
			return fmt.Errorf("telegram.webhook_path must start with /, got %q", c.Telegram.WebhookPath)
		}
	default:
		return fmt.Errorf("telegram.transport must be %q or %q, got %q", TransportLongPoll, TransportWebhook, c.Telegram.Transport)
	}
	if strings.TrimSpace(c.Model.URL) == "" {
		return fmt.Errorf("model.url is required")
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("model.timeout must be positive, got %d", c.Model.Timeout)
	}
	if c.Chat.HistoryWindow <= 0 {
		return fmt.Errorf("chat.history_window must be positive, got %d", c.Chat.HistoryWindow)
	}
	if !(c.Chat.DefaultTemperature >= 0.0 && c.Chat.DefaultTemperature <= 1.0) {
		return fmt.Errorf("chat.default_temperature must be within [0.0, 1.0], got %v", c.Chat.DefaultTemperature)
	}
	switch c.Storage.Mode {
	case StorageVolatile:
	case StorageDurable:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required when storage.mode=%s", StorageDurable)
		}
	default:
		return fmt.Errorf("storage.mode must be %q or %q, got %q", StorageVolatile, StorageDurable, c.Storage.Mode)
	}
	return nil
}
