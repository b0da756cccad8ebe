package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// RasaConfig holds settings for the conversational backend.
type RasaConfig struct {
	// URL is the base URL of the Rasa server (the REST webhook lives at
	// {URL}/webhooks/rest/webhook and the health check at {URL}/version).
	URL string `mapstructure:"url" yaml:"url"`

	// TimeoutSec is the client-side timeout for a single request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// MailConfig holds mail polling and SMTP settings. IMAP credentials live
// in the store and keyring, not here.
type MailConfig struct {
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// RecentLimit is how many recent messages a mail check retrieves.
	RecentLimit int `mapstructure:"recent_limit" yaml:"recent_limit"`

	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port"`
}

// GatewayConfig holds settings for the HTTP gateway (`mailobot serve`).
type GatewayConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`

	// StaticDir is served at / with an index.html fallback; empty disables
	// static serving.
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`

	// SettingsFile is the file-backed side channel that
	// /api/save_imap_settings writes to.
	SettingsFile string `mapstructure:"settings_file" yaml:"settings_file"`
}

// DisplayConfig holds UI preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Rasa    RasaConfig    `mapstructure:"rasa" yaml:"rasa"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailobot/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailobot", "config.yaml")
}

// DefaultDBPath returns the default path for the local database.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "mailobot.db")
	}
	return filepath.Join(home, ".config", "mailobot", "mailobot.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Rasa: RasaConfig{
			URL:        "http://localhost:5005",
			TimeoutSec: 10,
		},
		Mail: MailConfig{
			PollIntervalSec: 60,
			RecentLimit:     5,
		},
		Gateway: GatewayConfig{
			Listen:       ":3000",
			SettingsFile: "imap_settings.json",
		},
		Display: DisplayConfig{
			Theme: "default",
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("rasa.url", "http://localhost:5005")
	v.SetDefault("rasa.timeout_sec", 10)
	v.SetDefault("mail.poll_interval_sec", 60)
	v.SetDefault("mail.recent_limit", 5)
	v.SetDefault("gateway.listen", ":3000")
	v.SetDefault("gateway.settings_file", "imap_settings.json")
	v.SetDefault("display.theme", "default")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("rasa", cfg.Rasa)
	v.Set("mail", cfg.Mail)
	v.Set("gateway", cfg.Gateway)
	v.Set("display", cfg.Display)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
