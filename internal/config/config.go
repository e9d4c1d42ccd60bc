package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Version    string           `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Poller     PollerConfig     `yaml:"poller"`
	DeviceFlow DeviceFlowConfig `yaml:"device_flow"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Storage    StorageConfig    `yaml:"storage"`
}

// ServerConfig contains the ops HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// TelegramConfig contains the bot configuration.
type TelegramConfig struct {
	BotToken    string          `yaml:"bot_token"`
	AdminChatID int64           `yaml:"admin_chat_id"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains outbound message rate limiting configuration.
type RateLimitConfig struct {
	MessagesPerMinute int `yaml:"messages_per_minute"`
}

// GoogleConfig locates the OAuth client credentials and requested scopes.
type GoogleConfig struct {
	CredentialsFile string   `yaml:"credentials_file"`
	Scopes          []string `yaml:"scopes"`
}

// PollerConfig contains the poll-and-notify engine configuration.
type PollerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxResults int64         `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DeviceFlowConfig contains OAuth device authorization settings.
type DeviceFlowConfig struct {
	DeviceCodeURL     string        `yaml:"device_code_url"`
	TokenURL          string        `yaml:"token_url"`
	DefaultInterval   time.Duration `yaml:"default_interval"`
	SlowDownIncrement time.Duration `yaml:"slow_down_increment"`
	PollCeiling       time.Duration `yaml:"poll_ceiling"`
}

// SummarizerConfig contains the summarization service configuration.
type SummarizerConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig locates the flat-file data directory.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// DefaultGmailScopes are requested when the config does not override scopes.
var DefaultGmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.modify",
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	if err := c.Google.Validate(); err != nil {
		return fmt.Errorf("google: %w", err)
	}

	if err := c.Poller.Validate(); err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	if err := c.DeviceFlow.Validate(); err != nil {
		return fmt.Errorf("device_flow: %w", err)
	}

	if err := c.Summarizer.Validate(); err != nil {
		return fmt.Errorf("summarizer: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	return nil
}

// Validate validates Telegram configuration.
func (t *TelegramConfig) Validate() error {
	if t.BotToken == "" {
		return fmt.Errorf("bot_token is required")
	}
	if t.AdminChatID == 0 {
		return fmt.Errorf("admin_chat_id is required")
	}
	if t.RateLimit.MessagesPerMinute <= 0 {
		t.RateLimit.MessagesPerMinute = 20
	}
	return nil
}

// Validate validates Google client configuration.
func (g *GoogleConfig) Validate() error {
	if g.CredentialsFile == "" {
		g.CredentialsFile = "credentials.json"
	}
	if len(g.Scopes) == 0 {
		g.Scopes = append([]string(nil), DefaultGmailScopes...)
	}
	return nil
}

// Validate validates poller configuration.
func (p *PollerConfig) Validate() error {
	if p.Interval <= 0 {
		p.Interval = time.Minute
	}
	if p.MaxResults <= 0 {
		p.MaxResults = 10
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	return nil
}

// Validate validates device flow configuration.
func (d *DeviceFlowConfig) Validate() error {
	if d.DeviceCodeURL == "" {
		d.DeviceCodeURL = "https://oauth2.googleapis.com/device/code"
	}
	if d.TokenURL == "" {
		d.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if d.DefaultInterval <= 0 {
		d.DefaultInterval = 5 * time.Second
	}
	if d.SlowDownIncrement <= 0 {
		d.SlowDownIncrement = 2 * time.Second
	}
	if d.PollCeiling <= 0 {
		d.PollCeiling = 600 * time.Second
	}
	return nil
}

// Validate validates summarizer configuration.
func (s *SummarizerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.BaseURL == "" {
		s.BaseURL = "http://localhost:11434"
	}
	if s.Model == "" {
		s.Model = "sum"
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	return nil
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	if s.DataDir == "" {
		s.DataDir = "./data"
	}
	return nil
}
