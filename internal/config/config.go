// Package config provides configuration types and loading for leonbridge.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the root configuration struct.
// Top-level groups: Backend, WhatsApp, Server, Mirror.
type Config struct {
	Backend  BackendConfig  `json:"backend"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Server   ServerConfig   `json:"server"`
	Mirror   MirrorConfig   `json:"mirror"`
}

// ---------------------------------------------------------------------------
// Backend – the agent HTTP endpoint
// ---------------------------------------------------------------------------

// BackendConfig groups settings for the agent backend the bridge relays to.
type BackendConfig struct {
	URL     string        `json:"url" envconfig:"BACKEND_URL"`
	Token   string        `json:"token" envconfig:"BACKEND_TOKEN"`
	Source  string        `json:"source" envconfig:"BACKEND_SOURCE"`
	Timeout time.Duration `json:"timeout" envconfig:"BACKEND_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// WhatsApp – session and routing behaviour
// ---------------------------------------------------------------------------

// WhatsAppConfig configures the WhatsApp session and message routing.
type WhatsAppConfig struct {
	AllowFrom       []string      `json:"allowFrom" envconfig:"ALLOW_FROM"`
	ReplyTag        string        `json:"replyTag" envconfig:"REPLY_TAG"`
	MaxChunk        int           `json:"maxChunk" envconfig:"MAX_CHUNK"`
	MaxReconnects   int           `json:"maxReconnects" envconfig:"MAX_RECONNECTS"`
	ReconnectDelay  time.Duration `json:"reconnectDelay" envconfig:"RECONNECT_DELAY"`
	StateDir        string        `json:"stateDir" envconfig:"STATE_DIR"`
}

// ---------------------------------------------------------------------------
// Server – local command API networking
// ---------------------------------------------------------------------------

// ServerConfig contains local command server settings.
type ServerConfig struct {
	Host string `json:"host" envconfig:"HOST"`
	Port int    `json:"port" envconfig:"PORT"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ---------------------------------------------------------------------------
// Mirror – optional Kafka event mirroring
// ---------------------------------------------------------------------------

// MirrorConfig contains settings for the Kafka event mirror.
type MirrorConfig struct {
	Enabled      bool   `json:"enabled" envconfig:"MIRROR_ENABLED"`
	KafkaBrokers string `json:"kafkaBrokers" envconfig:"KAFKA_BROKERS"`
	Topic        string `json:"topic" envconfig:"MIRROR_TOPIC"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     "http://localhost:3000",
			Source:  "whatsapp",
			Timeout: 120 * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			ReplyTag:       "[Leon]",
			MaxChunk:       4000,
			MaxReconnects:  5,
			ReconnectDelay: 10 * time.Second,
			StateDir:       "~/.leonbridge",
		},
		Server: ServerConfig{
			Host: "127.0.0.1", // Secure default
			Port: 18790,
		},
		Mirror: MirrorConfig{
			Enabled: false,
			Topic:   "leonbridge.events",
		},
	}
}

// ConfigPath returns the location of config.json.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".leonbridge", "config.json"), nil
}

// Load reads config.json (if present), applies environment overrides and
// fills in defaults for anything left unset.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	path, err := ConfigPath()
	if err == nil {
		if data, readErr := os.ReadFile(path); readErr == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config at %s: %w", path, err)
			}
		}
	}

	if err := envconfig.Process("leonbridge", cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	applyFallbacks(cfg)
	cfg.WhatsApp.StateDir = ExpandHome(cfg.WhatsApp.StateDir)
	return cfg, nil
}

// Save writes the config to config.json, creating the directory if needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// applyFallbacks re-establishes defaults for zero values so a sparse
// config.json does not disable chunking or reconnects by accident.
func applyFallbacks(cfg *Config) {
	def := DefaultConfig()
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = def.Backend.Timeout
	}
	if cfg.Backend.Source == "" {
		cfg.Backend.Source = def.Backend.Source
	}
	if cfg.WhatsApp.ReplyTag == "" {
		cfg.WhatsApp.ReplyTag = def.WhatsApp.ReplyTag
	}
	if cfg.WhatsApp.MaxChunk <= 0 {
		cfg.WhatsApp.MaxChunk = def.WhatsApp.MaxChunk
	}
	if cfg.WhatsApp.MaxReconnects <= 0 {
		cfg.WhatsApp.MaxReconnects = def.WhatsApp.MaxReconnects
	}
	if cfg.WhatsApp.ReconnectDelay <= 0 {
		cfg.WhatsApp.ReconnectDelay = def.WhatsApp.ReconnectDelay
	}
	if cfg.WhatsApp.StateDir == "" {
		cfg.WhatsApp.StateDir = def.WhatsApp.StateDir
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Mirror.Topic == "" {
		cfg.Mirror.Topic = def.Mirror.Topic
	}
}

// ExpandHome expands a leading ~ to the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
