package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/CTAG07/Nepenthes/pkg/ejs"
	"github.com/natefinch/atomic"
	"github.com/robfig/cron/v3"
)

// ServerConfig holds the configuration for the render service.
type ServerConfig struct {
	ApiAddr            string `json:"api_addr"`
	LogLevel           string `json:"log_level"`
	DatabasePath       string `json:"database_path"`
	TemplateDir        string `json:"template_dir"`
	WatchTemplates     bool   `json:"watch_templates"`
	CacheClearSchedule string `json:"cache_clear_schedule"` // Standard cron expression, empty disables
	MetricsEnabled     bool   `json:"metrics_enabled"`
	MaxBodyBytes       int64  `json:"max_body_bytes"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server *ServerConfig `json:"server_config"`
	Render *ejs.Config   `json:"render_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:            ":7380",
		LogLevel:           "info",
		DatabasePath:       "./data/nepenthes.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		TemplateDir:        "./data/templates",
		WatchTemplates:     false,
		CacheClearSchedule: "",
		MetricsEnabled:     true,
		MaxBodyBytes:       1 << 20,
	}
}

// DefaultConfig returns a complete configuration with default values.
func DefaultConfig() *Config {
	render := ejs.DefaultConfig()
	return &Config{
		Server: DefaultServerConfig(),
		Render: &render,
	}
}

// Validate reports configuration values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server == nil {
		return errors.New("missing server_config")
	}
	if c.Render == nil {
		return errors.New("missing render_config")
	}
	if c.Server.ApiAddr == "" {
		return errors.New("api_addr must not be empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.CacheClearSchedule != "" {
		if _, err := cron.ParseStandard(c.Server.CacheClearSchedule); err != nil {
			return fmt.Errorf("invalid cache_clear_schedule %q: %w", c.Server.CacheClearSchedule, err)
		}
	}
	return nil
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err = writeConfig(path, config); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return config, nil
}

func writeConfig(path string, config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigManager handles thread-safe access to configuration and pushes
// render limits to the live renderer.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
	logger     *slog.Logger
	renderer   *ejs.Renderer
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	return &ConfigManager{
		config:     cfg,
		configPath: path,
		// Log to stdout before the application-specific logger is set.
		logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{})),
	}, nil
}

// SetRenderer registers the renderer that receives render limit updates.
func (cm *ConfigManager) SetRenderer(r *ejs.Renderer) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.renderer = r
	if r != nil {
		r.SetConfig(*cm.config.Render)
	}
}

// SetLogger replaces the manager's logger.
func (cm *ConfigManager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	server := *cm.config.Server
	render := *cm.config.Render
	return Config{Server: &server, Render: &render}
}

// Update validates the new configuration, applies the render limits, and
// saves it to disk. Server settings other than render limits take effect on
// the next restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if err := writeConfig(cm.configPath, &newConfig); err != nil {
		return err
	}

	server := *newConfig.Server
	render := *newConfig.Render
	cm.config = &Config{Server: &server, Render: &render}
	if cm.renderer != nil {
		cm.renderer.SetConfig(render)
	}
	cm.logger.Info("Configuration updated", "path", cm.configPath, "max_loop_iterations", render.MaxLoopIterations)
	return nil
}
