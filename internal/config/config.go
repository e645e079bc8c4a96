// Package config handles runtime configuration and the .procflow directory
// structure. Every project that uses procflow gets a .procflow/ folder with
// the config file, persisted process state, and logs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ProcflowDir is the name of the directory created in each project.
const ProcflowDir = ".procflow"

// ServerConfig holds the HTTP boundary settings.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Config holds the runtime configuration for procflow.
type Config struct {
	// ProjectDir is the directory procflow was started from.
	ProjectDir string
	// ProcflowProjectDir is ProjectDir/.procflow.
	ProcflowProjectDir string

	// TemplateDir is where YAML process templates are looked up.
	TemplateDir string       `mapstructure:"template_dir"`
	Server      ServerConfig `mapstructure:"server"`
}

// DataDir returns the directory persisted process state lives in.
func (c *Config) DataDir() string {
	return filepath.Join(c.ProcflowProjectDir, "data")
}

// InitDir creates the .procflow directory structure in the given project
// directory. Existing files are left untouched.
func InitDir(projectDir string) error {
	base := filepath.Join(projectDir, ProcflowDir)
	for _, dir := range []string{base, filepath.Join(base, "data"), filepath.Join(base, "logs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

// Load reads .procflow/config.yaml if present, applies defaults, and lets
// PROCFLOW_* environment variables override individual keys.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(projectDir, ProcflowDir))
	v.SetEnvPrefix("PROCFLOW")
	v.AutomaticEnv()

	v.SetDefault("template_dir", "templates")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7000)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config: %w", err)
		}
	}

	cfg := &Config{
		ProjectDir:         projectDir,
		ProcflowProjectDir: filepath.Join(projectDir, ProcflowDir),
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode config: %w", err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("config: server.port %d out of range", cfg.Server.Port)
	}
	if !filepath.IsAbs(cfg.TemplateDir) {
		cfg.TemplateDir = filepath.Join(projectDir, cfg.TemplateDir)
	}
	return cfg, nil
}
