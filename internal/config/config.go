package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

const (
	configDirName = "coach"
	defaultConfig = ".config"
	loadTimeout   = 10 * time.Second

	// EndpointEnv overrides the configured endpoint.
	EndpointEnv = "COACH_ENDPOINT"
)

var configFiles = []string{
	"config.yaml",
	"config.yml",
}

// Config represents the structure of the configuration file used by the application.
type Config struct {
	Endpoint        string            `yaml:"endpoint" default:"http://localhost:3000/api/chat"`
	Headers         map[string]string `yaml:"headers" default:"{}"`
	FallbackMessage string            `yaml:"fallback_message" default:"Sorry, something went wrong. Please try again."`
	Render          RenderConfig      `yaml:"render"`
	Log             LogConfig         `yaml:"log"`
	Prompts         map[string]string `yaml:"prompts" default:"{}"`
}

// RenderConfig controls terminal output.
type RenderConfig struct {
	Format string `yaml:"format" default:"markdown"`
	Wrap   int    `yaml:"wrap" default:"120"`
}

// LogConfig controls diagnostics written to stderr.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"pretty"`
}

// configResult is a struct used to return the configuration and any error that occurs during loading.
type configResult struct {
	config *Config
	err    error
}

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Only reachable with a malformed default tag.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Dir returns the configuration directory: $XDG_CONFIG_HOME/coach, then
// %LOCALAPPDATA%\coach on Windows, then ~/.config/coach.
func Dir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, configDirName), nil
	}

	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); isValidDir(local) {
			return filepath.Join(local, configDirName), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, defaultConfig, configDirName), nil
}

// isValidDir checks if a given path is a valid directory.
func isValidDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// LoadConfig builds the configuration in layers: struct defaults, then the
// first config file found in Dir, then environment overrides. It gives up
// after ten seconds or when ctx ends.
func LoadConfig(ctx context.Context) (*Config, error) {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	loaded := make(chan configResult, 1)
	go func() {
		cfg, err := load()
		loaded <- configResult{config: cfg, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("loading config: %w", ctx.Err())
	case r := <-loaded:
		return r.config, r.err
	}
}

func load() (*Config, error) {
	cfg := NewDefaultConfig()

	path, err := findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.merge(path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", filepath.Base(path), err)
		}
	}

	cfg.overrideFromEnv()
	return cfg, nil
}

// findConfigFile returns the first config file present in Dir, or "" when
// there is none.
func findConfigFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}

	for _, name := range configFiles {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return path, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}
	return "", nil
}

// merge overlays the YAML file at path. Sections the file leaves partly
// empty get their defaults back.
func (c *Config) merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	return nil
}

func (c *Config) overrideFromEnv() {
	if endpoint := os.Getenv(EndpointEnv); endpoint != "" {
		c.Endpoint = endpoint
	}
}
