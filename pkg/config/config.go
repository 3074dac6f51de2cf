package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Server contains the HTTP API settings.
type Server struct {
	Bind            string   `toml:"bind"`
	AuthOptional    bool     `toml:"auth_optional"`
	JWTSecret       string   `toml:"jwt_secret"`
	TokenTTLMinutes int      `toml:"token_ttl_minutes"`
	APIKeys         []string `toml:"api_keys"`
}

// Tools contains paths to the external media binaries. Empty values mean
// the binaries are resolved from PATH.
type Tools struct {
	FFmpegPath  string `toml:"ffmpeg_path"`
	FFprobePath string `toml:"ffprobe_path"`
}

// Store contains the job store settings.
type Store struct {
	Driver string `toml:"driver"` // "memory" or "sqlite"
	Path   string `toml:"path"`   // sqlite database file
}

// Staging contains scratch space settings for remote inputs and outputs.
type Staging struct {
	WorkDir string `toml:"work_dir"`
}

// Config encapsulates all configuration values for mediaforge.
type Config struct {
	Server  Server  `toml:"server"`
	Tools   Tools   `toml:"tools"`
	Store   Store   `toml:"store"`
	Staging Staging `toml:"staging"`
}

const (
	defaultBind            = "127.0.0.1:8080"
	defaultTokenTTLMinutes = 60
	defaultStoreDriver     = "memory"
	defaultStorePath       = "~/.local/share/mediaforge/jobs.db"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			Bind: defaultBind,
			// The credential-free default binds loopback only, so
			// unauthenticated access is allowed until credentials are set.
			AuthOptional:    true,
			TokenTTLMinutes: defaultTokenTTLMinutes,
		},
		Store: Store{
			Driver: defaultStoreDriver,
			Path:   defaultStorePath,
		},
	}
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediaforge/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file
// yields the defaults. The returned bool reports whether a file was found.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}

	return &cfg, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediaforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))

	for _, field := range []*string{&c.Store.Path, &c.Staging.WorkDir, &c.Tools.FFmpegPath, &c.Tools.FFprobePath} {
		if strings.TrimSpace(*field) == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	return nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Bind == "" {
		return errors.New("server.bind must be set")
	}
	if c.Server.TokenTTLMinutes <= 0 {
		return errors.New("server.token_ttl_minutes must be positive")
	}
	if !c.Server.AuthOptional && c.Server.JWTSecret == "" && len(c.Server.APIKeys) == 0 {
		return errors.New("server.jwt_secret or server.api_keys must be set unless server.auth_optional is true")
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store.path must be set when store.driver is sqlite")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", "memory", "sqlite", c.Store.Driver)
	}

	return nil
}

// EnsureDirectories creates the directories the server needs at startup.
func (c *Config) EnsureDirectories() error {
	if c.Store.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(c.Store.Path), 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}
	if c.Staging.WorkDir != "" {
		if err := os.MkdirAll(c.Staging.WorkDir, 0o755); err != nil {
			return fmt.Errorf("create work directory %q: %w", c.Staging.WorkDir, err)
		}
	}
	return nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
