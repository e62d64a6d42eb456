package config

import (
	"crypto/rand"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

var current atomic.Pointer[Config]

var (
	onReloadMu        sync.Mutex
	onReloadCallbacks []func(*Config)
)

// Get returns the current in-memory config (hot-reloaded when the file changes).
func Get() *Config { return current.Load() }

// Set sets the current in-memory config. Used at startup and by the file watcher.
func Set(c *Config) {
	if c != nil {
		current.Store(c)
	}
}

// RegisterOnReload registers a callback that runs after config is hot-reloaded.
func RegisterOnReload(fn func(*Config)) {
	onReloadMu.Lock()
	defer onReloadMu.Unlock()
	onReloadCallbacks = append(onReloadCallbacks, fn)
}

func notifyReload(cfg *Config) {
	onReloadMu.Lock()
	cb := make([]func(*Config), len(onReloadCallbacks))
	copy(cb, onReloadCallbacks)
	onReloadMu.Unlock()
	for _, fn := range cb {
		fn(cfg)
	}
}

//go:embed config.example.yaml
var exampleConfigBytes []byte

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	resolveRelativePaths(cfg, filepath.Dir(path))
	return cfg, nil
}

// LoadFromExample unmarshals the embedded config.example.yaml as the default config.
func LoadFromExample(baseDir string) (*Config, error) {
	cfg, err := parse(exampleConfigBytes)
	if err != nil {
		return nil, fmt.Errorf("example config: %w", err)
	}
	resolveRelativePaths(cfg, baseDir)
	return cfg, nil
}

func parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	// Unset keys keep their defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyLoadDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyLoadDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Backend.Action == "" {
		cfg.Backend.Action = def.Backend.Action
	}
	if cfg.Backend.TokenParam == "" {
		cfg.Backend.TokenParam = def.Backend.TokenParam
	}
	if cfg.Backend.HandshakeTimeout <= 0 {
		cfg.Backend.HandshakeTimeout = def.Backend.HandshakeTimeout
	}
	if cfg.Exchange.Timeout <= 0 {
		cfg.Exchange.Timeout = def.Exchange.Timeout
	}
	if cfg.Gateway.Port <= 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.SweepSchedule == "" {
		cfg.Gateway.SweepSchedule = def.Gateway.SweepSchedule
	}
	if cfg.Archive.Driver == "" {
		cfg.Archive.Driver = ArchiveNone
	}
	if cfg.Locale == "" {
		cfg.Locale = def.Locale
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

// Validate checks the fields nothing else can default.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || c.Backend.URL == "" {
		return fmt.Errorf("backend.url %q is not a valid URL", c.Backend.URL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("backend.url scheme must be ws or wss, got %q", u.Scheme)
	}
	switch c.Archive.Driver {
	case ArchiveNone, ArchiveFile:
	case ArchiveRedis:
		if c.Archive.RedisURL == "" {
			return fmt.Errorf("archive.redisURL is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown archive.driver %q", c.Archive.Driver)
	}
	return nil
}

func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func resolveRelativePaths(cfg *Config, baseDir string) {
	if cfg.Identity.TokenFile != "" && !filepath.IsAbs(cfg.Identity.TokenFile) {
		cfg.Identity.TokenFile = filepath.Join(baseDir, cfg.Identity.TokenFile)
	}
	if cfg.Archive.Dir != "" && !filepath.IsAbs(cfg.Archive.Dir) {
		cfg.Archive.Dir = filepath.Join(baseDir, cfg.Archive.Dir)
	}
}

// ResolveHome returns the BERRYCHAT_HOME directory.
// Priority: BERRYCHAT_HOME env > ~/.berrychat/
func ResolveHome() string {
	if home := os.Getenv("BERRYCHAT_HOME"); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".berrychat"
	}
	return filepath.Join(userHome, ".berrychat")
}

// ResolveConfigPath finds the config file.
// Priority: --config flag > BERRYCHAT_HOME/config.yaml
func ResolveConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	return filepath.Join(ResolveHome(), "config.yaml")
}

var pathOverride atomic.Pointer[string]

// SetPath pins the process-wide config path (the --config flag).
func SetPath(p string) {
	if p != "" {
		pathOverride.Store(&p)
	}
}

// Path returns the process-wide config file path.
// All components should use this instead of receiving the path by parameter.
func Path() string {
	if p := pathOverride.Load(); p != nil {
		return *p
	}
	return ResolveConfigPath("")
}

// GenerateToken returns a random hex token (32 bytes = 64 chars) for gateway auth.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "fallback-token-please-set-gateway-auth-token-in-config"
	}
	return hex.EncodeToString(b)
}

// CreateFromExample writes the embedded config.example.yaml to targetPath with the gateway token placeholder replaced.
func CreateFromExample(targetPath string) error {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	content := strings.ReplaceAll(string(exampleConfigBytes), "${BERRYCHAT_GATEWAY_TOKEN}", GenerateToken())
	if err := os.WriteFile(targetPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Write marshals cfg to YAML and writes it to path. Creates parent directory if needed.
func Write(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
