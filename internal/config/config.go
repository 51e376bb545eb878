// Package config loads and validates vault-search configuration.
//
// Precedence, lowest to highest: hardcoded defaults, <data>/config.yaml,
// VAULT_SEARCH_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vaultsearch/vaultsearch/internal/errors"
)

// Config is the complete vault-search configuration.
type Config struct {
	// VaultPath is the root of the markdown vault to index.
	VaultPath string `yaml:"vault_path"`

	// ExcludeDirs are directory names skipped anywhere in the walk.
	ExcludeDirs []string `yaml:"exclude_dirs"`

	Search   SearchConfig   `yaml:"search"`
	Provider ProviderConfig `yaml:"provider"`
	Daemon   DaemonConfig   `yaml:"daemon"`

	LogLevel string `yaml:"log_level"`

	// dataDir is resolved at load time, not persisted in the file.
	dataDir string
}

// SearchConfig tunes the hybrid retrieval pipeline.
type SearchConfig struct {
	// TopN is the default result count when the query does not set one.
	TopN int `yaml:"top_n"`

	// LexicalWeight and SemanticWeight steer rank fusion.
	// Must sum to 1.0.
	LexicalWeight  float64 `yaml:"lexical_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`

	// RRFConstant is the fusion smoothing parameter k.
	RRFConstant int `yaml:"rrf_constant"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// ProviderConfig selects and tunes the embedding/rerank provider.
type ProviderConfig struct {
	// Name selects the provider: "ollama", "static", or empty for
	// auto-detection (ollama when reachable, else static).
	Name string `yaml:"name"`

	Model       string `yaml:"model"`
	RerankModel string `yaml:"rerank_model"`

	// Endpoint is the provider base URL. Empty uses the default
	// http://localhost:11434.
	Endpoint string `yaml:"endpoint"`

	BatchSize int           `yaml:"batch_size"`
	Timeout   time.Duration `yaml:"timeout"`

	// CacheSize bounds the query-embedding LRU cache.
	CacheSize int `yaml:"cache_size"`
}

// DaemonConfig tunes the background daemon.
type DaemonConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownGrace   time.Duration `yaml:"shutdown_grace"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	WatchDebounce   time.Duration `yaml:"watch_debounce"`
}

// defaultExcludeDirs are skipped anywhere in the vault walk. Matches the
// hidden state directories Obsidian and common tooling leave behind.
var defaultExcludeDirs = []string{
	".git",
	".obsidian",
	".trash",
	".beads",
	".claude",
	"node_modules",
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		ExcludeDirs: defaultExcludeDirs,
		Search: SearchConfig{
			TopN:           10,
			LexicalWeight:  0.40,
			SemanticWeight: 0.60,
			RRFConstant:    60,
			ChunkSize:      1200,
			ChunkOverlap:   200,
		},
		Provider: ProviderConfig{
			Name:        "",
			Model:       "nomic-embed-text",
			RerankModel: "",
			Endpoint:    "",
			BatchSize:   32,
			Timeout:     30 * time.Second,
			CacheSize:   1024,
		},
		Daemon: DaemonConfig{
			RefreshInterval: 60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownGrace:   10 * time.Second,
			ProbeTimeout:    500 * time.Millisecond,
			WatchDebounce:   2 * time.Second,
		},
		LogLevel: "info",
	}
}

// DefaultDataDir resolves the data directory: VAULT_SEARCH_DATA_DIR if
// set, else $XDG_DATA_HOME/vault-search, else ~/.local/share/vault-search.
func DefaultDataDir() string {
	if v := os.Getenv("VAULT_SEARCH_DATA_DIR"); v != "" {
		return v
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "vault-search")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "vault-search")
	}
	return filepath.Join(home, ".local", "share", "vault-search")
}

// Load reads configuration rooted at dataDir. A missing config file is
// fine; defaults plus environment overrides apply. The returned config
// has been validated.
func Load(dataDir string) (*Config, error) {
	cfg := New()
	cfg.dataDir = dataDir

	path := filepath.Join(dataDir, "config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config file is not valid YAML", err).WithPath(path)
		}
		cfg.mergeWith(&parsed)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.KindConfig, "cannot read config file", err).WithPath(path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeWith overlays non-zero values from other.
func (c *Config) mergeWith(other *Config) {
	if other.VaultPath != "" {
		c.VaultPath = other.VaultPath
	}
	if len(other.ExcludeDirs) > 0 {
		c.ExcludeDirs = other.ExcludeDirs
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}

	if other.Search.TopN != 0 {
		c.Search.TopN = other.Search.TopN
	}
	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}

	if other.Provider.Name != "" {
		c.Provider.Name = other.Provider.Name
	}
	if other.Provider.Model != "" {
		c.Provider.Model = other.Provider.Model
	}
	if other.Provider.RerankModel != "" {
		c.Provider.RerankModel = other.Provider.RerankModel
	}
	if other.Provider.Endpoint != "" {
		c.Provider.Endpoint = other.Provider.Endpoint
	}
	if other.Provider.BatchSize != 0 {
		c.Provider.BatchSize = other.Provider.BatchSize
	}
	if other.Provider.Timeout != 0 {
		c.Provider.Timeout = other.Provider.Timeout
	}
	if other.Provider.CacheSize != 0 {
		c.Provider.CacheSize = other.Provider.CacheSize
	}

	if other.Daemon.RefreshInterval != 0 {
		c.Daemon.RefreshInterval = other.Daemon.RefreshInterval
	}
	if other.Daemon.RequestTimeout != 0 {
		c.Daemon.RequestTimeout = other.Daemon.RequestTimeout
	}
	if other.Daemon.ShutdownGrace != 0 {
		c.Daemon.ShutdownGrace = other.Daemon.ShutdownGrace
	}
	if other.Daemon.ProbeTimeout != 0 {
		c.Daemon.ProbeTimeout = other.Daemon.ProbeTimeout
	}
	if other.Daemon.WatchDebounce != 0 {
		c.Daemon.WatchDebounce = other.Daemon.WatchDebounce
	}
}

// applyEnvOverrides applies VAULT_SEARCH_* environment variables.
// VAULT_SEARCH_PATH takes precedence over the configured vault path.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VAULT_SEARCH_PATH"); v != "" {
		c.VaultPath = v
	}
	if v := os.Getenv("VAULT_SEARCH_PROVIDER"); v != "" {
		c.Provider.Name = v
	}
	if v := os.Getenv("VAULT_SEARCH_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("VAULT_SEARCH_ENDPOINT"); v != "" {
		c.Provider.Endpoint = v
	}
	if v := os.Getenv("VAULT_SEARCH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("VAULT_SEARCH_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Daemon.RefreshInterval = d
		}
	}
	if v := os.Getenv("VAULT_SEARCH_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.TopN = n
		}
	}
}

// Validate checks the configuration. The vault path must name an
// existing directory; everything else has sane-range checks.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return errors.New(errors.KindConfig, "no vault path configured").
			WithSuggestion("set VAULT_SEARCH_PATH or run 'vaultsearch config --vault PATH'")
	}
	info, err := os.Stat(c.VaultPath)
	if err != nil {
		return errors.Wrap(errors.KindConfig, "vault path does not exist", err).WithPath(c.VaultPath)
	}
	if !info.IsDir() {
		return errors.New(errors.KindConfig, "vault path is not a directory").WithPath(c.VaultPath)
	}

	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return errors.Newf(errors.KindConfig, "lexical_weight must be between 0 and 1, got %.2f", c.Search.LexicalWeight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return errors.Newf(errors.KindConfig, "semantic_weight must be between 0 and 1, got %.2f", c.Search.SemanticWeight)
	}
	if sum := c.Search.LexicalWeight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return errors.Newf(errors.KindConfig, "lexical_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.TopN <= 0 {
		return errors.Newf(errors.KindConfig, "top_n must be positive, got %d", c.Search.TopN)
	}
	if c.Search.ChunkOverlap >= c.Search.ChunkSize {
		return errors.Newf(errors.KindConfig, "chunk_overlap %d must be smaller than chunk_size %d",
			c.Search.ChunkOverlap, c.Search.ChunkSize)
	}

	if c.Provider.Name != "" {
		switch strings.ToLower(c.Provider.Name) {
		case "ollama", "static":
		default:
			return errors.Newf(errors.KindConfig,
				"provider must be 'ollama', 'static', or empty (auto-detect), got %q", c.Provider.Name)
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.KindConfig, "log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Save writes the configuration back to <data>/config.yaml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return errors.Wrap(errors.KindConfig, "cannot create data directory", err).WithPath(c.dataDir)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(c.dataDir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.KindConfig, "cannot write config file", err).WithPath(path)
	}
	return nil
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() string { return c.dataDir }

// SetDataDir overrides the resolved data directory. Used when loading a
// config object built by hand rather than through Load.
func (c *Config) SetDataDir(dir string) { c.dataDir = dir }

// IndexDir is where snapshot directories live.
func (c *Config) IndexDir() string { return filepath.Join(c.dataDir, "index") }

// SocketPath is the daemon's unix socket.
func (c *Config) SocketPath() string { return filepath.Join(c.dataDir, "daemon.sock") }

// PIDPath is the daemon's pidfile.
func (c *Config) PIDPath() string { return filepath.Join(c.dataDir, "daemon.pid") }

// LockPath is the daemon's startup-exclusion lock file.
func (c *Config) LockPath() string { return filepath.Join(c.dataDir, "daemon.lock") }

// LogDir is where log files are written.
func (c *Config) LogDir() string { return filepath.Join(c.dataDir, "logs") }
