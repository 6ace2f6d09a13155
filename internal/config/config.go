package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DataDirName is the per-workspace directory holding the index, registry and lock file.
const DataDirName = ".propindex"

// Config represents the complete propindex configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Workspace WorkspaceConfig `yaml:"workspace" json:"workspace"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Server    ServerConfig    `yaml:"server" json:"server"`
}

// WorkspaceConfig configures which translation files are considered.
type WorkspaceConfig struct {
	// Exclude lists glob patterns (relative to the workspace root) that are never indexed.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexConfig configures the mutation queue and the index worker.
type IndexConfig struct {
	// Dir holds the bleve index, registry database and write lock.
	// Empty means <workspace>/.propindex.
	Dir string `yaml:"dir" json:"dir"`

	// QueueCapacity bounds the number of pending mutations (default: 50).
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// IdleTimeout is how long the worker waits on an empty queue before it
	// commits and releases the writer (default: "20s").
	IdleTimeout string `yaml:"idle_timeout" json:"idle_timeout"`

	// CommitEvery commits during a long run at least this often (default: "0s",
	// which commits only when the worker goes idle).
	CommitEvery string `yaml:"commit_every" json:"commit_every"`

	// MaxAttempts is how many runs a failing mutation gets before it is dropped (default: 3).
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`

	// LockTimeout bounds how long obtaining the cross-process write lock may retry (default: "5s").
	LockTimeout string `yaml:"lock_timeout" json:"lock_timeout"`

	// Workers is the number of parallel analyzers used by a full reindex (default: 4).
	Workers int `yaml:"workers" json:"workers"`
}

// WatchConfig configures file watching.
type WatchConfig struct {
	Debounce     string `yaml:"debounce" json:"debounce"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
}

// SearchConfig configures the query side used by `propindex search`.
type SearchConfig struct {
	MaxResults int `yaml:"max_results" json:"max_results"`
	CacheSize  int `yaml:"cache_size" json:"cache_size"`
}

// ServerConfig configures the long-running watch process.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	// MetricsAddr serves Prometheus metrics when non-empty (e.g. ":9464").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/" + DataDirName + "/**",
	"**/target/**",
	"**/build/**",
	"**/node_modules/**",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Workspace: WorkspaceConfig{
			Exclude: append([]string(nil), defaultExcludePatterns...),
		},
		Index: IndexConfig{
			Dir:           "",
			QueueCapacity: 50,
			IdleTimeout:   "20s",
			CommitEvery:   "0s",
			MaxAttempts:   3,
			LockTimeout:   "5s",
			Workers:       4,
		},
		Watch: WatchConfig{
			Debounce:     "500ms",
			PollInterval: "5s",
		},
		Search: SearchConfig{
			MaxResults: 20,
			CacheSize:  256,
		},
		Server: ServerConfig{
			LogLevel:    "info",
			MetricsAddr: "",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/propindex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/propindex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "propindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "propindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "propindex", "config.yaml")
}

// WorkspaceConfigPath returns the workspace config file in dir, preferring .yaml over .yml.
// If neither exists the .yaml path is returned.
func WorkspaceConfigPath(dir string) string {
	yamlPath := filepath.Join(dir, ".propindex.yaml")
	if fileExists(yamlPath) {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, ".propindex.yml")
	if fileExists(ymlPath) {
		return ymlPath
	}
	return yamlPath
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parsed.readYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return &parsed, nil
}

// Load loads configuration for the workspace rooted at dir.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/propindex/config.yaml)
//  3. Workspace config (.propindex.yaml in the workspace root)
//  4. Environment variables (PROPINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile merges .propindex.yaml or .propindex.yml from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	path := WorkspaceConfigPath(dir)
	if !fileExists(path) {
		return nil
	}

	var parsed Config
	if err := parsed.readYAML(path); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

// readYAML decodes path into c without applying defaults.
func (c *Config) readYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Excludes extend the defaults rather than replace them.
	for _, p := range other.Workspace.Exclude {
		if !slices.Contains(c.Workspace.Exclude, p) {
			c.Workspace.Exclude = append(c.Workspace.Exclude, p)
		}
	}

	if other.Index.Dir != "" {
		c.Index.Dir = other.Index.Dir
	}
	if other.Index.QueueCapacity != 0 {
		c.Index.QueueCapacity = other.Index.QueueCapacity
	}
	if other.Index.IdleTimeout != "" {
		c.Index.IdleTimeout = other.Index.IdleTimeout
	}
	if other.Index.CommitEvery != "" {
		c.Index.CommitEvery = other.Index.CommitEvery
	}
	if other.Index.MaxAttempts != 0 {
		c.Index.MaxAttempts = other.Index.MaxAttempts
	}
	if other.Index.LockTimeout != "" {
		c.Index.LockTimeout = other.Index.LockTimeout
	}
	if other.Index.Workers != 0 {
		c.Index.Workers = other.Index.Workers
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.PollInterval != "" {
		c.Watch.PollInterval = other.Watch.PollInterval
	}

	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.MetricsAddr != "" {
		c.Server.MetricsAddr = other.Server.MetricsAddr
	}
}

// applyEnvOverrides applies PROPINDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PROPINDEX_INDEX_DIR"); v != "" {
		c.Index.Dir = v
	}
	if v := os.Getenv("PROPINDEX_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.QueueCapacity = n
		}
	}
	if v := os.Getenv("PROPINDEX_IDLE_TIMEOUT"); v != "" {
		c.Index.IdleTimeout = v
	}
	if v := os.Getenv("PROPINDEX_COMMIT_EVERY"); v != "" {
		c.Index.CommitEvery = v
	}
	if v := os.Getenv("PROPINDEX_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.MaxAttempts = n
		}
	}
	if v := os.Getenv("PROPINDEX_LOCK_TIMEOUT"); v != "" {
		c.Index.LockTimeout = v
	}
	if v := os.Getenv("PROPINDEX_WATCH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("PROPINDEX_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("PROPINDEX_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Index.QueueCapacity <= 0 {
		return fmt.Errorf("index.queue_capacity must be positive, got %d", c.Index.QueueCapacity)
	}
	if c.Index.MaxAttempts <= 0 {
		return fmt.Errorf("index.max_attempts must be positive, got %d", c.Index.MaxAttempts)
	}
	if c.Index.Workers <= 0 {
		return fmt.Errorf("index.workers must be positive, got %d", c.Index.Workers)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("search.cache_size must be non-negative, got %d", c.Search.CacheSize)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"index.idle_timeout", c.Index.IdleTimeout},
		{"index.commit_every", c.Index.CommitEvery},
		{"index.lock_timeout", c.Index.LockTimeout},
		{"watch.debounce", c.Watch.Debounce},
		{"watch.poll_interval", c.Watch.PollInterval},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%s must be a duration, got %q", d.name, d.value)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, d.value)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// IdleTimeoutDuration returns index.idle_timeout as a duration.
// Validate guarantees it parses; the default is used otherwise.
func (c *Config) IdleTimeoutDuration() time.Duration {
	return parseDurationOr(c.Index.IdleTimeout, 20*time.Second)
}

// CommitEveryDuration returns index.commit_every as a duration. Zero disables
// commits before the worker goes idle.
func (c *Config) CommitEveryDuration() time.Duration {
	return parseDurationOr(c.Index.CommitEvery, 0)
}

// LockTimeoutDuration returns index.lock_timeout as a duration.
func (c *Config) LockTimeoutDuration() time.Duration {
	return parseDurationOr(c.Index.LockTimeout, 5*time.Second)
}

// DebounceDuration returns watch.debounce as a duration.
func (c *Config) DebounceDuration() time.Duration {
	return parseDurationOr(c.Watch.Debounce, 500*time.Millisecond)
}

// PollIntervalDuration returns watch.poll_interval as a duration.
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.Watch.PollInterval, 5*time.Second)
}

// DataDir resolves index.dir against the workspace root.
func (c *Config) DataDir(root string) string {
	switch {
	case c.Index.Dir == "":
		return filepath.Join(root, DataDirName)
	case filepath.IsAbs(c.Index.Dir):
		return c.Index.Dir
	default:
		return filepath.Join(root, c.Index.Dir)
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
