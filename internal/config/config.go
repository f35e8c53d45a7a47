package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Number of files processed concurrently
	Workers int `mapstructure:"workers" yaml:"workers"`

	Discovery DiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
	Parser    ParserConfig    `mapstructure:"parser" yaml:"parser"`
	Limits    LimitsConfig    `mapstructure:"limits" yaml:"limits"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Resolve   ResolveConfig   `mapstructure:"resolve" yaml:"resolve"`
	Emit      EmitConfig      `mapstructure:"emit" yaml:"emit"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// DiscoveryConfig controls which files enter the catalog
type DiscoveryConfig struct {
	Include      []string `mapstructure:"include" yaml:"include"`
	Exclude      []string `mapstructure:"exclude" yaml:"exclude"`
	SkipDirs     []string `mapstructure:"skip_dirs" yaml:"skip_dirs"`
	IgnoreFile   string   `mapstructure:"ignore_file" yaml:"ignore_file"`
	MaxFileBytes int64    `mapstructure:"max_file_bytes" yaml:"max_file_bytes"`
}

// ParserConfig selects a backend per entity kind
type ParserConfig struct {
	Baseline string `mapstructure:"baseline" yaml:"baseline"`
	// kind (class, function, variable, import) -> backend name
	Select map[string]string `mapstructure:"select" yaml:"select"`
}

type LimitsConfig struct {
	MaxDepth    int           `mapstructure:"max_depth" yaml:"max_depth"`
	FileTimeout time.Duration `mapstructure:"file_timeout" yaml:"file_timeout"`
}

type CacheConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"` // "bolt", "sqlite", "memory"
	Path        string `mapstructure:"path" yaml:"path"`       // relative paths live under the source root
	LRUSize     int    `mapstructure:"lru_size" yaml:"lru_size"`
	Prune       bool   `mapstructure:"prune" yaml:"prune"` // drop entries the current tree no longer uses
	RetryFailed bool   `mapstructure:"retry_failed" yaml:"retry_failed"`
}

type ResolveConfig struct {
	Calls string `mapstructure:"calls" yaml:"calls"` // "off", "strict", "heuristic"
}

type EmitConfig struct {
	Format            string `mapstructure:"format" yaml:"format"` // "json", "yaml"
	IncludeTimestamps bool   `mapstructure:"include_timestamps" yaml:"include_timestamps"`

	ModuleBatchSize       int `mapstructure:"module_batch_size" yaml:"module_batch_size"`
	ClassBatchSize        int `mapstructure:"class_batch_size" yaml:"class_batch_size"`
	FunctionBatchSize     int `mapstructure:"function_batch_size" yaml:"function_batch_size"`
	VariableBatchSize     int `mapstructure:"variable_batch_size" yaml:"variable_batch_size"`
	StubBatchSize         int `mapstructure:"stub_batch_size" yaml:"stub_batch_size"`
	RelationshipBatchSize int `mapstructure:"relationship_batch_size" yaml:"relationship_batch_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Workers: 8,
		Discovery: DiscoveryConfig{
			Include:      []string{"**/*.py", "**/*.pyi"},
			Exclude:      []string{},
			SkipDirs:     DefaultSkipDirs(),
			IgnoreFile:   ".cgraphignore",
			MaxFileBytes: 2 * 1024 * 1024, // 2MB
		},
		Parser: ParserConfig{
			Baseline: "treesitter",
			Select:   map[string]string{},
		},
		Limits: LimitsConfig{
			MaxDepth:    500,
			FileTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:     "bolt",
			Path:        filepath.Join(".cgraph", "cache.db"),
			LRUSize:     4096,
			Prune:       false,
			RetryFailed: true,
		},
		Resolve: ResolveConfig{
			Calls: "strict",
		},
		Emit: EmitConfig{
			Format:                "json",
			ModuleBatchSize:       500,
			ClassBatchSize:        1000,
			FunctionBatchSize:     2000,
			VariableBatchSize:     2000,
			StubBatchSize:         1000,
			RelationshipBatchSize: 5000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultSkipDirs lists directory names never descended into
func DefaultSkipDirs() []string {
	return []string{
		".git",
		".hg",
		".svn",
		"node_modules",
		"venv",
		".venv",
		"env",
		"__pycache__",
		".pytest_cache",
		".mypy_cache",
		".tox",
		".eggs",
		"build",
		"dist",
		".idea",
		".vscode",
		".cgraph",
	}
}

// Load loads configuration from file, environment and .env files.
// Precedence: CGRAPH_* env vars, then the config file, then defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, Default())

	v.SetEnvPrefix("CGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".cgraph")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Parser.Select == nil {
		cfg.Parser.Select = map[string]string{}
	}
	cfg.Cache.Path = expandPath(cfg.Cache.Path)
	cfg.Log.File = expandPath(cfg.Log.File)

	return cfg, nil
}

// setDefaults registers every leaf key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("workers", cfg.Workers)

	v.SetDefault("discovery.include", cfg.Discovery.Include)
	v.SetDefault("discovery.exclude", cfg.Discovery.Exclude)
	v.SetDefault("discovery.skip_dirs", cfg.Discovery.SkipDirs)
	v.SetDefault("discovery.ignore_file", cfg.Discovery.IgnoreFile)
	v.SetDefault("discovery.max_file_bytes", cfg.Discovery.MaxFileBytes)

	v.SetDefault("parser.baseline", cfg.Parser.Baseline)
	v.SetDefault("parser.select", cfg.Parser.Select)

	v.SetDefault("limits.max_depth", cfg.Limits.MaxDepth)
	v.SetDefault("limits.file_timeout", cfg.Limits.FileTimeout)

	v.SetDefault("cache.backend", cfg.Cache.Backend)
	v.SetDefault("cache.path", cfg.Cache.Path)
	v.SetDefault("cache.lru_size", cfg.Cache.LRUSize)
	v.SetDefault("cache.prune", cfg.Cache.Prune)
	v.SetDefault("cache.retry_failed", cfg.Cache.RetryFailed)

	v.SetDefault("resolve.calls", cfg.Resolve.Calls)

	v.SetDefault("emit.format", cfg.Emit.Format)
	v.SetDefault("emit.include_timestamps", cfg.Emit.IncludeTimestamps)
	v.SetDefault("emit.module_batch_size", cfg.Emit.ModuleBatchSize)
	v.SetDefault("emit.class_batch_size", cfg.Emit.ClassBatchSize)
	v.SetDefault("emit.function_batch_size", cfg.Emit.FunctionBatchSize)
	v.SetDefault("emit.variable_batch_size", cfg.Emit.VariableBatchSize)
	v.SetDefault("emit.stub_batch_size", cfg.Emit.StubBatchSize)
	v.SetDefault("emit.relationship_batch_size", cfg.Emit.RelationshipBatchSize)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.json", cfg.Log.JSON)
}

// PathFor returns the cache location for a source root. A relative path is
// anchored at root, so each tree keeps its own cache.
func (c CacheConfig) PathFor(root string) string {
	if c.Path == "" || filepath.IsAbs(c.Path) {
		return c.Path
	}
	return filepath.Join(root, c.Path)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, c)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
