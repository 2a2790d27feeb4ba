// Package config loads luafix settings from TOML, YAML or JSON files and the
// environment.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidConfig is returned when a config file does not match the schema.
var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultEnvPrefix prefixes environment overrides. Sections and keys are
// separated by a double underscore: LUAFIX_FIX__NIL_GUARDS=true.
const DefaultEnvPrefix = "LUAFIX_"

// MaxWorkers caps the default worker count.
const MaxWorkers = 8

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/panbanda/luafix/schema.json"

// Config holds all configuration options for luafix.
type Config struct {
	// Analysis settings
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis" yaml:"analysis" json:"analysis"`

	// Which finding tiers fix applies
	Fix FixConfig `koanf:"fix" toml:"fix" yaml:"fix" json:"fix"`

	// Additions to the built-in catalogs
	Catalog CatalogConfig `koanf:"catalog" toml:"catalog" yaml:"catalog" json:"catalog"`

	// Resource and file exclusions
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude" yaml:"exclude" json:"exclude"`

	// Cache settings
	Cache CacheConfig `koanf:"cache" toml:"cache" yaml:"cache" json:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output" toml:"output" yaml:"output" json:"output"`

	// Workers is the number of files processed in parallel; 0 picks
	// min(NumCPU, MaxWorkers).
	Workers int `koanf:"workers" toml:"workers" yaml:"workers" json:"workers"`
}

// AnalysisConfig tunes the analyzer.
type AnalysisConfig struct {
	CacheThreshold int   `koanf:"cache_threshold" toml:"cache_threshold" yaml:"cache_threshold" json:"cache_threshold"`
	Experimental   bool  `koanf:"experimental" toml:"experimental" yaml:"experimental" json:"experimental"`
	MaxFileSize    int64 `koanf:"max_file_size" toml:"max_file_size" yaml:"max_file_size" json:"max_file_size"`
	Timeout        int   `koanf:"timeout" toml:"timeout" yaml:"timeout" json:"timeout"` // seconds per file
}

// TimeoutDuration returns the per-file timeout.
func (a AnalysisConfig) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// FixConfig selects the fix categories.
type FixConfig struct {
	Safe         bool `koanf:"safe" toml:"safe" yaml:"safe" json:"safe"`
	Review       bool `koanf:"review" toml:"review" yaml:"review" json:"review"`
	Debug        bool `koanf:"debug" toml:"debug" yaml:"debug" json:"debug"`
	NilGuards    bool `koanf:"nil_guards" toml:"nil_guards" yaml:"nil_guards" json:"nil_guards"`
	DeadCode     bool `koanf:"dead_code" toml:"dead_code" yaml:"dead_code" json:"dead_code"`
	Experimental bool `koanf:"experimental" toml:"experimental" yaml:"experimental" json:"experimental"`
	Backup       bool `koanf:"backup" toml:"backup" yaml:"backup" json:"backup"`
}

// CatalogConfig extends the built-in catalogs.
type CatalogConfig struct {
	ExtraHotCallbacks   []string          `koanf:"extra_hot_callbacks" toml:"extra_hot_callbacks" yaml:"extra_hot_callbacks" json:"extra_hot_callbacks"`
	ExtraDebugFunctions []string          `koanf:"extra_debug_functions" toml:"extra_debug_functions" yaml:"extra_debug_functions" json:"extra_debug_functions"`
	ExtraNilReturning   map[string]string `koanf:"extra_nil_returning" toml:"extra_nil_returning" yaml:"extra_nil_returning" json:"extra_nil_returning"`
	CacheableMethods    []string          `koanf:"cacheable_methods" toml:"cacheable_methods" yaml:"cacheable_methods" json:"cacheable_methods"`
}

// ExcludeConfig defines what discovery skips.
type ExcludeConfig struct {
	Resources  []string `koanf:"resources" toml:"resources" yaml:"resources" json:"resources"`
	Patterns   []string `koanf:"patterns" toml:"patterns" yaml:"patterns" json:"patterns"`
	Dirs       []string `koanf:"dirs" toml:"dirs" yaml:"dirs" json:"dirs"`
	Gitignore  bool     `koanf:"gitignore" toml:"gitignore" yaml:"gitignore" json:"gitignore"`
	IgnoreFile string   `koanf:"ignore_file" toml:"ignore_file" yaml:"ignore_file" json:"ignore_file"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled" yaml:"enabled" json:"enabled"`
	Dir     string `koanf:"dir" toml:"dir" yaml:"dir" json:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl" yaml:"ttl" json:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format" toml:"format" yaml:"format" json:"format"` // text, json, markdown, toon, yaml
	Color   bool   `koanf:"color" toml:"color" yaml:"color" json:"color"`
	Verbose bool   `koanf:"verbose" toml:"verbose" yaml:"verbose" json:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			CacheThreshold: 4,
			MaxFileSize:    2 << 20,
			Timeout:        10,
		},
		Fix: FixConfig{
			Safe:   true,
			Backup: true,
		},
		Catalog: CatalogConfig{
			ExtraNilReturning: map[string]string{},
		},
		Exclude: ExcludeConfig{
			Dirs: []string{
				"node_modules",
				".git",
				".luafix",
			},
			Gitignore:  true,
			IgnoreFile: ".luafixignore",
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".luafix/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// WorkerCount resolves Workers to a positive number.
func (c *Config) WorkerCount() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return min(runtime.NumCPU(), MaxWorkers)
}

// configNames are searched in order, first in the search directory and then
// in its .luafix subdirectory.
var configNames = []string{
	"luafix.toml",
	".luafix.toml",
	"luafix.yaml",
	"luafix.yml",
	"luafix.json",
}

// LoadResult is a loaded config and the file it came from. Source is empty
// when only defaults (and the environment) were used.
type LoadResult struct {
	Config *Config
	Source string
}

type loadOptions struct {
	path      string
	dir       string
	envPrefix string
}

// LoadOption configures LoadConfig.
type LoadOption func(*loadOptions)

// WithPath loads the given file instead of searching.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) { o.path = path }
}

// WithSearchDir searches for config files in dir instead of the working
// directory.
func WithSearchDir(dir string) LoadOption {
	return func(o *loadOptions) { o.dir = dir }
}

// WithEnvPrefix sets the environment variable prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// LoadConfig merges defaults, the config file and environment overrides.
// A file that does not match the schema yields an error wrapping
// ErrInvalidConfig.
func LoadConfig(opts ...LoadOption) (*LoadResult, error) {
	o := loadOptions{dir: ".", envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	path := o.path
	if path == "" {
		path = find(o.dir)
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := Validate(k.Raw()); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if o.envPrefix != "" {
		prefix := o.envPrefix
		err := k.Load(env.Provider(prefix, ".", func(s string) string {
			key := strings.ToLower(strings.TrimPrefix(s, prefix))
			return strings.ReplaceAll(key, "__", ".")
		}), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	// Lists and maps from a file replace the defaults instead of being
	// merged into them index by index.
	cfg := DefaultConfig()
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc()),
			WeaklyTypedInput: true,
			ZeroFields:       true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &LoadResult{Config: cfg, Source: path}, nil
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	res, err := LoadConfig(WithPath(path), WithEnvPrefix(""))
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadOrDefault tries the standard locations and falls back to defaults.
func LoadOrDefault() *Config {
	res, err := LoadConfig()
	if err != nil {
		return DefaultConfig()
	}
	return res.Config
}

func find(dir string) string {
	for _, sub := range []string{"", ".luafix"} {
		for _, name := range configNames {
			path := filepath.Join(dir, sub, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}
	}
	return ""
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return kjson.Parser()
	default:
		return toml.Parser()
	}
}

// Validate checks a raw config map against the embedded JSON schema.
func Validate(raw map[string]any) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	// Round-trip through JSON so TOML and YAML values have JSON types.
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse config schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("load config schema: %w", err)
	}
	return c.Compile(schemaURL)
}

// ShouldExclude checks if a path falls under an excluded directory or
// matches an exclude pattern.
func (c *Config) ShouldExclude(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(slashed, "/"+dir+"/") || strings.HasPrefix(slashed, dir+"/") {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
