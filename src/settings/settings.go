package settings

import (
	"fmt"
	"strings"
	"sync"

	"docpipe/src/models"

	"github.com/spf13/viper"
)

type Arguments struct {
	// Collection name -> path of the JSON file loaded into it
	DataFiles map[string]string `mapstructure:"data_files"`

	// Index definitions, "collection[/name]:field,-field"
	Indexes []string `mapstructure:"indexes"`

	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`

	// Strongly verbose logging
	Verbose bool `mapstructure:"verbose"`

	RegexCacheSize  int   `mapstructure:"regex_cache_size"`
	DefaultPageSize int64 `mapstructure:"default_page_size"`

	ConfigFile string `mapstructure:"-"`
}

const (
	DefaultRegexCacheSize = 128
	DefaultPageSize       = 10
	EnvPrefix             = "DOCPIPE"
	defaultLogLevel       = "info"
)

var (
	instance *Arguments
	once     sync.Once
	mu       sync.RWMutex
)

// GetSettings returns the process-wide settings, initialised with defaults on
// first use.
func GetSettings() *Arguments {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if instance == nil {
			instance = defaults()
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetSettings replaces the process-wide settings.
func SetSettings(args *Arguments) {
	once.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	instance = args
}

func defaults() *Arguments {
	return &Arguments{
		DataFiles:       map[string]string{},
		LogLevel:        defaultLogLevel,
		RegexCacheSize:  DefaultRegexCacheSize,
		DefaultPageSize: DefaultPageSize,
	}
}

// Load reads settings from defaults, the optional config file (YAML, JSON or
// TOML, by extension) and DOCPIPE_* environment variables, in increasing
// priority.
func Load(configFile string) (*Arguments, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("data_files", d.DataFiles)
	v.SetDefault("indexes", []string{})
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("regex_cache_size", d.RegexCacheSize)
	v.SetDefault("default_page_size", d.DefaultPageSize)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	args := &Arguments{}
	if err := v.Unmarshal(args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if args.DataFiles == nil {
		args.DataFiles = map[string]string{}
	}
	args.ConfigFile = configFile
	return args, nil
}

// Validate checks limits and log level. Failures wrap models.ErrInvalidArgument.
func (a *Arguments) Validate() error {
	if a.RegexCacheSize <= 0 {
		return fmt.Errorf("%w: regex cache size must be > 0, got %d", models.ErrInvalidArgument, a.RegexCacheSize)
	}
	if a.DefaultPageSize <= 0 {
		return fmt.Errorf("%w: default page size must be > 0, got %d", models.ErrInvalidArgument, a.DefaultPageSize)
	}
	switch strings.ToLower(a.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", models.ErrInvalidArgument, a.LogLevel)
	}
	for name, path := range a.DataFiles {
		if name == "" || path == "" {
			return fmt.Errorf("%w: data file entries need a collection name and a path", models.ErrInvalidArgument)
		}
	}
	return nil
}
