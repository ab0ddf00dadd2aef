package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppIdentity names the binary, its env prefix and its config file.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity is used when no identity was set before Load.
var DefaultIdentity = AppIdentity{
	BinaryName: "seqsubmit",
	EnvPrefix:  "SEQSUBMIT",
	ConfigName: "seqsubmit",
}

var (
	configMu    sync.RWMutex
	appIdentity *AppIdentity
	appConfig   *Config
	configFile  string
)

// SetIdentity replaces the application identity.
func SetIdentity(id AppIdentity) {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = &id
}

// Identity returns the current identity, or nil before Load or SetIdentity.
func Identity() *AppIdentity {
	return identity()
}

func identity() *AppIdentity {
	configMu.RLock()
	defer configMu.RUnlock()
	if appIdentity == nil {
		return nil
	}
	id := *appIdentity
	return &id
}

// SetConfigFile pins the config file. An empty path restores the search.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// GetConfig returns the most recently loaded configuration.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Load builds the configuration. Later layers win: defaults, config file,
// environment, then each overrides map in order. Overrides are nested maps
// keyed like the config file.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	configMu.Lock()
	if appIdentity == nil {
		id := DefaultIdentity
		appIdentity = &id
	}
	explicit := configFile
	configMu.Unlock()

	v := viper.New()
	SetDefaults(v)

	if err := readConfigFile(v, explicit); err != nil {
		return nil, err
	}

	id := identity()
	v.SetEnvPrefix(id.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, value := range flatten("", o) {
			v.Set(key, value)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToSliceHook(","),
	))); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = &cfg
	configMu.Unlock()
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", explicit, err)
		}
		return nil
	}

	id := identity()
	v.SetConfigName(id.ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if root, err := findProjectRoot(); err == nil {
		v.AddConfigPath(root)
	}
	for _, p := range getUserConfigPaths() {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// stringToSliceHook splits comma lists from env vars, trimming blanks.
func stringToSliceHook(sep string) mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
}

func normalize(cfg *Config) {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Profile = strings.ToUpper(strings.TrimSpace(cfg.Logging.Profile))
	cfg.Projects.Driver = strings.ToLower(strings.TrimSpace(cfg.Projects.Driver))
	cfg.Fetch.Provider = strings.ToLower(strings.TrimSpace(cfg.Fetch.Provider))
	cfg.Deposit.Driver = strings.ToLower(strings.TrimSpace(cfg.Deposit.Driver))

	if dataDir := DataDir(); dataDir != "" {
		if cfg.Store.Path == "" && cfg.Store.URL == "" {
			cfg.Store.Path = filepath.Join(dataDir, "jobs.db")
		}
		if cfg.Staging.Dir == "" {
			cfg.Staging.Dir = filepath.Join(dataDir, "staging")
		}
	}
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
	}
	if c.Scheduler.MaxRunning < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_running must be >= 1"))
	}
	switch c.Projects.Driver {
	case "mysql", "sqlite", "libsql", "yaml":
	default:
		errs = append(errs, fmt.Errorf("projects.driver %q: expected mysql, sqlite, libsql or yaml", c.Projects.Driver))
	}
	switch c.Fetch.Provider {
	case "http", "s3":
	default:
		errs = append(errs, fmt.Errorf("fetch.provider %q: expected http or s3", c.Fetch.Provider))
	}
	switch c.Deposit.Driver {
	case "ftp", "dir":
	default:
		errs = append(errs, fmt.Errorf("deposit.driver %q: expected ftp or dir", c.Deposit.Driver))
	}
	if len(c.Convert.Quality) > 1 {
		errs = append(errs, fmt.Errorf("convert.quality must be a single character"))
	}
	return errors.Join(errs...)
}
