// Package config loads layered configuration: defaults, then the config
// file, then environment variables, then runtime overrides.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Debug     DebugConfig     `mapstructure:"debug" yaml:"debug"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Projects  ProjectsConfig  `mapstructure:"projects" yaml:"projects"`
	Fetch     FetchConfig     `mapstructure:"fetch" yaml:"fetch"`
	Convert   ConvertConfig   `mapstructure:"convert" yaml:"convert"`
	Deposit   DepositConfig   `mapstructure:"deposit" yaml:"deposit"`
	Archive   ArchiveConfig   `mapstructure:"archive" yaml:"archive"`
	Staging   StagingConfig   `mapstructure:"staging" yaml:"staging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Profile string `mapstructure:"profile" yaml:"profile"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port serves /metrics on its own listener. Zero disables the listener;
	// the ops server still exposes /metrics.
	Port int `mapstructure:"port" yaml:"port"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled" yaml:"pprof_enabled"`
}

// StoreConfig locates the job database. URL wins over Path.
type StoreConfig struct {
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`
}

type SchedulerConfig struct {
	// Enabled=false runs a follower that never resets or polls.
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval     time.Duration `mapstructure:"interval" yaml:"interval"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxRunning   int           `mapstructure:"max_running" yaml:"max_running"`
	Discover     bool          `mapstructure:"discover" yaml:"discover"`
}

// ProjectsConfig selects the project repository: mysql, sqlite, libsql or yaml.
type ProjectsConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	File   string `mapstructure:"file" yaml:"file"`
}

type FetchConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	MediaPath   string        `mapstructure:"media_path" yaml:"media_path"`
	Token       string        `mapstructure:"token" yaml:"token"`
	StripPrefix string        `mapstructure:"strip_prefix" yaml:"strip_prefix"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst       int           `mapstructure:"burst" yaml:"burst"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	S3          S3Config      `mapstructure:"s3" yaml:"s3"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Profile         string `mapstructure:"profile" yaml:"profile"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

type ConvertConfig struct {
	// Command is an external converter template; empty uses the built-in one.
	Command string `mapstructure:"command" yaml:"command"`
	Quality string `mapstructure:"quality" yaml:"quality"`
}

// DepositConfig selects the bulk transfer target: ftp or dir.
type DepositConfig struct {
	Driver   string        `mapstructure:"driver" yaml:"driver"`
	Host     string        `mapstructure:"host" yaml:"host"`
	Username string        `mapstructure:"username" yaml:"username"`
	Password string        `mapstructure:"password" yaml:"password"`
	Dir      string        `mapstructure:"dir" yaml:"dir"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ArchiveConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	Development bool          `mapstructure:"development" yaml:"development"`
	Username    string        `mapstructure:"username" yaml:"username"`
	Password    string        `mapstructure:"password" yaml:"password"`
	CenterName  string        `mapstructure:"center_name" yaml:"center_name"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type StagingConfig struct {
	Dir     string   `mapstructure:"dir" yaml:"dir"`
	Include []string `mapstructure:"include" yaml:"include"`
	Keep    bool     `mapstructure:"keep" yaml:"keep"`
}

// SetDefaults registers every default on v. Durations are strings so they
// read back the way they are written in config files.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "5s")
	v.SetDefault("scheduler.initial_delay", "5s")
	v.SetDefault("scheduler.max_running", 2)
	v.SetDefault("scheduler.discover", true)

	v.SetDefault("projects.driver", "yaml")
	v.SetDefault("projects.dsn", "")
	v.SetDefault("projects.file", "")

	v.SetDefault("fetch.provider", "http")
	v.SetDefault("fetch.base_url", "")
	v.SetDefault("fetch.media_path", "/files/v2/media")
	v.SetDefault("fetch.token", "")
	v.SetDefault("fetch.strip_prefix", "/iplant/home")
	v.SetDefault("fetch.rate_limit", 0.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.timeout", "30m")
	v.SetDefault("fetch.s3.bucket", "")
	v.SetDefault("fetch.s3.prefix", "")
	v.SetDefault("fetch.s3.region", "")
	v.SetDefault("fetch.s3.endpoint", "")
	v.SetDefault("fetch.s3.profile", "")
	v.SetDefault("fetch.s3.access_key_id", "")
	v.SetDefault("fetch.s3.secret_access_key", "")
	v.SetDefault("fetch.s3.force_path_style", false)

	v.SetDefault("convert.command", "")
	v.SetDefault("convert.quality", "I")

	v.SetDefault("deposit.driver", "ftp")
	v.SetDefault("deposit.host", "webin.ebi.ac.uk")
	v.SetDefault("deposit.username", "")
	v.SetDefault("deposit.password", "")
	v.SetDefault("deposit.dir", "")
	v.SetDefault("deposit.timeout", "30s")

	v.SetDefault("archive.url", "")
	v.SetDefault("archive.development", true)
	v.SetDefault("archive.username", "")
	v.SetDefault("archive.password", "")
	v.SetDefault("archive.center_name", "")
	v.SetDefault("archive.timeout", "5m")

	v.SetDefault("staging.dir", "")
	v.SetDefault("staging.include", []string{})
	v.SetDefault("staging.keep", false)
}
