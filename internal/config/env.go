package config

// EnvSpec maps one environment variable onto a config key.
type EnvSpec struct {
	Name string
	Path string
}

// envSuffixes are the short variable names, without prefix, and the keys
// they set. Every key is also reachable as <PREFIX>_<SECTION>_<KEY>.
var envSuffixes = []struct{ suffix, path string }{
	{"HOST", "server.host"},
	{"PORT", "server.port"},
	{"READ_TIMEOUT", "server.read_timeout"},
	{"WRITE_TIMEOUT", "server.write_timeout"},
	{"IDLE_TIMEOUT", "server.idle_timeout"},
	{"SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},
	{"LOG_LEVEL", "logging.level"},
	{"LOG_PROFILE", "logging.profile"},
	{"METRICS_ENABLED", "metrics.enabled"},
	{"METRICS_PORT", "metrics.port"},
	{"HEALTH_ENABLED", "health.enabled"},
	{"DEBUG", "debug.enabled"},
	{"PPROF_ENABLED", "debug.pprof_enabled"},
	{"STORE_PATH", "store.path"},
	{"STORE_URL", "store.url"},
	{"STORE_AUTH_TOKEN", "store.auth_token"},
	{"SCHEDULER_ENABLED", "scheduler.enabled"},
	{"SCHEDULER_INTERVAL", "scheduler.interval"},
	{"MAX_RUNNING", "scheduler.max_running"},
	{"PROJECTS_DRIVER", "projects.driver"},
	{"PROJECTS_DSN", "projects.dsn"},
	{"PROJECTS_FILE", "projects.file"},
	{"FETCH_PROVIDER", "fetch.provider"},
	{"FETCH_BASE_URL", "fetch.base_url"},
	{"FETCH_TOKEN", "fetch.token"},
	{"S3_BUCKET", "fetch.s3.bucket"},
	{"S3_REGION", "fetch.s3.region"},
	{"S3_ENDPOINT", "fetch.s3.endpoint"},
	{"CONVERT_COMMAND", "convert.command"},
	{"DEPOSIT_DRIVER", "deposit.driver"},
	{"DEPOSIT_HOST", "deposit.host"},
	{"DEPOSIT_USERNAME", "deposit.username"},
	{"DEPOSIT_PASSWORD", "deposit.password"},
	{"DEPOSIT_DIR", "deposit.dir"},
	{"ARCHIVE_URL", "archive.url"},
	{"ARCHIVE_DEVELOPMENT", "archive.development"},
	{"ARCHIVE_USERNAME", "archive.username"},
	{"ARCHIVE_PASSWORD", "archive.password"},
	{"ARCHIVE_CENTER_NAME", "archive.center_name"},
	{"STAGING_DIR", "staging.dir"},
	{"STAGING_INCLUDE", "staging.include"},
}

// getEnvSpecs returns the environment mappings for the current identity,
// or nothing before an identity is set.
func getEnvSpecs() []EnvSpec {
	id := identity()
	if id == nil || id.EnvPrefix == "" {
		return []EnvSpec{}
	}
	specs := make([]EnvSpec, 0, len(envSuffixes))
	for _, s := range envSuffixes {
		specs = append(specs, EnvSpec{Name: id.EnvPrefix + "_" + s.suffix, Path: s.path})
	}
	return specs
}
