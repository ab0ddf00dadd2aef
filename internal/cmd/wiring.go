package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/internal/config"
	"github.com/3leaps/seqsubmit/internal/observability"
	"github.com/3leaps/seqsubmit/pkg/archive"
	"github.com/3leaps/seqsubmit/pkg/convert"
	"github.com/3leaps/seqsubmit/pkg/deposit"
	"github.com/3leaps/seqsubmit/pkg/fetch"
	"github.com/3leaps/seqsubmit/pkg/jobstore"
	"github.com/3leaps/seqsubmit/pkg/pipeline"
	"github.com/3leaps/seqsubmit/pkg/project"
	"github.com/3leaps/seqsubmit/pkg/scheduler"
	"github.com/3leaps/seqsubmit/pkg/secrets"
)

// openStore opens the job store named by cfg.
func openStore(ctx context.Context, cfg *config.Config) (*jobstore.Store, error) {
	token, err := secrets.Resolve(cfg.Store.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("store.auth_token: %w", err)
	}
	return jobstore.Open(ctx, jobstore.Config{
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		AuthToken: token,
	})
}

// projectRepository is a repository that may hold a connection.
type projectRepository interface {
	project.Repository
	Close() error
}

type nopCloser struct{ project.Repository }

func (nopCloser) Close() error { return nil }

// openProjects opens the project repository selected by projects.driver.
func openProjects(ctx context.Context, cfg *config.Config) (projectRepository, error) {
	switch cfg.Projects.Driver {
	case "mysql", "sqlite", "libsql":
		dsn, err := secrets.Resolve(cfg.Projects.DSN)
		if err != nil {
			return nil, fmt.Errorf("projects.dsn: %w", err)
		}
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("projects.dsn is required for driver %s", cfg.Projects.Driver)
		}
		return project.OpenSQL(ctx, cfg.Projects.Driver, dsn)
	case "yaml":
		if strings.TrimSpace(cfg.Projects.File) == "" {
			return nil, fmt.Errorf("projects.file is required for driver yaml")
		}
		repo, err := project.LoadFile(cfg.Projects.File)
		if err != nil {
			return nil, err
		}
		return nopCloser{repo}, nil
	default:
		return nil, fmt.Errorf("unsupported projects.driver %q", cfg.Projects.Driver)
	}
}

// buildFetcher returns nil without error when the provider is not
// configured; jobs then fail at initialize with a configuration error.
func buildFetcher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (fetch.Fetcher, error) {
	fc := cfg.Fetch
	switch fc.Provider {
	case "s3":
		if fc.S3.Bucket == "" {
			logger.Warn("fetch.s3.bucket not set; jobs will fail until it is configured")
			return nil, nil
		}
		secret, err := secrets.Resolve(fc.S3.SecretAccessKey)
		if err != nil {
			return nil, fmt.Errorf("fetch.s3.secret_access_key: %w", err)
		}
		return fetch.NewS3(ctx, fetch.S3Config{
			Bucket:          fc.S3.Bucket,
			Prefix:          fc.S3.Prefix,
			StripPrefix:     fc.StripPrefix,
			Region:          fc.S3.Region,
			Endpoint:        fc.S3.Endpoint,
			Profile:         fc.S3.Profile,
			AccessKeyID:     fc.S3.AccessKeyID,
			SecretAccessKey: secret,
			ForcePathStyle:  fc.S3.ForcePathStyle,
		}, logger.Named("fetch"))
	default:
		if fc.BaseURL == "" {
			logger.Warn("fetch.base_url not set; jobs will fail until it is configured")
			return nil, nil
		}
		return fetch.NewHTTP(fetch.HTTPConfig{
			BaseURL:     fc.BaseURL,
			MediaPath:   fc.MediaPath,
			StripPrefix: fc.StripPrefix,
			Timeout:     fc.Timeout,
			RateLimit:   fc.RateLimit,
			Burst:       fc.Burst,
		}, fetch.WithLogger(logger.Named("fetch")))
	}
}

func buildConverter(cfg *config.Config, logger *zap.Logger) (convert.Converter, error) {
	if strings.TrimSpace(cfg.Convert.Command) != "" {
		return convert.NewCommand(cfg.Convert.Command, logger.Named("convert"))
	}
	b := &convert.Builtin{Logger: logger.Named("convert")}
	if cfg.Convert.Quality != "" {
		b.Quality = cfg.Convert.Quality[0]
	}
	return b, nil
}

// buildDeposit returns the dialer, the account and whether empty
// credentials are acceptable.
func buildDeposit(cfg *config.Config, logger *zap.Logger) (deposit.Dialer, pipeline.DepositCredentials, bool, error) {
	dc := cfg.Deposit
	if dc.Driver == "dir" {
		if dc.Dir == "" {
			return nil, pipeline.DepositCredentials{}, false, fmt.Errorf("deposit.dir is required for driver dir")
		}
		return &deposit.DirDialer{BaseDir: dc.Dir}, pipeline.DepositCredentials{}, true, nil
	}

	password, err := secrets.Resolve(dc.Password)
	if err != nil {
		return nil, pipeline.DepositCredentials{}, false, fmt.Errorf("deposit.password: %w", err)
	}
	creds := pipeline.DepositCredentials{Host: dc.Host, User: dc.Username, Password: password}
	return &deposit.FTPDialer{Timeout: dc.Timeout, Logger: logger.Named("deposit")}, creds, false, nil
}

// buildArchive returns nil without error when credentials are missing.
func buildArchive(cfg *config.Config, logger *zap.Logger) (archive.Submitter, error) {
	ac := cfg.Archive
	password, err := secrets.Resolve(ac.Password)
	if err != nil {
		return nil, fmt.Errorf("archive.password: %w", err)
	}
	if ac.Username == "" || password == "" {
		logger.Warn("archive credentials not set; jobs will fail until they are configured")
		return nil, nil
	}
	client, err := archive.NewClient(archive.Config{
		URL:         ac.URL,
		Development: ac.Development,
		Username:    ac.Username,
		Password:    password,
		Timeout:     ac.Timeout,
	}, archive.WithLogger(logger.Named("archive")))
	if err != nil {
		return nil, err
	}
	logger.Info("Archive endpoint", zap.String("url", ac.URL), zap.Bool("development", ac.Development))
	return client, nil
}

// buildPipeline assembles the stage pipeline from cfg.
func buildPipeline(ctx context.Context, cfg *config.Config, store *jobstore.Store, projects project.Repository,
	logger *zap.Logger, metrics *observability.Metrics) (*pipeline.Pipeline, error) {
	fetcher, err := buildFetcher(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	converter, err := buildConverter(cfg, logger)
	if err != nil {
		return nil, err
	}
	dialer, creds, anonymous, err := buildDeposit(cfg, logger)
	if err != nil {
		return nil, err
	}
	submitter, err := buildArchive(cfg, logger)
	if err != nil {
		return nil, err
	}
	token, err := secrets.Resolve(cfg.Fetch.Token)
	if err != nil {
		return nil, fmt.Errorf("fetch.token: %w", err)
	}

	deps := pipeline.Deps{
		Projects:   projects,
		Fetcher:    fetcher,
		Converter:  converter,
		Deposit:    dialer,
		Archive:    submitter,
		Accessions: store,
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger.Named("pipeline"))}
	if metrics != nil {
		opts = append(opts, pipeline.WithStageObserver(metrics.StageCompleted))
	}
	return pipeline.New(deps, pipeline.Settings{
		StagingDir:       cfg.Staging.Dir,
		StripPrefix:      cfg.Fetch.StripPrefix,
		Include:          cfg.Staging.Include,
		Keep:             cfg.Staging.Keep,
		FetchCredential:  fetch.Credential{Token: token},
		Deposit:          creds,
		AnonymousDeposit: anonymous,
		CenterName:       cfg.Archive.CenterName,
	}, opts...), nil
}

func schedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		Interval:     cfg.Scheduler.Interval,
		InitialDelay: cfg.Scheduler.InitialDelay,
		MaxRunning:   cfg.Scheduler.MaxRunning,
		Discover:     cfg.Scheduler.Discover,
	}
}
