package cmd

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/internal/config"
	apperrors "github.com/3leaps/seqsubmit/internal/errors"
	"github.com/3leaps/seqsubmit/internal/observability"
	"github.com/3leaps/seqsubmit/pkg/secrets"
)

var (
	doctorProvider string
	doctorConnect  bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and configuration and suggest fixes
for common issues.

Examples:
  seqsubmit doctor                 # Environment, store and credentials
  seqsubmit doctor --connect       # Also log in to the deposit area
  seqsubmit doctor --provider s3   # S3 fetch checks`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Run provider-specific checks (s3)")
	doctorCmd.Flags().BoolVar(&doctorConnect, "connect", false, "Open and close a deposit session")
}

// doctorReport numbers checks and remembers whether any failed.
type doctorReport struct {
	logger *zap.Logger
	num    int
	total  int
	ok     bool
}

func (r *doctorReport) pass(name, detail string, fields ...zap.Field) {
	r.num++
	r.logger.Info(fmt.Sprintf("[%d/%d] Checking %s... ✅ %s", r.num, r.total, name, detail), fields...)
}

func (r *doctorReport) warn(name, detail string, fields ...zap.Field) {
	r.num++
	r.ok = false
	r.logger.Warn(fmt.Sprintf("[%d/%d] Checking %s... ⚠️  %s", r.num, r.total, name, detail), fields...)
}

func (r *doctorReport) fail(name, detail string, fields ...zap.Field) {
	r.num++
	r.ok = false
	r.logger.Error(fmt.Sprintf("[%d/%d] Checking %s... ❌ %s", r.num, r.total, name, detail), fields...)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger

	bannerName := "doctor"
	if id := GetAppIdentity(); id != nil && id.BinaryName != "" {
		bannerName = id.BinaryName + " doctor"
	}
	log.Info("=== " + bannerName + " ===")
	log.Info("")
	log.Info("Running diagnostic checks...")
	log.Info("")

	r := &doctorReport{logger: log, total: 7, ok: true}
	if doctorConnect {
		r.total++
	}
	if doctorProvider == "s3" {
		r.total += 2
	}

	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		r.pass("Go version", goVersion, zap.String("go_version", goVersion))
	} else {
		r.warn("Go version", goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
	}

	version := crucible.GetVersion()
	if version.Crucible != "" {
		r.pass("Crucible access", "v"+version.Crucible, zap.String("crucible_version", version.Crucible))
	} else {
		r.fail("Crucible access", "Cannot access Crucible")
		return exitError(apperrors.ExitExternalServiceUnavailable, "Cannot access Crucible",
			apperrors.NewExternalServiceError("Crucible service unavailable"))
	}
	if version.Gofulmen != "" {
		r.pass("Gofulmen access", "v"+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
	} else {
		r.fail("Gofulmen access", "Cannot access Gofulmen")
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		r.fail("configuration", "Invalid configuration", zap.Error(err))
		return exitError(apperrors.ExitInvalidArgument, "Invalid configuration", err)
	}
	r.pass("configuration", "loaded", zap.String("projects_driver", cfg.Projects.Driver),
		zap.String("fetch_provider", cfg.Fetch.Provider), zap.String("deposit_driver", cfg.Deposit.Driver))

	checkStore(ctx, r, cfg)
	checkProjects(ctx, r, cfg)
	checkCredentials(r, cfg)

	if doctorConnect {
		checkDeposit(ctx, r, cfg)
	}
	if doctorProvider == "s3" {
		runS3Checks(ctx, r, cfg)
	}

	log.Info("")
	if r.ok {
		log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	log.Info("")
	log.Info("=== End Diagnostics ===")
	return nil
}

func checkStore(ctx context.Context, r *doctorReport, cfg *config.Config) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		r.fail("job store", "Cannot open store", zap.Error(err))
		return
	}
	defer func() { _ = store.Close() }()

	if err := store.Ping(ctx); err != nil {
		r.fail("job store", "Store not reachable", zap.Error(err))
		return
	}
	running, err := store.CountRunning(ctx)
	if err != nil {
		r.fail("job store", "Cannot query jobs", zap.Error(err))
		return
	}
	where := cfg.Store.Path
	if cfg.Store.URL != "" {
		where = "remote store"
	}
	r.pass("job store", where, zap.Int("running_jobs", running))
}

func checkProjects(ctx context.Context, r *doctorReport, cfg *config.Config) {
	repo, err := openProjects(ctx, cfg)
	if err != nil {
		r.fail("project repository", "Cannot open repository", zap.Error(err))
		return
	}
	defer func() { _ = repo.Close() }()

	eligible, err := repo.ListEligibleProjects(ctx)
	if err != nil {
		r.fail("project repository", "Cannot list projects", zap.Error(err))
		return
	}
	r.pass("project repository", fmt.Sprintf("%d project(s) awaiting submission", len(eligible)),
		zap.String("driver", cfg.Projects.Driver))
}

// checkCredentials reports which submission credentials resolve. Values are
// never logged.
func checkCredentials(r *doctorReport, cfg *config.Config) {
	var missing []string
	if cfg.Fetch.Provider != "s3" && !resolves(cfg.Fetch.Token) {
		missing = append(missing, "fetch.token")
	}
	if cfg.Deposit.Driver != "dir" {
		if cfg.Deposit.Username == "" {
			missing = append(missing, "deposit.username")
		}
		if !resolves(cfg.Deposit.Password) {
			missing = append(missing, "deposit.password")
		}
	}
	if cfg.Archive.Username == "" {
		missing = append(missing, "archive.username")
	}
	if !resolves(cfg.Archive.Password) {
		missing = append(missing, "archive.password")
	}

	if len(missing) > 0 {
		r.warn("credentials", "Jobs will fail at initialize", zap.Strings("missing", missing))
		return
	}
	target := "production"
	if cfg.Archive.Development {
		target = "development"
	}
	r.pass("credentials", "all set", zap.String("archive", target))
}

func resolves(ref string) bool {
	v, err := secrets.Resolve(ref)
	return err == nil && v != ""
}

func checkDeposit(ctx context.Context, r *doctorReport, cfg *config.Config) {
	dialer, creds, _, err := buildDeposit(cfg, observability.CLILogger)
	if err != nil {
		r.fail("deposit area", "Not configured", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sess, err := dialer.Connect(ctx, creds.Host, creds.User, creds.Password)
	if err != nil {
		r.fail("deposit area", "Cannot connect", zap.String("host", creds.Host), zap.Error(err))
		return
	}
	_ = sess.Close()
	r.pass("deposit area", "session opened", zap.String("driver", cfg.Deposit.Driver), zap.String("host", creds.Host))
}

// runS3Checks checks the credentials and region the S3 fetcher will use.
func runS3Checks(ctx context.Context, r *doctorReport, cfg *config.Config) {
	log := r.logger
	log.Info("")
	log.Info("S3 Provider Checks:")

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Fetch.S3.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Fetch.S3.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		r.fail("AWS credentials", "Cannot load AWS config", zap.Error(err))
		printAWSCredentialsHelp()
		return
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		r.fail("AWS credentials", "Cannot retrieve credentials", zap.Error(err))
		printAWSCredentialsHelp()
		return
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	r.pass("AWS credentials", "Found credentials",
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("source", source))

	region := cfg.Fetch.S3.Region
	if region == "" {
		region = awsCfg.Region
	}
	if region == "" {
		region = imdsRegion(ctx, awsCfg)
	}
	if region == "" {
		r.warn("AWS region", "No region configured; set fetch.s3.region or AWS_REGION")
		return
	}
	r.pass("AWS region", region, zap.String("bucket", cfg.Fetch.S3.Bucket))
}

// imdsRegion asks the instance metadata service for the region. Off EC2 it
// returns "" after a short timeout.
func imdsRegion(ctx context.Context, awsCfg aws.Config) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	out, err := imds.NewFromConfig(awsCfg).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return ""
	}
	return out.Region
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

// printAWSCredentialsHelp prints help for configuring AWS credentials.
func printAWSCredentialsHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure AWS credentials:")
	log.Info("  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables, or")
	log.Info("  2. Run 'aws configure' to set up a profile and set fetch.s3.profile, or")
	log.Info("  3. Use an IAM role when running on AWS infrastructure")
	log.Info("")
	log.Info("For S3-compatible storage (MinIO, Wasabi, etc.), also set:")
	log.Info("  - fetch.s3.endpoint and fetch.s3.force_path_style")
	log.Info("")
}
