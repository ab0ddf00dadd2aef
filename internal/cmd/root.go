// Package cmd implements the seqsubmit command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/internal/config"
	apperrors "github.com/3leaps/seqsubmit/internal/errors"
	"github.com/3leaps/seqsubmit/internal/observability"
	"github.com/3leaps/seqsubmit/internal/server/handlers"
)

var (
	cfgFile string
	envFile string
	verbose bool

	appIdentity *config.AppIdentity

	versionInfo = struct {
		Version   string
		Commit    string
		BuildDate string
	}{
		Version:   "dev",
		Commit:    "unknown",
		BuildDate: "unknown",
	}
)

var rootCmd = &cobra.Command{
	Use:   "seqsubmit",
	Short: "Submit sequencing projects to the European Nucleotide Archive",
	Long: `seqsubmit moves a project's sequence data through staging, conversion,
bulk transfer and metadata submission, recording the accessions the archive
assigns.

Run 'seqsubmit serve' to start the job manager. The jobs subcommands inspect
and create jobs in the same store.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initialize,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: seqsubmit.yaml in . or the user config dir)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before reading config (default: .env if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

// GetAppIdentity returns the identity set during command initialization, or
// nil before it runs.
func GetAppIdentity() *config.AppIdentity {
	return appIdentity
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		ExitWithCode(observability.CLILogger, exitCodeOf(err), "Command failed", err)
	}
}

func initialize(cmd *cobra.Command, _ []string) error {
	if err := loadEnvFile(envFile); err != nil {
		return exitError(apperrors.ExitFileReadError, "Failed to load env file", err)
	}

	id := config.DefaultIdentity
	appIdentity = &id
	config.SetIdentity(id)
	config.SetConfigFile(cfgFile)

	observability.InitCLILogger(id.BinaryName, verbose)
	return nil
}

// loadEnvFile loads path, or .env when path is empty and the file exists.
// Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	return godotenv.Load(path)
}

// loadConfig loads configuration with flag overrides applied last.
func loadConfig(ctx context.Context, overrides map[string]any) (*config.Config, error) {
	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return nil, exitError(apperrors.ExitInvalidArgument, "Invalid configuration", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// setOverride stores value under a dotted key in a nested overrides map.
func setOverride(overrides map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	m := overrides
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

// cliError carries the exit code chosen by the failing command.
type cliError struct {
	code    int
	message string
	err     error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
}

func (e *cliError) Unwrap() error { return e.err }

func exitError(code int, message string, err error) error {
	if err == nil {
		err = errors.New(message)
	}
	return &cliError{code: code, message: message, err: err}
}

func exitCodeOf(err error) int {
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return apperrors.ExitCode(err)
}

// ExitWithCode logs msg and err, then exits the process with code.
func ExitWithCode(logger *zap.Logger, code int, msg string, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err != nil {
		logger.Error(msg, zap.Error(err), zap.Int("exit_code", code))
	} else {
		logger.Error(msg, zap.Int("exit_code", code))
	}
	_ = logger.Sync()
	if code == 0 {
		code = apperrors.ExitFailure
	}
	os.Exit(code)
}
