package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/3leaps/seqsubmit/internal/errors"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mark every active job STOPPED",
	Long: `Mark every non-terminal job STOPPED, as a leader does on startup. Use it
after a crash when no leader is running. Stopped jobs are never resumed; a
new job is created on the next poll if the project is still pending.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.Context(), nil)
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return exitError(apperrors.ExitFileWriteError, "Failed to open job store", err)
	}
	defer func() { _ = store.Close() }()

	n, err := store.ResetActiveToStopped(cmd.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Stopped %d job(s)\n", n)
	return err
}
