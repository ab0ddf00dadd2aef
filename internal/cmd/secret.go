package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/3leaps/seqsubmit/internal/errors"
	"github.com/3leaps/seqsubmit/pkg/secrets"
)

var secretService string

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage credentials in the OS keyring",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Store a credential read from stdin",
	Long: `Store a credential in the OS keyring and print the reference to put in the
config file, e.g. archive.password: keyring:seqsubmit/archive.

Examples:
  printf '%s' "$WEBIN_PASSWORD" | seqsubmit secret set archive`,
	Args: cobra.ExactArgs(1),
	RunE: runSecretSet,
}

func init() {
	rootCmd.AddCommand(secretCmd)
	secretCmd.AddCommand(secretSetCmd)
	secretSetCmd.Flags().StringVar(&secretService, "service", "seqsubmit", "Keyring service name")
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	value, err := readSecret(cmd.InOrStdin())
	if err != nil {
		return exitError(apperrors.ExitFileReadError, "Failed to read secret from stdin", err)
	}
	if value == "" {
		return exitError(apperrors.ExitInvalidArgument, "Secret is empty", nil)
	}
	ref, err := secrets.Store(secretService, args[0], value)
	if err != nil {
		return exitError(apperrors.ExitFileWriteError, "Failed to store secret", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), ref)
	return err
}

// readSecret returns the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
