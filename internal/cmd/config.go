package cmd

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/seqsubmit/internal/config"
	"github.com/3leaps/seqsubmit/pkg/secrets"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd.Context(), nil)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(redactedConfig(cfg)); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

// redactedConfig returns a copy of cfg safe to print.
func redactedConfig(cfg *config.Config) config.Config {
	out := *cfg
	out.Store.AuthToken = secrets.Redact(out.Store.AuthToken)
	out.Projects.DSN = secrets.Redact(out.Projects.DSN)
	out.Fetch.Token = secrets.Redact(out.Fetch.Token)
	out.Fetch.S3.SecretAccessKey = secrets.Redact(out.Fetch.S3.SecretAccessKey)
	out.Deposit.Password = secrets.Redact(out.Deposit.Password)
	out.Archive.Password = secrets.Redact(out.Archive.Password)
	if out.Fetch.S3.AccessKeyID != "" {
		out.Fetch.S3.AccessKeyID = maskAccessKey(out.Fetch.S3.AccessKeyID)
	}
	return out
}
