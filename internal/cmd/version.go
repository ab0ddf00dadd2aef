package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := buildInfo()
		if versionJSON {
			return writeJSON(cmd.OutOrStdout(), info)
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "seqsubmit %s\n", info.Version)
		_, _ = fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		_, _ = fmt.Fprintf(out, "  built:      %s\n", info.BuildDate)
		_, _ = fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
		_, _ = fmt.Fprintf(out, "  gofulmen:   %s\n", dash(info.Gofulmen))
		_, err := fmt.Fprintf(out, "  crucible:   %s\n", dash(info.Crucible))
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Write JSON")
}

type versionOutput struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Gofulmen  string `json:"gofulmen,omitempty"`
	Crucible  string `json:"crucible,omitempty"`
}

func buildInfo() versionOutput {
	v := crucible.GetVersion()
	return versionOutput{
		Version:   versionInfo.Version,
		Commit:    versionInfo.Commit,
		BuildDate: versionInfo.BuildDate,
		GoVersion: runtime.Version(),
		Gofulmen:  v.Gofulmen,
		Crucible:  v.Crucible,
	}
}
