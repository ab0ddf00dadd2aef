package main

import "github.com/3leaps/seqsubmit/internal/cmd"

// Set by the linker: -X main.version=... -X main.commit=... -X main.buildDate=...
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	cmd.Execute()
}
