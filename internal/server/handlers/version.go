package handlers

import (
	"net/http"
	"runtime"
	"sync"

	apperrors "github.com/3leaps/seqsubmit/internal/errors"
)

// VersionInfo is the body of /version.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

var (
	versionMu sync.RWMutex
	version   = VersionInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetVersionInfo records the build metadata served by VersionHandler.
func SetVersionInfo(v, commit, buildDate string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	version = VersionInfo{Version: v, Commit: commit, BuildDate: buildDate}
}

// VersionHandler serves build metadata.
func VersionHandler(w http.ResponseWriter, _ *http.Request) {
	versionMu.RLock()
	info := version
	versionMu.RUnlock()
	info.GoVersion = runtime.Version()
	apperrors.WriteJSON(w, http.StatusOK, info)
}
