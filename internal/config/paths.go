package config

import (
	"os"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
)

// ciBoundaryVars name the workspace root in common CI systems.
var ciBoundaryVars = []string{"FULMEN_WORKSPACE_ROOT", "GITHUB_WORKSPACE", "CI_PROJECT_DIR", "WORKSPACE"}

// getUserConfigPaths lists directories searched for the config file.
func getUserConfigPaths() []string {
	id := identity()
	if id == nil || id.ConfigName == "" {
		return []string{}
	}

	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, id.ConfigName))
	}
	if dir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(dir, id.ConfigName)
		if len(paths) == 0 || paths[0] != p {
			paths = append(paths, p)
		}
	}
	return paths
}

// DataDir returns the application data directory for the job store and
// staging area.
func DataDir() string {
	id := identity()
	if id == nil {
		return ""
	}
	return gfconfig.GetAppDataDir(id.ConfigName)
}

// findProjectRoot walks up from the working directory to the nearest
// directory holding go.mod or a config file. In CI an absolute workspace
// boundary containing the working directory stops the walk; anything else
// falls back to the unbounded walk, then to the working directory.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	boundary := ""
	if isCI() {
		boundary = ciBoundary(cwd)
	}
	if root, ok := walkUp(cwd, boundary); ok {
		return root, nil
	}
	if boundary != "" {
		if root, ok := walkUp(cwd, ""); ok {
			return root, nil
		}
	}
	return cwd, nil
}

func isCI() bool {
	for _, name := range []string{"CI", "GITHUB_ACTIONS"} {
		if v := strings.ToLower(os.Getenv(name)); v == "true" || v == "1" {
			return true
		}
	}
	return false
}

func ciBoundary(cwd string) string {
	for _, name := range ciBoundaryVars {
		v := os.Getenv(name)
		if v == "" || !filepath.IsAbs(v) {
			continue
		}
		info, err := os.Stat(v)
		if err != nil || !info.IsDir() {
			continue
		}
		rel, err := filepath.Rel(v, cwd)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.Clean(v)
	}
	return ""
}

func walkUp(start, boundary string) (string, bool) {
	dir := start
	for {
		if hasMarker(dir) {
			return dir, true
		}
		if boundary != "" && dir == boundary {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func hasMarker(dir string) bool {
	markers := []string{"go.mod"}
	if id := identity(); id != nil && id.ConfigName != "" {
		markers = append(markers, id.ConfigName+".yaml")
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
			return true
		}
	}
	return false
}
