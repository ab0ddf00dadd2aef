package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/3leaps/seqsubmit/internal/errors"
	"github.com/3leaps/seqsubmit/pkg/job"
)

func TestSetVersionInfo(t *testing.T) {
	// Save original values
	orig := versionInfo
	defer func() { SetVersionInfo(orig.Version, orig.Commit, orig.BuildDate) }()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{
			name:      "set all values",
			version:   "1.0.0",
			commit:    "abc123",
			buildDate: "2024-01-15",
		},
		{
			name:      "set dev version",
			version:   "dev",
			commit:    "HEAD",
			buildDate: "unknown",
		},
		{
			name:      "set empty values",
			version:   "",
			commit:    "",
			buildDate: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestGetAppIdentity(t *testing.T) {
	t.Run("returns nil before init", func(t *testing.T) {
		orig := appIdentity
		appIdentity = nil
		defer func() { appIdentity = orig }()

		assert.Nil(t, GetAppIdentity())
	})

	t.Run("returns identity after initialize", func(t *testing.T) {
		orig := appIdentity
		defer func() { appIdentity = orig }()

		require.NoError(t, initialize(rootCmd, nil))
		id := GetAppIdentity()
		require.NotNil(t, id)
		assert.Equal(t, "seqsubmit", id.BinaryName)
		assert.Equal(t, "SEQSUBMIT", id.EnvPrefix)
	})
}

func TestSetOverride(t *testing.T) {
	overrides := map[string]any{}
	setOverride(overrides, "server.port", 9000)
	setOverride(overrides, "server.host", "0.0.0.0")
	setOverride(overrides, "scheduler.enabled", false)

	assert.Equal(t, map[string]any{
		"server":    map[string]any{"port": 9000, "host": "0.0.0.0"},
		"scheduler": map[string]any{"enabled": false},
	}, overrides)
}

func TestExitCodeOf(t *testing.T) {
	t.Run("cli error keeps its code", func(t *testing.T) {
		err := exitError(apperrors.ExitFileReadError, "Failed to read", errors.New("boom"))
		assert.Equal(t, apperrors.ExitFileReadError, exitCodeOf(err))
		assert.Contains(t, err.Error(), "Failed to read: boom")
	})

	t.Run("nil cause uses the message", func(t *testing.T) {
		err := exitError(apperrors.ExitInvalidArgument, "Secret is empty", nil)
		assert.Contains(t, err.Error(), "Secret is empty")
	})

	t.Run("job errors map by kind", func(t *testing.T) {
		err := job.NewError("find job", job.ErrNotFound, errors.New("job x"))
		assert.Equal(t, apperrors.ExitInvalidArgument, exitCodeOf(err))
	})

	t.Run("unclassified errors fail", func(t *testing.T) {
		assert.Equal(t, apperrors.ExitFailure, exitCodeOf(errors.New("boom")))
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing default file is ignored", func(t *testing.T) {
		t.Chdir(t.TempDir())
		assert.NoError(t, loadEnvFile(""))
	})

	t.Run("explicit file sets unset variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("SEQSUBMIT_TEST_ENVFILE=from-file\n"), 0o600))
		t.Setenv("SEQSUBMIT_TEST_ENVFILE", "")
		require.NoError(t, os.Unsetenv("SEQSUBMIT_TEST_ENVFILE"))

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "from-file", os.Getenv("SEQSUBMIT_TEST_ENVFILE"))
	})

	t.Run("explicit missing file fails", func(t *testing.T) {
		assert.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "nope.env")))
	})
}
