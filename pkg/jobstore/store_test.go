package jobstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "memory", cfg: Config{Path: ":memory:"}, want: ":memory:"},
		{name: "plain path", cfg: Config{Path: filepath.Join(dir, "a", "jobs.db")}, want: "file:" + filepath.Join(dir, "a", "jobs.db")},
		{name: "file dsn", cfg: Config{Path: "file:" + filepath.Join(dir, "b.db")}, want: "file:" + filepath.Join(dir, "b.db")},
		{name: "url with token", cfg: Config{URL: "libsql://db.example.io", AuthToken: "tok"}, want: "libsql://db.example.io?authToken=tok"},
		{name: "url keeps token", cfg: Config{URL: "libsql://db.example.io?authToken=x", AuthToken: "tok"}, want: "libsql://db.example.io?authToken=x"},
		{name: "empty", cfg: Config{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
