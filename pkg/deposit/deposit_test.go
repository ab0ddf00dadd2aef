package deposit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "plain", in: "reads.fastq.gz", want: "reads.fastq.gz"},
		{name: "trimmed", in: " reads.fq ", want: "reads.fq"},
		{name: "empty", in: "", wantErr: true},
		{name: "dir component", in: "a/b.fq", wantErr: true},
		{name: "backslash", in: `a\b.fq`, wantErr: true},
		{name: "dotdot", in: "..", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanName(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirDialer_Upload(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	src := filepath.Join(t.TempDir(), "reads.fastq.gz")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	sess, err := (&DirDialer{BaseDir: base}).Connect(ctx, "webin.example.org", "u", "p")
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	require.NoError(t, sess.Upload(ctx, src, "reads.fastq.gz"))

	data, err := os.ReadFile(filepath.Join(base, "webin.example.org", "reads.fastq.gz"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	entries, err := os.ReadDir(filepath.Join(base, "webin.example.org"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDirDialer_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := (&DirDialer{}).Connect(ctx, "", "", "")
	require.Error(t, err)

	sess, err := (&DirDialer{BaseDir: t.TempDir()}).Connect(ctx, "", "", "")
	require.NoError(t, err)

	err = sess.Upload(ctx, filepath.Join(t.TempDir(), "missing.fq"), "missing.fq")
	require.Error(t, err)

	err = sess.Upload(ctx, "whatever", "../escape.fq")
	require.Error(t, err)
}
