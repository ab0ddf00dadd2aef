//go:build cloudintegration

package fetch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/seqsubmit/pkg/fetch"
	"github.com/3leaps/seqsubmit/test/cloudtest"
)

func newMotoFetcher(t *testing.T, bucket string) *fetch.S3Fetcher {
	t.Helper()
	f, err := fetch.NewS3(context.Background(), fetch.S3Config{
		Bucket:          bucket,
		Prefix:          "media",
		StripPrefix:     fetch.DefaultStripPrefix,
		Endpoint:        cloudtest.Endpoint,
		Region:          cloudtest.Region,
		AccessKeyID:     cloudtest.AccessKeyID,
		SecretAccessKey: cloudtest.SecretAccessKey,
		ForcePathStyle:  true,
	}, nil)
	require.NoError(t, err)
	return f
}

func TestS3Fetcher_CloudIntegration(t *testing.T) {
	cloudtest.SkipIfUnavailable(t)
	ctx := context.Background()

	bucket := cloudtest.SampleBucket(t, ctx, map[string]string{
		"media/alice/s1.fasta": ">r1\nACGT\n",
	})
	f := newMotoFetcher(t, bucket)

	t.Run("downloads the object for a sample path", func(t *testing.T) {
		local := filepath.Join(t.TempDir(), "in", "s1.fasta")
		require.NoError(t, f.Fetch(ctx, fetch.DefaultStripPrefix+"/alice/s1.fasta", local, fetch.Credential{}))

		data, err := os.ReadFile(local)
		require.NoError(t, err)
		assert.Equal(t, ">r1\nACGT\n", string(data))
	})

	t.Run("missing object is not found", func(t *testing.T) {
		local := filepath.Join(t.TempDir(), "missing.fasta")
		err := f.Fetch(ctx, fetch.DefaultStripPrefix+"/alice/missing.fasta", local, fetch.Credential{})
		require.Error(t, err)
		assert.True(t, fetch.IsNotFound(err))
		assert.NoFileExists(t, local)
	})
}
