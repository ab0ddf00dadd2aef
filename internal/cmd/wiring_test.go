package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/seqsubmit/internal/config"
	"github.com/3leaps/seqsubmit/pkg/convert"
	"github.com/3leaps/seqsubmit/pkg/deposit"
	"github.com/3leaps/seqsubmit/pkg/fetch"
)

func TestBuildFetcher(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("http without base url is unconfigured", func(t *testing.T) {
		f, err := buildFetcher(ctx, &config.Config{Fetch: config.FetchConfig{Provider: "http"}}, log)
		require.NoError(t, err)
		assert.Nil(t, f)
	})

	t.Run("http", func(t *testing.T) {
		f, err := buildFetcher(ctx, &config.Config{Fetch: config.FetchConfig{
			Provider: "http",
			BaseURL:  "https://files.example.org",
		}}, log)
		require.NoError(t, err)
		assert.IsType(t, &fetch.HTTPFetcher{}, f)
	})

	t.Run("s3 without bucket is unconfigured", func(t *testing.T) {
		f, err := buildFetcher(ctx, &config.Config{Fetch: config.FetchConfig{Provider: "s3"}}, log)
		require.NoError(t, err)
		assert.Nil(t, f)
	})
}

func TestBuildConverter(t *testing.T) {
	c, err := buildConverter(&config.Config{Convert: config.ConvertConfig{Quality: "5"}}, zap.NewNop())
	require.NoError(t, err)
	b, ok := c.(*convert.Builtin)
	require.True(t, ok)
	assert.Equal(t, byte('5'), b.Quality)

	c, err = buildConverter(&config.Config{Convert: config.ConvertConfig{Command: "seqtk seq -F I {input}"}}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &convert.Command{}, c)
}

func TestBuildDeposit(t *testing.T) {
	t.Run("dir is anonymous", func(t *testing.T) {
		d, creds, anonymous, err := buildDeposit(&config.Config{Deposit: config.DepositConfig{Driver: "dir", Dir: t.TempDir()}}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &deposit.DirDialer{}, d)
		assert.True(t, anonymous)
		assert.Empty(t, creds.User)
	})

	t.Run("dir requires a directory", func(t *testing.T) {
		_, _, _, err := buildDeposit(&config.Config{Deposit: config.DepositConfig{Driver: "dir"}}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("ftp resolves the password", func(t *testing.T) {
		t.Setenv("SEQSUBMIT_TEST_DEPOSIT", "pw")
		d, creds, anonymous, err := buildDeposit(&config.Config{Deposit: config.DepositConfig{
			Driver:   "ftp",
			Host:     "webin.ebi.ac.uk",
			Username: "Webin-1",
			Password: "env:SEQSUBMIT_TEST_DEPOSIT",
		}}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &deposit.FTPDialer{}, d)
		assert.False(t, anonymous)
		assert.Equal(t, "webin.ebi.ac.uk", creds.Host)
		assert.Equal(t, "Webin-1", creds.User)
		assert.Equal(t, "pw", creds.Password)
	})
}

func TestBuildArchive(t *testing.T) {
	a, err := buildArchive(&config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = buildArchive(&config.Config{Archive: config.ArchiveConfig{Username: "Webin-1", Password: "pw", Development: true}}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, a)

	_, err = buildArchive(&config.Config{Archive: config.ArchiveConfig{Username: "Webin-1", Password: "env:SEQSUBMIT_TEST_MISSING_PW"}}, zap.NewNop())
	assert.Error(t, err)
}
